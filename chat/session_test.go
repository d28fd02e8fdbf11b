////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"

	"github.com/chatwave/client/backend/tables"
	"github.com/chatwave/client/event"
	"github.com/chatwave/client/messages"
	"github.com/chatwave/client/prefs"
)

// Tests the full request flow: alice asks bob, bob accepts and both end up
// with exactly one conversation with two participants.
func TestSession_AcceptRequest(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo("alice", "bob")
	alice := newTestSession(t, repo, "alice", nil)

	r, err := alice.SendChatRequest(ctx, "@bob")
	require.NoError(t, err)
	require.Equal(t, tables.RequestPending, r.Status)

	bob := newTestSession(t, repo, "bob", nil)
	pending := bob.Requests()
	require.Len(t, pending, 1)
	require.Equal(t, "alice", pending[0].Sender.Username)

	conv, err := bob.AcceptRequest(ctx, r.ID)
	require.NoError(t, err)
	require.Empty(t, bob.Requests())

	require.Len(t, repo.conversations, 1)
	require.ElementsMatch(t, []string{"alice", "bob"},
		repo.participants[conv.ID])
	require.Equal(t, tables.RequestAccepted, repo.requests[r.ID].Status)

	list := bob.Conversations()
	require.Len(t, list, 1)
	require.Equal(t, conv.ID, list[0].ID)
	require.Equal(t, "alice", list[0].Partner.ID)

	list, err = alice.LoadConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "bob", list[0].Partner.ID)
}

// Tests that a failure after the conversation was created deletes it again
// and leaves the request pending.
func TestSession_AcceptRequest_Compensates(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo("alice", "bob")
	alice := newTestSession(t, repo, "alice", nil)
	r, err := alice.SendChatRequest(ctx, "bob")
	require.NoError(t, err)

	bob := newTestSession(t, repo, "bob", nil)
	repo.setFail("SetRequestStatus", errors.New("connection reset"))

	_, err = bob.AcceptRequest(ctx, r.ID)
	require.Error(t, err)
	require.Equal(t, 1, repo.called("DeleteConversation"))
	require.Empty(t, repo.conversations)
	require.Equal(t, tables.RequestPending, repo.requests[r.ID].Status)
	require.Len(t, bob.Requests(), 1)

	notices := bob.events.of(event.Notice)
	require.Len(t, notices, 1)
	require.Equal(t, ActionAcceptRequest, notices[0].evtType)
	require.Contains(t, notices[0].details, "connection reset")
}

// Tests that only the receiver can answer a request, and only once.
func TestSession_AcceptRequest_Checks(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo("alice", "bob")
	alice := newTestSession(t, repo, "alice", nil)
	r, err := alice.SendChatRequest(ctx, "bob")
	require.NoError(t, err)

	_, err = alice.AcceptRequest(ctx, r.ID)
	require.Error(t, err)

	bob := newTestSession(t, repo, "bob", nil)
	require.NoError(t, bob.RejectRequest(ctx, r.ID))
	require.Equal(t, tables.RequestRejected, repo.requests[r.ID].Status)

	_, err = bob.AcceptRequest(ctx, r.ID)
	require.Error(t, err)
	require.Equal(t, 0, repo.called("CreateConversation"))

	_, err = bob.AcceptRequest(ctx, "missing")
	require.Error(t, err)
	notices := bob.events.of(event.Notice)
	require.Equal(t, NoticeRequestNotFound, notices[len(notices)-1].details)
}

// Tests the notices for requests to unknown users, to oneself and repeated
// requests.
func TestSession_SendChatRequest_Notices(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo("alice", "bob")
	alice := newTestSession(t, repo, "alice", nil)

	_, err := alice.SendChatRequest(ctx, "carol")
	require.Error(t, err)
	_, err = alice.SendChatRequest(ctx, "alice")
	require.Error(t, err)
	_, err = alice.SendChatRequest(ctx, "bob")
	require.NoError(t, err)
	_, err = alice.SendChatRequest(ctx, "bob")
	require.Error(t, err)

	notices := alice.events.of(event.Notice)
	require.Len(t, notices, 2)
	require.Equal(t, NoticeUserNotFound, notices[0].details)
	require.Equal(t, NoticeRequestSent, notices[1].details)
}

// Tests that an unreadable profile ends the session exactly once.
func TestSession_Start_ForcedLogout(t *testing.T) {
	repo := newFakeRepo()
	s := &testSession{repo: repo, events: &fakeReporter{}}
	p := prefs.New(ekv.MakeMemstore())
	require.NoError(t, p.RememberCredentials(prefs.Credentials{
		Email: "ghost@example.com", RefreshToken: "r"}))

	s.Session = NewSession("ghost", Deps{
		Repo:     repo,
		Prefs:    p,
		Events:   s.events,
		OnLogout: func(reason string) { s.logouts = append(s.logouts, reason) },
	}, GetDefaultParams(), nil)

	require.Error(t, s.Start(context.Background()))
	require.True(t, s.LoggedOut())
	require.Len(t, s.logouts, 1)
	_, ok, err := p.Credentials()
	require.NoError(t, err)
	require.False(t, ok)

	s.forceLogout("again")
	require.Len(t, s.logouts, 1)
	require.Len(t, s.events.of(event.Session), 1)

	err = s.Sweep(context.Background())
	require.EqualError(t, err, loggedOutErr)
}

// Tests that a sweep rejected for an expired token ends the session, and
// that other sweep failures do not report notices.
func TestSession_Sweep_Errors(t *testing.T) {
	repo := newFakeRepo("alice")
	s := newTestSession(t, repo, "alice", nil)

	repo.setFail("Conversations", errors.New("503"))
	require.Error(t, s.Sweep(context.Background()))
	require.False(t, s.LoggedOut())
	require.Empty(t, s.events.of(event.Notice))

	repo.setFail("Conversations", errExpired)
	require.Error(t, s.Sweep(context.Background()))
	require.True(t, s.LoggedOut())
	require.Len(t, s.logouts, 1)
}

// Tests that unread counts come from the rows on every load, so a read
// elsewhere is reflected by the next sweep.
func TestSession_Sweep_UnreadCounts(t *testing.T) {
	repo := newFakeRepo("alice", "bob")
	repo.addConversation("c1", "alice", "bob")
	for i, id := range []string{"m1", "m2", "m3"} {
		repo.addMessage(messages.Message{ID: id, ConversationID: "c1",
			SenderID: "bob", CreatedAt: time.Unix(int64(i), 0)})
	}
	repo.addMessage(messages.Message{ID: "m4", ConversationID: "c1",
		SenderID: "alice", CreatedAt: time.Unix(4, 0)})

	s := newTestSession(t, repo, "alice", nil)
	require.Equal(t, 3, s.UnreadTotal())

	require.NoError(t, repo.MarkRead(context.Background(), "c1", "alice"))
	require.NoError(t, s.Sweep(context.Background()))
	require.Equal(t, 0, s.UnreadTotal())
}

// Tests that marking a conversation read replaces the summary list rather
// than editing the one already handed out.
func TestSession_MarkRead_CopiesSummaries(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo("alice", "bob")
	repo.addConversation("c1", "alice", "bob")
	repo.addMessage(messages.Message{ID: "m1", ConversationID: "c1",
		SenderID: "bob", CreatedAt: time.Unix(1, 0)})

	s := newTestSession(t, repo, "alice", nil)
	s.mux.RLock()
	held := s.conversations
	s.mux.RUnlock()
	require.Len(t, held, 1)
	require.Equal(t, 1, held[0].Unread)

	require.NoError(t, s.OpenConversation(ctx, "c1"))
	require.Equal(t, 0, s.UnreadTotal())
	require.Equal(t, 0, s.Conversations()[0].Unread)
	require.Equal(t, 1, held[0].Unread)
}

// Tests that opening a conversation marks it read and is remembered for the
// next session.
func TestSession_OpenConversation(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo("alice", "bob")
	repo.addConversation("c1", "alice", "bob")
	repo.addMessage(messages.Message{ID: "m1", ConversationID: "c1",
		SenderID: "bob", Content: "hi", CreatedAt: time.Unix(1, 0)})
	p := prefs.New(ekv.MakeMemstore())

	s := newTestSession(t, repo, "alice", p)
	require.Equal(t, 1, s.UnreadTotal())
	require.NoError(t, s.OpenConversation(ctx, "c1"))
	require.Equal(t, 0, s.UnreadTotal())
	require.True(t, s.Messages()[0].IsRead)
	m, _ := repo.message("m1")
	require.True(t, m.IsRead)

	again := newTestSession(t, repo, "alice", p)
	require.Equal(t, messages.Scope{ID: "c1"}, again.OpenScope())
	require.Len(t, again.Messages(), 1)

	again.CloseScope()
	_, ok, err := p.LastSelectedChat()
	require.NoError(t, err)
	require.False(t, ok)
}

// Tests creating and joining groups.
func TestSession_Groups(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo("alice", "bob")
	alice := newTestSession(t, repo, "alice", nil)

	_, err := alice.CreateGroup(ctx, "Team", "no")
	require.Error(t, err)
	_, err = alice.CreateGroup(ctx, " ", "team")
	require.Error(t, err)
	require.Equal(t, 0, repo.called("CreateGroup"))

	g, err := alice.CreateGroup(ctx, "Team", "@Team_1")
	require.NoError(t, err)
	require.Equal(t, "team_1", g.Handle)
	require.Equal(t, tables.RoleAdmin, repo.members[g.ID][0].Role)
	require.Len(t, alice.Groups(), 1)

	_, err = alice.CreateGroup(ctx, "Other", "team_1")
	require.Error(t, err)
	notices := alice.events.of(event.Notice)
	require.Equal(t, NoticeHandleTaken, notices[len(notices)-1].details)

	bob := newTestSession(t, repo, "bob", nil)
	_, err = bob.JoinGroup(ctx, "nope")
	require.Error(t, err)
	require.Equal(t, NoticeGroupNotFound, bob.events.of(event.Notice)[0].details)

	joined, err := bob.JoinGroup(ctx, "team_1")
	require.NoError(t, err)
	require.Equal(t, g.ID, joined.ID)
	_, err = bob.JoinGroup(ctx, "TEAM_1")
	require.NoError(t, err)
	require.Len(t, bob.Groups(), 1)
	require.Len(t, repo.members[g.ID], 2)
}

// Tests that a failed admin insert deletes the new group again.
func TestSession_CreateGroup_Compensates(t *testing.T) {
	repo := newFakeRepo("alice")
	s := newTestSession(t, repo, "alice", nil)
	repo.setFail("AddGroupMember", errors.New("timeout"))

	_, err := s.CreateGroup(context.Background(), "Team", "team")
	require.Error(t, err)
	require.Empty(t, repo.groups)
	require.Empty(t, s.Groups())
}

// Tests the notice text for known and unknown errors.
func TestNoticeFor(t *testing.T) {
	tests := []struct {
		action string
		err    error
		want   string
	}{
		{ActionSendRequest, errNotFound, NoticeUserNotFound},
		{ActionSendRequest, errDuplicate, NoticeRequestSent},
		{ActionJoinGroup, errDuplicate, NoticeAlreadyMember},
		{ActionLoad, errNotFound, NoticeGenericNotFound},
		{ActionUpload, errDuplicate, NoticeGenericDuplicate},
		{ActionSend, errors.New("offline"), "Failed to send: offline"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, NoticeFor(tt.action, tt.err), tt.action)
	}
}

// Tests that the seen set forgets the oldest IDs when full.
func TestSeen(t *testing.T) {
	s := newSeen(2)
	require.True(t, s.add("a"))
	require.False(t, s.add("a"))
	require.True(t, s.add("b"))
	require.True(t, s.add("c"))
	require.True(t, s.add("a"))
	require.False(t, s.add("c"))
}

// Tests that avatars are uploaded and stored on the profile.
func TestSession_SetAvatar(t *testing.T) {
	repo := newFakeRepo("alice")
	s := newTestSession(t, repo, "alice", nil)

	url, err := s.SetAvatar(context.Background(), []byte("png"))
	require.NoError(t, err)
	require.Equal(t, url, s.Profile().AvatarURL)
	require.Equal(t, url, repo.profiles["alice"].AvatarURL)
}

// Tests that lookups without a directory are refused.
func TestSession_LookupUser_Unavailable(t *testing.T) {
	s := newTestSession(t, newFakeRepo("alice"), "alice", nil)
	_, err := s.LookupUser(context.Background(), "bob")
	require.Error(t, err)
}
