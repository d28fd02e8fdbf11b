////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package tables

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/chatwave/client/backend"
	"github.com/chatwave/client/messages"
)

// Error messages.
const (
	loadErr   = "failed to load %s"
	insertErr = "failed to insert into %s"
	updateErr = "failed to update %s %s"
	deleteErr = "failed to delete from %s"
)

// senderEmbed selects the sender's profile alongside a chat request.
const senderEmbed = "*,sender:profiles!chat_requests_sender_id_fkey(*)"

// Tables reads and writes the chat tables through the backend REST API. Row
// level security on the backend decides what the signed-in user may see.
type Tables struct {
	c *backend.Client
}

// New returns table access through the client.
func New(c *backend.Client) *Tables {
	return &Tables{c: c}
}

// Profile loads a user's profile.
func (t *Tables) Profile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := t.c.From(Profiles).Select("*").Eq("id", userID).Single(ctx, &p)
	return p, errors.WithMessagef(err, loadErr, Profiles)
}

// ProfileByUsername loads the profile with the username.
func (t *Tables) ProfileByUsername(ctx context.Context,
	username string) (Profile, error) {
	var p Profile
	err := t.c.From(Profiles).Select("*").Eq("username", username).
		Single(ctx, &p)
	return p, errors.WithMessagef(err, loadErr, Profiles)
}

// SetAvatar stores the avatar URL on the user's profile.
func (t *Tables) SetAvatar(ctx context.Context, userID, url string) error {
	err := t.c.From(Profiles).Eq("id", userID).Update(ctx,
		map[string]string{"avatar_url": url}, nil)
	return errors.WithMessagef(err, updateErr, Profiles, userID)
}

// TouchLastSeen stores when the user was last active.
func (t *Tables) TouchLastSeen(ctx context.Context, userID string,
	at time.Time) error {
	err := t.c.From(Profiles).Eq("id", userID).Update(ctx,
		map[string]time.Time{"last_seen": at}, nil)
	return errors.WithMessagef(err, updateErr, Profiles, userID)
}

// Conversations lists the viewer's conversations, most recently active
// first. Unread counts are computed from the unread rows on every call.
func (t *Tables) Conversations(ctx context.Context,
	viewerID string) ([]ConversationSummary, error) {
	var own []Participant
	err := t.c.From(ConversationParticipants).Select("conversation_id").
		Eq("user_id", viewerID).Get(ctx, &own)
	if err != nil {
		return nil, errors.WithMessagef(err, loadErr, ConversationParticipants)
	}
	if len(own) == 0 {
		return nil, nil
	}
	ids := make([]string, len(own))
	for i := range own {
		ids[i] = own[i].ConversationID
	}

	var convs []Conversation
	err = t.c.From(Conversations).Select("*").In("id", ids).Get(ctx, &convs)
	if err != nil {
		return nil, errors.WithMessagef(err, loadErr, Conversations)
	}

	var others []Participant
	err = t.c.From(ConversationParticipants).
		Select("conversation_id,user_id").In("conversation_id", ids).
		Neq("user_id", viewerID).Get(ctx, &others)
	if err != nil {
		return nil, errors.WithMessagef(err, loadErr, ConversationParticipants)
	}
	partnerOf := make(map[string]string, len(others))
	partnerIDs := make([]string, 0, len(others))
	for _, p := range others {
		partnerOf[p.ConversationID] = p.UserID
		partnerIDs = append(partnerIDs, p.UserID)
	}

	profiles := make(map[string]Profile, len(partnerIDs))
	if len(partnerIDs) > 0 {
		var list []Profile
		err = t.c.From(Profiles).Select("*").In("id", partnerIDs).
			Get(ctx, &list)
		if err != nil {
			return nil, errors.WithMessagef(err, loadErr, Profiles)
		}
		for _, p := range list {
			profiles[p.ID] = p
		}
	}

	var unread []messages.Message
	err = t.c.From(Messages).Select("id,conversation_id,sender_id,is_read").
		In("conversation_id", ids).Is("is_read", "false").
		Neq("sender_id", viewerID).Get(ctx, &unread)
	if err != nil {
		return nil, errors.WithMessagef(err, loadErr, Messages)
	}
	counts := messages.CountUnread(unread, viewerID)

	list := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		list = append(list, ConversationSummary{
			Conversation: c,
			Partner:      profiles[partnerOf[c.ID]],
			Unread:       counts[c.ID],
		})
	}
	SortConversations(list)
	return list, nil
}

// SortConversations orders conversations by last activity, newest first.
// Conversations without messages use their creation time.
func SortConversations(list []ConversationSummary) {
	active := func(c ConversationSummary) time.Time {
		if c.LastMessageAt.IsZero() {
			return c.CreatedAt
		}
		return c.LastMessageAt
	}
	sort.SliceStable(list, func(i, j int) bool {
		return active(list[i]).After(active(list[j]))
	})
}

// Messages loads the messages of a conversation or group, oldest first.
func (t *Tables) Messages(ctx context.Context,
	scope messages.Scope) ([]messages.Message, error) {
	table, column := messageTable(scope)
	var list []messages.Message
	err := t.c.From(table).Select("*").Eq(column, scope.ID).
		Order("created_at", true).Get(ctx, &list)
	if err != nil {
		return nil, errors.WithMessagef(err, loadErr, table)
	}
	return list, nil
}

// InsertMessage stores a message under its client generated ID.
func (t *Tables) InsertMessage(ctx context.Context, m messages.Message) error {
	table, _ := messageTable(m.Scope())
	var row interface{} = toMessageRow(m)
	if m.GroupID != "" {
		row = toGroupMessageRow(m)
	}
	err := t.c.From(table).Insert(ctx, row, nil)
	return errors.WithMessagef(err, insertErr, table)
}

// SetReactions overwrites the reactions of a message.
func (t *Tables) SetReactions(ctx context.Context, scope messages.Scope,
	messageID string, r messages.Reactions) error {
	table, _ := messageTable(scope)
	patch := struct {
		Reactions messages.Reactions `json:"reactions"`
	}{r}
	err := t.c.From(table).Eq("id", messageID).Update(ctx, patch, nil)
	return errors.WithMessagef(err, updateErr, table, messageID)
}

// SoftDelete replaces the content of a message sent by senderID and drops
// its attachment. Messages of other senders are not matched.
func (t *Tables) SoftDelete(ctx context.Context, scope messages.Scope,
	messageID, senderID string) error {
	table, _ := messageTable(scope)
	patch := map[string]interface{}{
		"content":   messages.DeletedContent,
		"file_url":  nil,
		"file_type": nil,
		"file_name": nil,
	}
	err := t.c.From(table).Eq("id", messageID).Eq("sender_id", senderID).
		Update(ctx, patch, nil)
	return errors.WithMessagef(err, updateErr, table, messageID)
}

// MarkRead marks every message of the conversation not sent by the viewer
// as read.
func (t *Tables) MarkRead(ctx context.Context, conversationID,
	viewerID string) error {
	err := t.c.From(Messages).Eq("conversation_id", conversationID).
		Neq("sender_id", viewerID).Is("is_read", "false").
		Update(ctx, map[string]bool{"is_read": true}, nil)
	return errors.WithMessagef(err, updateErr, Messages, conversationID)
}

// TouchConversation stores the latest message text and time on the
// conversation.
func (t *Tables) TouchConversation(ctx context.Context, conversationID,
	text string, at time.Time) error {
	patch := struct {
		LastMessage   string    `json:"last_message"`
		LastMessageAt time.Time `json:"last_message_at"`
	}{text, at}
	err := t.c.From(Conversations).Eq("id", conversationID).
		Update(ctx, patch, nil)
	return errors.WithMessagef(err, updateErr, Conversations, conversationID)
}

// CreateConversation creates an empty conversation with the given ID.
func (t *Tables) CreateConversation(ctx context.Context,
	id string) (Conversation, error) {
	var out []Conversation
	err := t.c.From(Conversations).Insert(ctx,
		map[string]string{"id": id}, &out)
	if err != nil {
		return Conversation{}, errors.WithMessagef(err, insertErr,
			Conversations)
	}
	if len(out) == 0 {
		return Conversation{ID: id}, nil
	}
	return out[0], nil
}

// AddParticipants adds every user to the conversation in one insert, so
// either all rows are created or none.
func (t *Tables) AddParticipants(ctx context.Context, conversationID string,
	userIDs []string) error {
	rows := make([]Participant, len(userIDs))
	for i, u := range userIDs {
		rows[i] = Participant{ConversationID: conversationID, UserID: u}
	}
	err := t.c.From(ConversationParticipants).Insert(ctx, rows, nil)
	return errors.WithMessagef(err, insertErr, ConversationParticipants)
}

// DeleteConversation removes a conversation.
func (t *Tables) DeleteConversation(ctx context.Context, id string) error {
	err := t.c.From(Conversations).Eq("id", id).Delete(ctx)
	return errors.WithMessagef(err, deleteErr, Conversations)
}

// PendingRequests lists the requests waiting for the viewer's answer, newest
// first, with the sender's profile.
func (t *Tables) PendingRequests(ctx context.Context,
	viewerID string) ([]ChatRequest, error) {
	var list []ChatRequest
	err := t.c.From(ChatRequests).Select(senderEmbed).
		Eq("receiver_id", viewerID).Eq("status", string(RequestPending)).
		Order("created_at", false).Get(ctx, &list)
	if err != nil {
		return nil, errors.WithMessagef(err, loadErr, ChatRequests)
	}
	return list, nil
}

// Request loads a chat request.
func (t *Tables) Request(ctx context.Context, id string) (ChatRequest, error) {
	var r ChatRequest
	err := t.c.From(ChatRequests).Select("*").Eq("id", id).Single(ctx, &r)
	return r, errors.WithMessagef(err, loadErr, ChatRequests)
}

// CreateRequest creates a pending request from sender to receiver. A second
// request for the same pair fails with a unique violation.
func (t *Tables) CreateRequest(ctx context.Context, senderID,
	receiverID string) (ChatRequest, error) {
	in := ChatRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     RequestPending,
	}
	row := struct {
		SenderID   string        `json:"sender_id"`
		ReceiverID string        `json:"receiver_id"`
		Status     RequestStatus `json:"status"`
	}{in.SenderID, in.ReceiverID, in.Status}

	var out []ChatRequest
	if err := t.c.From(ChatRequests).Insert(ctx, row, &out); err != nil {
		return ChatRequest{}, errors.WithMessagef(err, insertErr,
			ChatRequests)
	}
	if len(out) > 0 {
		return out[0], nil
	}
	return in, nil
}

// SetRequestStatus changes the status of a request.
func (t *Tables) SetRequestStatus(ctx context.Context, id string,
	status RequestStatus) error {
	err := t.c.From(ChatRequests).Eq("id", id).Update(ctx,
		map[string]RequestStatus{"status": status}, nil)
	return errors.WithMessagef(err, updateErr, ChatRequests, id)
}

// Groups lists the groups the viewer is a member of.
func (t *Tables) Groups(ctx context.Context, viewerID string) ([]Group, error) {
	var members []GroupMember
	err := t.c.From(GroupMembers).Select("group_id").Eq("user_id", viewerID).
		Get(ctx, &members)
	if err != nil {
		return nil, errors.WithMessagef(err, loadErr, GroupMembers)
	}
	if len(members) == 0 {
		return nil, nil
	}
	ids := make([]string, len(members))
	for i := range members {
		ids[i] = members[i].GroupID
	}

	var list []Group
	err = t.c.From(Groups).Select("*").In("id", ids).
		Order("created_at", false).Get(ctx, &list)
	if err != nil {
		return nil, errors.WithMessagef(err, loadErr, Groups)
	}
	return list, nil
}

// GroupByHandle loads the group with the handle.
func (t *Tables) GroupByHandle(ctx context.Context,
	handle string) (Group, error) {
	var g Group
	err := t.c.From(Groups).Select("*").Eq("handle", handle).Single(ctx, &g)
	return g, errors.WithMessagef(err, loadErr, Groups)
}

// CreateGroup creates a group. A taken handle fails with a unique violation.
func (t *Tables) CreateGroup(ctx context.Context, g Group) (Group, error) {
	row := struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Handle    string `json:"handle"`
		CreatedBy string `json:"created_by"`
	}{g.ID, g.Name, g.Handle, g.CreatedBy}

	var out []Group
	if err := t.c.From(Groups).Insert(ctx, row, &out); err != nil {
		return Group{}, errors.WithMessagef(err, insertErr, Groups)
	}
	if len(out) > 0 {
		return out[0], nil
	}
	return g, nil
}

// AddGroupMember adds a user to a group.
func (t *Tables) AddGroupMember(ctx context.Context, m GroupMember) error {
	err := t.c.From(GroupMembers).Insert(ctx, m, nil)
	return errors.WithMessagef(err, insertErr, GroupMembers)
}

// DeleteGroup removes a group.
func (t *Tables) DeleteGroup(ctx context.Context, id string) error {
	err := t.c.From(Groups).Eq("id", id).Delete(ctx)
	return errors.WithMessagef(err, deleteErr, Groups)
}

// GroupMembers lists the members of a group.
func (t *Tables) GroupMembers(ctx context.Context,
	groupID string) ([]GroupMember, error) {
	var list []GroupMember
	err := t.c.From(GroupMembers).Select("*").Eq("group_id", groupID).
		Get(ctx, &list)
	if err != nil {
		return nil, errors.WithMessagef(err, loadErr, GroupMembers)
	}
	return list, nil
}

func messageTable(scope messages.Scope) (table, column string) {
	if scope.Group {
		return GroupMessages, "group_id"
	}
	return Messages, "conversation_id"
}
