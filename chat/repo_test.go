////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/chatwave/client/backend"
	"github.com/chatwave/client/backend/tables"
	"github.com/chatwave/client/messages"
	"github.com/chatwave/client/prefs"
)

var (
	errNotFound = &backend.Error{Status: 406, Code: backend.CodeNotFound,
		Message: "JSON object requested, multiple (or no) rows returned"}
	errDuplicate = &backend.Error{Status: 409,
		Code: backend.CodeUniqueViolation, Message: "duplicate key value"}
	errExpired = &backend.Error{Status: 401, Code: backend.CodeJWTExpired,
		Message: "JWT expired"}
)

// fakeRepo is an in-memory Repository. Methods named in fail return the
// given error instead of running.
type fakeRepo struct {
	mux sync.Mutex

	profiles      map[string]tables.Profile
	conversations map[string]tables.Conversation
	participants  map[string][]string
	messages      []messages.Message
	requests      map[string]tables.ChatRequest
	groups        map[string]tables.Group
	members       map[string][]tables.GroupMember

	fail  map[string]error
	calls []string
	seq   int
}

func newFakeRepo(users ...string) *fakeRepo {
	r := &fakeRepo{
		profiles:      map[string]tables.Profile{},
		conversations: map[string]tables.Conversation{},
		participants:  map[string][]string{},
		requests:      map[string]tables.ChatRequest{},
		groups:        map[string]tables.Group{},
		members:       map[string][]tables.GroupMember{},
		fail:          map[string]error{},
	}
	for _, u := range users {
		r.profiles[u] = tables.Profile{ID: u, Username: u}
	}
	return r
}

func (r *fakeRepo) call(method string) error {
	r.calls = append(r.calls, method)
	return r.fail[method]
}

func (r *fakeRepo) setFail(method string, err error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.fail[method] = err
}

func (r *fakeRepo) called(method string) int {
	r.mux.Lock()
	defer r.mux.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == method {
			n++
		}
	}
	return n
}

// addConversation creates a conversation between two users directly.
func (r *fakeRepo) addConversation(id string, users ...string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.conversations[id] = tables.Conversation{ID: id, CreatedAt: time.Now()}
	r.participants[id] = users
}

// addMessage stores a message as if another client had sent it.
func (r *fakeRepo) addMessage(m messages.Message) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.messages = append(r.messages, m)
}

func (r *fakeRepo) message(id string) (messages.Message, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			return m, true
		}
	}
	return messages.Message{}, false
}

func (r *fakeRepo) Profile(_ context.Context, userID string) (tables.Profile,
	error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("Profile"); err != nil {
		return tables.Profile{}, err
	}
	p, ok := r.profiles[userID]
	if !ok {
		return tables.Profile{}, errNotFound
	}
	return p, nil
}

func (r *fakeRepo) ProfileByUsername(_ context.Context,
	username string) (tables.Profile, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("ProfileByUsername"); err != nil {
		return tables.Profile{}, err
	}
	for _, p := range r.profiles {
		if p.Username == username {
			return p, nil
		}
	}
	return tables.Profile{}, errNotFound
}

func (r *fakeRepo) SetAvatar(_ context.Context, userID, url string) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("SetAvatar"); err != nil {
		return err
	}
	p := r.profiles[userID]
	p.AvatarURL = url
	r.profiles[userID] = p
	return nil
}

func (r *fakeRepo) TouchLastSeen(_ context.Context, userID string,
	at time.Time) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("TouchLastSeen"); err != nil {
		return err
	}
	p := r.profiles[userID]
	p.LastSeen = at
	r.profiles[userID] = p
	return nil
}

func (r *fakeRepo) Conversations(_ context.Context,
	viewerID string) ([]tables.ConversationSummary, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("Conversations"); err != nil {
		return nil, err
	}

	counts := messages.CountUnread(r.messages, viewerID)
	var list []tables.ConversationSummary
	for id, users := range r.participants {
		if indexOf(users, viewerID) < 0 {
			continue
		}
		sum := tables.ConversationSummary{
			Conversation: r.conversations[id],
			Unread:       counts[id],
		}
		for _, u := range users {
			if u != viewerID {
				sum.Partner = r.profiles[u]
			}
		}
		list = append(list, sum)
	}
	tables.SortConversations(list)
	return list, nil
}

func (r *fakeRepo) CreateConversation(_ context.Context,
	id string) (tables.Conversation, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("CreateConversation"); err != nil {
		return tables.Conversation{}, err
	}
	c := tables.Conversation{ID: id, CreatedAt: time.Now()}
	r.conversations[id] = c
	return c, nil
}

func (r *fakeRepo) AddParticipants(_ context.Context, conversationID string,
	userIDs []string) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("AddParticipants"); err != nil {
		return err
	}
	r.participants[conversationID] = append(
		r.participants[conversationID], userIDs...)
	return nil
}

func (r *fakeRepo) DeleteConversation(_ context.Context, id string) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("DeleteConversation"); err != nil {
		return err
	}
	delete(r.conversations, id)
	delete(r.participants, id)
	return nil
}

func (r *fakeRepo) TouchConversation(_ context.Context, conversationID,
	text string, at time.Time) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("TouchConversation"); err != nil {
		return err
	}
	c := r.conversations[conversationID]
	c.LastMessage = text
	c.LastMessageAt = at
	r.conversations[conversationID] = c
	return nil
}

func (r *fakeRepo) Messages(_ context.Context,
	scope messages.Scope) ([]messages.Message, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("Messages"); err != nil {
		return nil, err
	}
	var rows []messages.Message
	for _, m := range r.messages {
		if m.Scope() == scope {
			rows = append(rows, m)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return rows, nil
}

func (r *fakeRepo) InsertMessage(_ context.Context, m messages.Message) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("InsertMessage"); err != nil {
		return err
	}
	for _, cur := range r.messages {
		if cur.ID == m.ID {
			return errDuplicate
		}
	}
	m.Optimistic = false
	r.messages = append(r.messages, m)
	return nil
}

func (r *fakeRepo) SetReactions(_ context.Context, _ messages.Scope,
	messageID string, reactions messages.Reactions) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("SetReactions"); err != nil {
		return err
	}
	for i := range r.messages {
		if r.messages[i].ID == messageID {
			r.messages[i].Reactions = reactions
			return nil
		}
	}
	return errNotFound
}

func (r *fakeRepo) SoftDelete(_ context.Context, _ messages.Scope, messageID,
	senderID string) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("SoftDelete"); err != nil {
		return err
	}
	for i := range r.messages {
		m := &r.messages[i]
		if m.ID == messageID && m.SenderID == senderID {
			m.Content = messages.DeletedContent
			m.FileURL, m.FileType, m.FileName = "", "", ""
			return nil
		}
	}
	return errNotFound
}

func (r *fakeRepo) MarkRead(_ context.Context, conversationID,
	viewerID string) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("MarkRead"); err != nil {
		return err
	}
	for i := range r.messages {
		m := &r.messages[i]
		if m.ConversationID == conversationID && m.SenderID != viewerID {
			m.IsRead = true
		}
	}
	return nil
}

func (r *fakeRepo) PendingRequests(_ context.Context,
	viewerID string) ([]tables.ChatRequest, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("PendingRequests"); err != nil {
		return nil, err
	}
	var list []tables.ChatRequest
	for _, req := range r.requests {
		if req.ReceiverID == viewerID && req.Status == tables.RequestPending {
			sender := r.profiles[req.SenderID]
			req.Sender = &sender
			list = append(list, req)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *fakeRepo) Request(_ context.Context, id string) (tables.ChatRequest,
	error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("Request"); err != nil {
		return tables.ChatRequest{}, err
	}
	req, ok := r.requests[id]
	if !ok {
		return tables.ChatRequest{}, errNotFound
	}
	return req, nil
}

func (r *fakeRepo) CreateRequest(_ context.Context, senderID,
	receiverID string) (tables.ChatRequest, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("CreateRequest"); err != nil {
		return tables.ChatRequest{}, err
	}
	for _, req := range r.requests {
		if req.SenderID == senderID && req.ReceiverID == receiverID &&
			req.Status == tables.RequestPending {
			return tables.ChatRequest{}, errDuplicate
		}
	}
	r.seq++
	req := tables.ChatRequest{
		ID:         "req-" + strconv.Itoa(r.seq),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     tables.RequestPending,
		CreatedAt:  time.Now(),
	}
	r.requests[req.ID] = req
	return req, nil
}

func (r *fakeRepo) SetRequestStatus(_ context.Context, id string,
	status tables.RequestStatus) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("SetRequestStatus"); err != nil {
		return err
	}
	req, ok := r.requests[id]
	if !ok {
		return errNotFound
	}
	req.Status = status
	r.requests[id] = req
	return nil
}

func (r *fakeRepo) Groups(_ context.Context, viewerID string) ([]tables.Group,
	error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("Groups"); err != nil {
		return nil, err
	}
	var list []tables.Group
	for id, members := range r.members {
		for _, m := range members {
			if m.UserID == viewerID {
				list = append(list, r.groups[id])
			}
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (r *fakeRepo) GroupByHandle(_ context.Context,
	handle string) (tables.Group, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("GroupByHandle"); err != nil {
		return tables.Group{}, err
	}
	for _, g := range r.groups {
		if g.Handle == handle {
			return g, nil
		}
	}
	return tables.Group{}, errNotFound
}

func (r *fakeRepo) CreateGroup(_ context.Context,
	g tables.Group) (tables.Group, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("CreateGroup"); err != nil {
		return tables.Group{}, err
	}
	for _, cur := range r.groups {
		if cur.Handle == g.Handle {
			return tables.Group{}, errDuplicate
		}
	}
	g.CreatedAt = time.Now()
	r.groups[g.ID] = g
	return g, nil
}

func (r *fakeRepo) AddGroupMember(_ context.Context,
	m tables.GroupMember) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("AddGroupMember"); err != nil {
		return err
	}
	for _, cur := range r.members[m.GroupID] {
		if cur.UserID == m.UserID {
			return errDuplicate
		}
	}
	r.members[m.GroupID] = append(r.members[m.GroupID], m)
	return nil
}

func (r *fakeRepo) DeleteGroup(_ context.Context, id string) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if err := r.call("DeleteGroup"); err != nil {
		return err
	}
	delete(r.groups, id)
	delete(r.members, id)
	return nil
}

func indexOf(list []string, s string) int {
	for i, cur := range list {
		if cur == s {
			return i
		}
	}
	return -1
}

type reported struct {
	priority int
	category string
	evtType  string
	details  string
}

// fakeReporter records every reported event.
type fakeReporter struct {
	mux    sync.Mutex
	events []reported
}

func (r *fakeReporter) Report(priority int, category, evtType,
	details string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.events = append(r.events, reported{priority, category, evtType, details})
}

func (r *fakeReporter) of(category string) []reported {
	r.mux.Lock()
	defer r.mux.Unlock()
	var out []reported
	for _, e := range r.events {
		if e.category == category {
			out = append(out, e)
		}
	}
	return out
}

// fakeTyper records typing broadcasts.
type fakeTyper struct {
	mux  sync.Mutex
	sent []bool
}

func (f *fakeTyper) SendTyping(_ messages.Scope, typing bool) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.sent = append(f.sent, typing)
	return nil
}

type testSession struct {
	*Session
	repo    *fakeRepo
	events  *fakeReporter
	logouts []string
}

// newTestSession starts a session for self on repo. p may be nil.
func newTestSession(t *testing.T, repo *fakeRepo, self string,
	p *prefs.Prefs) *testSession {
	ts := &testSession{repo: repo, events: &fakeReporter{}}
	deps := Deps{
		Repo:   repo,
		Files:  &fakeFiles{},
		Events: ts.events,
		OnLogout: func(reason string) {
			ts.logouts = append(ts.logouts, reason)
		},
	}
	if p != nil {
		deps.Prefs = p
	}
	ts.Session = NewSession(self, deps, GetDefaultParams(), nil)
	if err := ts.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start session of %s: %+v", self, err)
	}
	return ts
}

// fakeFiles is an Uploader that returns predictable URLs.
type fakeFiles struct {
	err error
}

func (f *fakeFiles) UploadFile(_ context.Context, owner, fileName string,
	_ []byte) (messages.Attachment, error) {
	if f.err != nil {
		return messages.Attachment{}, f.err
	}
	return messages.Attachment{URL: "https://files/" + owner + "/" + fileName,
		MIMEType: "text/plain; charset=utf-8", FileName: fileName}, nil
}

func (f *fakeFiles) UploadVoice(_ context.Context, owner string,
	_ []byte) (messages.Attachment, error) {
	if f.err != nil {
		return messages.Attachment{}, f.err
	}
	return messages.Attachment{URL: "https://voice/" + owner + "/voice.webm",
		MIMEType: "audio/webm", FileName: "voice.webm"}, nil
}

func (f *fakeFiles) UploadAvatar(_ context.Context, owner string,
	_ []byte) (messages.Attachment, error) {
	if f.err != nil {
		return messages.Attachment{}, f.err
	}
	return messages.Attachment{URL: "https://avatars/" + owner + ".png",
		MIMEType: "image/png", FileName: "avatar.png"}, nil
}
