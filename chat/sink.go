////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"context"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/backend"
	"github.com/chatwave/client/backend/tables"
	"github.com/chatwave/client/call"
	"github.com/chatwave/client/event"
	"github.com/chatwave/client/feed"
	"github.com/chatwave/client/messages"
)

var _ feed.Sink = (*Session)(nil)

// MessageInserted merges a new message into the open chat and marks it read
// if it is addressed to the user. Messages from others in other chats play
// the message sound, once per message.
func (s *Session) MessageInserted(m messages.Message) {
	scope := m.Scope()
	fresh := s.seen.add(m.ID)

	if scope == s.store.Scope() {
		s.store.Insert(scope, m)
		if !scope.Group && m.SenderID != s.self && !m.IsRead {
			s.store.Apply(scope, func(l messages.List) messages.List {
				return messages.MarkRead(l, s.self)
			})
			s.background("mark messages read", func(ctx context.Context) error {
				return s.repo.MarkRead(ctx, scope.ID, s.self)
			})
		}
		return
	}

	if !fresh || m.SenderID == s.self {
		return
	}
	jww.DEBUG.Printf("[CHAT] New message %s in %s", m.ID, scope)
	if s.soundEnabled() {
		s.events.Report(event.Info, event.Sound, event.SoundMessage,
			scope.String())
	}
}

// MessageUpdated patches the message's mutable fields in the open chat.
func (s *Session) MessageUpdated(m messages.Message) {
	s.store.Patch(m.Scope(), messages.UpdateOf(m))
}

// ConversationChanged updates the conversation's last message and reorders
// the list. Unknown conversations are picked up by the next reload.
func (s *Session) ConversationChanged(c tables.Conversation) {
	s.mux.Lock()
	defer s.mux.Unlock()
	for i := range s.conversations {
		if s.conversations[i].ID != c.ID {
			continue
		}
		list := append([]tables.ConversationSummary(nil), s.conversations...)
		list[i].Conversation = c
		tables.SortConversations(list)
		s.conversations = list
		return
	}
}

// ParticipantAdded reloads the conversation list when the user was added
// to a conversation.
func (s *Session) ParticipantAdded(p tables.Participant) {
	if p.UserID != s.self {
		return
	}
	s.background("reload conversations", func(ctx context.Context) error {
		_, err := s.LoadConversations(ctx)
		return err
	})
}

// GroupMemberAdded reloads the group list when the user joined a group.
func (s *Session) GroupMemberAdded(m tables.GroupMember) {
	if m.UserID != s.self {
		return
	}
	s.background("reload groups", func(ctx context.Context) error {
		_, err := s.LoadGroups(ctx)
		return err
	})
}

// RequestChanged keeps the pending request list current. When a request
// the user sent is accepted the new conversation is loaded.
func (s *Session) RequestChanged(r tables.ChatRequest) {
	switch {
	case r.ReceiverID == s.self:
		s.mux.Lock()
		if r.Status == tables.RequestPending {
			s.requests = upsertRequest(s.requests, r)
		} else {
			s.requests = withoutRequest(s.requests, r.ID)
		}
		s.mux.Unlock()
	case r.SenderID == s.self && r.Status == tables.RequestAccepted:
		s.ParticipantAdded(tables.Participant{UserID: s.self})
	}
}

// Typing records another user's typing indicator.
func (s *Session) Typing(t feed.Typing) {
	if t.UserID == s.self {
		return
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	s.typing = s.typing.withTyping(t, time.Now())
}

// CallSignal hands a call signal to the call manager.
func (s *Session) CallSignal(sig call.Signal) {
	calls := s.caller()
	if calls == nil {
		return
	}
	if err := calls.HandleSignal(sig); err != nil {
		jww.WARN.Printf("[CHAT] Failed to handle %s for call %s: %+v",
			sig.Event, sig.CallID, err)
	}
}

// PresenceSynced replaces the online set.
func (s *Session) PresenceSynced(online map[string]time.Time) {
	next := make(map[string]time.Time, len(online))
	for id, at := range online {
		next[id] = at
	}
	s.mux.Lock()
	s.online = next
	s.mux.Unlock()
}

// Joined is called after the feed (re)joined its channel.
func (s *Session) Joined() {
	jww.INFO.Printf("[CHAT] Change feed joined for %s", s.self)
}

// Sweep reloads the conversation list, the open chat and the pending
// requests. It backs up the change feed and is run by the poller, so
// failures are returned without notices. Rejected credentials end the
// session.
func (s *Session) Sweep(ctx context.Context) error {
	if s.LoggedOut() {
		return errors.New(loggedOutErr)
	}
	err := s.loadConversations(ctx)
	if err == nil {
		err = s.loadMessages(ctx)
	}
	if err == nil {
		err = s.loadRequests(ctx)
	}
	if backend.IsAuth(err) {
		s.forceLogout(err.Error())
	}
	return err
}
