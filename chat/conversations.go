////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"context"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/backend/tables"
	"github.com/chatwave/client/messages"
)

// LoadConversations reloads the conversation list. Unread counts are
// recomputed from the unread rows on every load.
func (s *Session) LoadConversations(
	ctx context.Context) ([]tables.ConversationSummary, error) {
	if err := s.loadConversations(ctx); err != nil {
		return nil, s.fail(ActionLoad, err)
	}
	return s.Conversations(), nil
}

func (s *Session) loadConversations(ctx context.Context) error {
	list, err := s.repo.Conversations(ctx, s.self)
	if err != nil {
		return err
	}
	s.mux.Lock()
	s.conversations = list
	s.mux.Unlock()
	return nil
}

// Conversations returns the last loaded conversation list.
func (s *Session) Conversations() []tables.ConversationSummary {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return append([]tables.ConversationSummary(nil), s.conversations...)
}

// OpenConversation makes the conversation the open chat, loads its
// messages and marks them read.
func (s *Session) OpenConversation(ctx context.Context, id string) error {
	return s.open(ctx, messages.Scope{ID: id})
}

// OpenGroup makes the group the open chat and loads its messages.
func (s *Session) OpenGroup(ctx context.Context, id string) error {
	return s.open(ctx, messages.Scope{ID: id, Group: true})
}

func (s *Session) open(ctx context.Context, scope messages.Scope) error {
	s.store.Open(scope)
	if s.prefs != nil {
		if err := s.prefs.SetLastSelectedChat(selectionOf(scope)); err != nil {
			jww.WARN.Printf("[CHAT] Failed to remember %s: %+v", scope, err)
		}
	}

	if err := s.LoadMessages(ctx); err != nil {
		return err
	}
	return s.MarkRead(ctx)
}

// CloseScope closes the open chat.
func (s *Session) CloseScope() {
	s.store.Close()
	if s.prefs != nil {
		if err := s.prefs.ClearLastSelectedChat(); err != nil {
			jww.WARN.Printf("[CHAT] Failed to forget last chat: %+v", err)
		}
	}
}

// OpenScope returns the open chat, if any.
func (s *Session) OpenScope() messages.Scope {
	return s.store.Scope()
}

// Messages returns the open chat's messages. The list must not be modified.
func (s *Session) Messages() messages.List {
	return s.store.List()
}

// LoadMessages reloads the open chat's messages and merges them with the
// messages still being sent.
func (s *Session) LoadMessages(ctx context.Context) error {
	return s.fail(ActionLoad, s.loadMessages(ctx))
}

func (s *Session) loadMessages(ctx context.Context) error {
	scope := s.store.Scope()
	if scope.IsZero() {
		return nil
	}
	rows, err := s.repo.Messages(ctx, scope)
	if err != nil {
		return err
	}
	if !s.store.Reconcile(scope, rows) {
		jww.DEBUG.Printf("[CHAT] %s was closed while loading", scope)
	}
	return nil
}

// MarkRead marks the open conversation's messages from others as read.
// Group messages carry no read flag.
func (s *Session) MarkRead(ctx context.Context) error {
	scope := s.store.Scope()
	if scope.IsZero() {
		return errors.New(noOpenChatErr)
	}
	if scope.Group {
		return nil
	}
	return s.markRead(ctx, scope)
}

func (s *Session) markRead(ctx context.Context, scope messages.Scope) error {
	s.store.Apply(scope, func(l messages.List) messages.List {
		return messages.MarkRead(l, s.self)
	})
	s.mux.Lock()
	list := make([]tables.ConversationSummary, len(s.conversations))
	copy(list, s.conversations)
	for i := range list {
		if list[i].ID == scope.ID {
			list[i].Unread = 0
		}
	}
	s.conversations = list
	s.mux.Unlock()

	if err := s.repo.MarkRead(ctx, scope.ID, s.self); err != nil {
		return s.fail(ActionLoad, err)
	}
	return nil
}

// UnreadTotal returns the sum of unread counts over all conversations.
func (s *Session) UnreadTotal() int {
	s.mux.RLock()
	defer s.mux.RUnlock()
	total := 0
	for _, c := range s.conversations {
		total += c.Unread
	}
	return total
}
