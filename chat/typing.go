////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/chatwave/client/feed"
	"github.com/chatwave/client/messages"
)

// typingSet maps a chat to the users typing in it and when they last said
// so. It is never modified in place.
type typingSet map[messages.Scope]map[string]time.Time

// withTyping returns a copy of ts with the indicator applied.
func (ts typingSet) withTyping(t feed.Typing, now time.Time) typingSet {
	scope := t.Scope()
	out := make(typingSet, len(ts)+1)
	for k, v := range ts {
		out[k] = v
	}

	users := make(map[string]time.Time, len(ts[scope])+1)
	for u, at := range ts[scope] {
		users[u] = at
	}
	if t.IsTyping {
		users[t.UserID] = now
	} else {
		delete(users, t.UserID)
	}

	if len(users) == 0 {
		delete(out, scope)
	} else {
		out[scope] = users
	}
	return out
}

// active returns the users typing in scope within ttl of now, sorted.
func (ts typingSet) active(scope messages.Scope, now time.Time,
	ttl time.Duration) []string {
	var list []string
	for u, at := range ts[scope] {
		if now.Sub(at) < ttl {
			list = append(list, u)
		}
	}
	sort.Strings(list)
	return list
}

// SetTyping broadcasts whether the user is typing in the open chat. Start
// indicators are rate limited; stop indicators are always sent.
func (s *Session) SetTyping(typing bool) error {
	scope := s.store.Scope()
	if scope.IsZero() {
		return errors.New(noOpenChatErr)
	}
	typer := s.typingSender()
	if typer == nil {
		return errors.Errorf(unavailableErr, "typing indicators")
	}
	if typing && !s.limiter.Allow() {
		return nil
	}
	return typer.SendTyping(scope, typing)
}

// TypingUsers returns the other users currently typing in the open chat.
func (s *Session) TypingUsers() []string {
	scope := s.store.Scope()
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.typing.active(scope, time.Now(), s.params.TypingTTL)
}
