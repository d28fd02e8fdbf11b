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
)

// IsOnline returns true if the user is in the last presence roster.
func (s *Session) IsOnline(userID string) bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	_, ok := s.online[userID]
	return ok
}

// OnlineSince returns when the user came online, if they are online.
func (s *Session) OnlineSince(userID string) (time.Time, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	at, ok := s.online[userID]
	return at, ok
}

// OnlineUsers returns the IDs of all online users, sorted.
func (s *Session) OnlineUsers() []string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	list := make([]string, 0, len(s.online))
	for id := range s.online {
		list = append(list, id)
	}
	sort.Strings(list)
	return list
}
