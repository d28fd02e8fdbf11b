////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"sync"

	"github.com/golang-collections/collections/queue"
	"github.com/golang-collections/collections/set"
)

// seen remembers the most recent message IDs so duplicate deliveries of the
// same insert are only acted on once. The oldest ID is forgotten when full.
type seen struct {
	ids   *set.Set
	order *queue.Queue
	limit int
	mux   sync.Mutex
}

func newSeen(limit int) *seen {
	if limit <= 0 {
		limit = 1
	}
	return &seen{ids: set.New(), order: queue.New(), limit: limit}
}

// add records id and returns true if it was not already known.
func (s *seen) add(id string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.ids.Has(id) {
		return false
	}
	s.ids.Insert(id)
	s.order.Enqueue(id)
	for s.order.Len() > s.limit {
		s.ids.Remove(s.order.Dequeue())
	}
	return true
}
