////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package messages

import (
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// ChangeFunc is called after the list of the open scope changes. It is called
// with the store lock released.
type ChangeFunc func(scope Scope, l List)

// Store holds the message list of the open conversation or group. Every
// change is a reducer applied under the lock, so user actions, the change
// feed and the poller can call it concurrently without losing updates.
type Store struct {
	scope Scope
	list  List

	onChange ChangeFunc

	mux sync.RWMutex
}

// NewStore returns an empty store with no open scope. onChange may be nil.
func NewStore(onChange ChangeFunc) *Store {
	return &Store{onChange: onChange}
}

// Open switches the store to the scope and clears the list.
func (s *Store) Open(scope Scope) {
	s.mux.Lock()
	s.scope = scope
	s.list = nil
	s.mux.Unlock()
	jww.DEBUG.Printf("[MSG] Opened %s", scope)
	s.changed(scope, nil)
}

// Close clears the open scope.
func (s *Store) Close() {
	s.Open(Scope{})
}

// Scope returns the open scope.
func (s *Store) Scope() Scope {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.scope
}

// List returns the current list. The returned List must not be modified.
func (s *Store) List() List {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.list
}

// Apply runs the reducer on the list if scope is still the open scope.
// Returns false if the result was dropped because another scope was opened
// in the meantime.
func (s *Store) Apply(scope Scope, reducer func(List) List) bool {
	s.mux.Lock()
	if scope.IsZero() || scope != s.scope {
		s.mux.Unlock()
		jww.TRACE.Printf("[MSG] Dropped change for %s, open is %s",
			scope, s.Scope())
		return false
	}
	s.list = reducer(s.list)
	l := s.list
	s.mux.Unlock()

	s.changed(scope, l)
	return true
}

// Append adds a local send to the open scope.
func (s *Store) Append(scope Scope, m Message) bool {
	return s.Apply(scope, func(l List) List { return Append(l, m) })
}

// Reconcile merges a fetch of the scope's rows.
func (s *Store) Reconcile(scope Scope, rows []Message) bool {
	return s.Apply(scope, func(l List) List { return Reconcile(l, rows) })
}

// Confirm marks the message as acknowledged by the backend.
func (s *Store) Confirm(scope Scope, id string) bool {
	return s.Apply(scope, func(l List) List { return Confirm(l, id) })
}

// Remove drops the message.
func (s *Store) Remove(scope Scope, id string) bool {
	return s.Apply(scope, func(l List) List { return Remove(l, id) })
}

// Insert merges a message from the change feed.
func (s *Store) Insert(scope Scope, m Message) bool {
	return s.Apply(scope, func(l List) List { return Insert(l, m) })
}

// Patch overwrites the mutable fields of a message.
func (s *Store) Patch(scope Scope, u Update) bool {
	return s.Apply(scope, func(l List) List { return Patch(l, u) })
}

func (s *Store) changed(scope Scope, l List) {
	if s.onChange != nil {
		s.onChange(scope, l)
	}
}
