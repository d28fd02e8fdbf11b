////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package event surfaces notices, sounds, forced logouts and call state
// changes from the session to whatever UI sits on top of it.
package event

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/stoppable"
)

const (
	// Size of the buffered event queue.
	eventQueueSize = 1000

	reportingStoppable = "EventReporting"

	duplicateCallbackErr = "callback %q is already registered"
)

// reportableEvent is one queued report.
type reportableEvent struct {
	Priority  int
	Category  string
	EventType string
	Details   string
}

// String returns a human-readable version of the event for logging. This
// function adheres to the fmt.Stringer interface.
func (e reportableEvent) String() string {
	return fmt.Sprintf("Event(%d, %s, %s, %s)", e.Priority, e.Category,
		e.EventType, e.Details)
}

// subscriber is a registered callback and the categories it receives. An
// empty set receives every category.
type subscriber struct {
	name       string
	cb         Callback
	categories map[string]bool
}

func (s subscriber) wants(category string) bool {
	return len(s.categories) == 0 || s.categories[category]
}

// eventManager queues reports and delivers them from one goroutine, to
// subscribers in the order they registered.
type eventManager struct {
	eventCh chan reportableEvent
	dropped atomic.Uint64

	mux  sync.RWMutex
	subs []subscriber
}

// NewEventManager returns a Manager with no callbacks. Events are queued but
// not delivered until EventService is started.
func NewEventManager() Manager {
	return &eventManager{
		eventCh: make(chan reportableEvent, eventQueueSize),
	}
}

// Report queues an event for delivery. Reports never block; when the queue
// is full the event is dropped and counted.
func (e *eventManager) Report(
	priority int, category, evtType, details string) {
	re := reportableEvent{
		Priority:  priority,
		Category:  category,
		EventType: evtType,
		Details:   details,
	}
	select {
	case e.eventCh <- re:
		jww.TRACE.Printf("[EVENT] Queued %s", re)
	default:
		e.dropped.Add(1)
		jww.ERROR.Printf("[EVENT] Queue full, dropping %s", re)
	}
}

// RegisterEventCallback registers cb under name for the given categories,
// or for all categories if none are given.
func (e *eventManager) RegisterEventCallback(name string, cb Callback,
	categories ...string) error {
	e.mux.Lock()
	defer e.mux.Unlock()

	for _, s := range e.subs {
		if s.name == name {
			return errors.Errorf(duplicateCallbackErr, name)
		}
	}

	s := subscriber{name: name, cb: cb}
	if len(categories) > 0 {
		s.categories = make(map[string]bool, len(categories))
		for _, c := range categories {
			s.categories[c] = true
		}
	}
	e.subs = append(e.subs, s)
	return nil
}

// UnregisterEventCallback removes the callback registered under name.
func (e *eventManager) UnregisterEventCallback(name string) {
	e.mux.Lock()
	defer e.mux.Unlock()

	for i, s := range e.subs {
		if s.name == name {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// Dropped returns how many reports were lost to a full queue.
func (e *eventManager) Dropped() uint64 {
	return e.dropped.Load()
}

// EventService starts the delivery goroutine.
func (e *eventManager) EventService() (stoppable.Stoppable, error) {
	stop := stoppable.NewSingle(reportingStoppable)
	go e.deliver(stop)
	return stop, nil
}

// deliver hands each queued event to the subscribers that want it until
// stopped. Callbacks run inline, so a slow one backs up the queue.
func (e *eventManager) deliver(stop *stoppable.Single) {
	jww.DEBUG.Print("[EVENT] Delivery started")
	for {
		select {
		case <-stop.Quit():
			jww.DEBUG.Print("[EVENT] Delivery stopped")
			stop.ToStopped()
			return
		case evt := <-e.eventCh:
			e.mux.RLock()
			subs := e.subs
			e.mux.RUnlock()

			for _, s := range subs {
				if s.wants(evt.Category) {
					s.cb(evt.Priority, evt.Category, evt.EventType,
						evt.Details)
				}
			}
		}
	}
}
