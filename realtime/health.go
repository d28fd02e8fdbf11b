////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package realtime

import (
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/stoppable"
)

// Monitor reports the health of the realtime connection. The connection is
// healthy while heartbeats are acknowledged.
type Monitor interface {
	AddHealthCallback(f func(isHealthy bool)) uint64
	RemoveHealthCallback(id uint64)
	IsHealthy() bool
	WasHealthy() bool
}

// tracker turns heartbeat acknowledgements into health callbacks.
type tracker struct {
	timeout time.Duration

	// Receives a value for every acknowledged heartbeat and false when the
	// connection drops
	heartbeat chan bool

	funcs   map[uint64]func(isHealthy bool)
	funcsID uint64

	isHealthy  bool
	wasHealthy bool
	mux        sync.RWMutex
}

func newTracker(timeout time.Duration) *tracker {
	return &tracker{
		timeout:   timeout,
		heartbeat: make(chan bool, 100),
		funcs:     map[uint64]func(isHealthy bool){},
	}
}

// AddHealthCallback registers a function called on every health change.
// It is called once right away with the current health. Returns an ID for
// RemoveHealthCallback.
func (t *tracker) AddHealthCallback(f func(isHealthy bool)) uint64 {
	t.mux.Lock()
	id := t.funcsID
	t.funcs[id] = f
	t.funcsID++
	t.mux.Unlock()

	go f(t.IsHealthy())

	return id
}

// RemoveHealthCallback unregisters a health callback.
func (t *tracker) RemoveHealthCallback(id uint64) {
	t.mux.Lock()
	delete(t.funcs, id)
	t.mux.Unlock()
}

func (t *tracker) IsHealthy() bool {
	t.mux.RLock()
	defer t.mux.RUnlock()
	return t.isHealthy
}

// WasHealthy returns true if the connection was ever healthy.
func (t *tracker) WasHealthy() bool {
	t.mux.RLock()
	defer t.mux.RUnlock()
	return t.wasHealthy
}

// report feeds a heartbeat result to the tracker without blocking.
func (t *tracker) report(ok bool) {
	select {
	case t.heartbeat <- ok:
	default:
		jww.WARN.Printf("[RT] Health tracker backlogged, dropping heartbeat")
	}
}

func (t *tracker) setHealth(h bool) {
	t.mux.Lock()
	changed := t.isHealthy != h
	t.wasHealthy = t.wasHealthy || h
	t.isHealthy = h
	funcs := make([]func(bool), 0, len(t.funcs))
	for _, f := range t.funcs {
		funcs = append(funcs, f)
	}
	t.mux.Unlock()

	if changed {
		for _, f := range funcs {
			go f(h)
		}
	}
}

// start runs until stopped. Health goes bad when no heartbeat arrives within
// the timeout.
func (t *tracker) start(stop *stoppable.Single) {
	for {
		select {
		case <-stop.Quit():
			t.setHealth(false)
			stop.ToStopped()
			return
		case ok := <-t.heartbeat:
			t.setHealth(ok)
		case <-time.After(t.timeout):
			if t.IsHealthy() {
				jww.WARN.Printf("[RT] No heartbeat for %s, realtime "+
					"connection is no longer healthy", t.timeout)
			}
			t.setHealth(false)
		}
	}
}
