////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatwave/client/stoppable"
)

// Tests that reported events reach a registered callback once the service is
// running.
func TestEventManager_Report(t *testing.T) {
	e := NewEventManager()

	received := make(chan reportableEvent, 1)
	require.NoError(t, e.RegisterEventCallback("ui",
		func(priority int, category, evtType, details string) {
			received <- reportableEvent{priority, category, evtType, details}
		}))

	stop, err := e.EventService()
	require.NoError(t, err)
	defer func() {
		require.NoError(t, stop.Close())
		require.NoError(t, stoppable.WaitForStopped(stop, time.Second))
	}()

	e.Report(Error, Notice, "send", "message failed to send")

	select {
	case evt := <-received:
		require.Equal(t, reportableEvent{
			Error, Notice, "send", "message failed to send"}, evt)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event.")
	}
}

// Error path: tests that registering the same name twice fails.
func TestEventManager_RegisterEventCallback_Duplicate(t *testing.T) {
	e := NewEventManager()
	cb := func(int, string, string, string) {}

	require.NoError(t, e.RegisterEventCallback("ui", cb))
	require.Error(t, e.RegisterEventCallback("ui", cb))

	e.UnregisterEventCallback("ui")
	require.NoError(t, e.RegisterEventCallback("ui", cb))
}

// Tests that Report drops events instead of blocking when the queue is full.
func TestEventManager_Report_QueueFull(t *testing.T) {
	e := NewEventManager().(*eventManager)
	for i := 0; i < eventQueueSize+10; i++ {
		e.Report(Debug, Sound, SoundMessage, "")
	}
	require.Len(t, e.eventCh, eventQueueSize)
	require.EqualValues(t, 10, e.Dropped())
}

// Tests that a callback registered for some categories only receives those,
// and that callbacks run in registration order.
func TestEventManager_RegisterEventCallback_Categories(t *testing.T) {
	e := NewEventManager()

	var mux sync.Mutex
	var got []string
	record := func(name string) Callback {
		return func(_ int, category, _, _ string) {
			mux.Lock()
			got = append(got, name+":"+category)
			mux.Unlock()
		}
	}
	done := make(chan struct{})
	require.NoError(t, e.RegisterEventCallback("sounds", record("sounds"),
		Sound))
	require.NoError(t, e.RegisterEventCallback("all", record("all")))
	require.NoError(t, e.RegisterEventCallback("last",
		func(int, string, string, string) { close(done) }, Session))

	e.Report(Info, Notice, "send", "")
	e.Report(Info, Sound, SoundMessage, "")
	e.Report(Info, Session, SessionLogout, "")

	stop, err := e.EventService()
	require.NoError(t, err)
	defer func() {
		require.NoError(t, stop.Close())
		require.NoError(t, stoppable.WaitForStopped(stop, time.Second))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for events.")
	}

	mux.Lock()
	defer mux.Unlock()
	require.Equal(t, []string{"all:notice", "sounds:sound", "all:sound",
		"all:session"}, got)
}

// Tests that an unregistered callback stops receiving events while the
// others keep their order.
func TestEventManager_UnregisterEventCallback(t *testing.T) {
	e := NewEventManager().(*eventManager)
	cb := func(int, string, string, string) {}
	require.NoError(t, e.RegisterEventCallback("a", cb))
	require.NoError(t, e.RegisterEventCallback("b", cb))
	require.NoError(t, e.RegisterEventCallback("c", cb))

	e.UnregisterEventCallback("b")
	e.UnregisterEventCallback("unknown")

	names := make([]string, 0, len(e.subs))
	for _, s := range e.subs {
		names = append(names, s.name)
	}
	require.Equal(t, []string{"a", "c"}, names)
}
