////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package call

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/chatwave/client/event"
)

// relay delivers broadcast signals to another manager in send order. Signals
// are handed over on a goroutine since the sender holds its own lock.
type relay struct {
	signals chan Signal
	done    chan struct{}
}

func newRelay(t *testing.T) *relay {
	r := &relay{signals: make(chan Signal, 1024), done: make(chan struct{})}
	t.Cleanup(func() { close(r.done) })
	return r
}

func (r *relay) Broadcast(evt string, payload interface{}) error {
	sig := payload.(Signal)
	sig.Event = evt
	select {
	case r.signals <- sig:
	case <-r.done:
	}
	return nil
}

// deliver hands every signal to m until the test ends.
func (r *relay) deliver(m *Manager) {
	go func() {
		for {
			select {
			case sig := <-r.signals:
				_ = m.HandleSignal(sig)
			case <-r.done:
				return
			}
		}
	}()
}

// loopbackFactory creates pion peer connections that gather loopback
// candidates, so two peers in one process can reach each other without a
// network.
func loopbackFactory() PeerFactory {
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	return func() (PeerConnection, error) {
		return api.NewPeerConnection(webrtc.Configuration{})
	}
}

// Tests that two managers using real pion peer connections and the static
// media source reach Connected on both sides, and that hanging up ends both.
func TestManager_PionLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("opens UDP sockets")
	}

	toBob, toAlice := newRelay(t), newRelay(t)
	params := Params{RingTimeout: 20 * time.Second}

	aliceEvents, bobEvents := &fakeReporter{}, &fakeReporter{}
	a := NewManager(alice, toBob, loopbackFactory(), StaticSource{},
		aliceEvents, params)
	b := NewManager(bob, toAlice, loopbackFactory(), StaticSource{},
		bobEvents, params)
	toBob.deliver(b)
	toAlice.deliver(a)

	callID, err := a.Start(bob, Audio)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s := b.State()
		return s.CallID == callID && s.Status == Ringing
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, Incoming, b.State().Direction)

	require.NoError(t, b.Accept())
	require.Eventually(t, func() bool {
		return a.State().Status == Connected && b.State().Status == Connected
	}, 15*time.Second, 20*time.Millisecond)

	a.Hangup()
	require.Equal(t, Ended, a.State().Status)
	require.Eventually(t, func() bool {
		return b.State().Status == Ended
	}, 5*time.Second, 10*time.Millisecond)
	require.True(t, bobEvents.has(event.Call, Connected.String()))
	require.True(t, aliceEvents.has(event.Call, Ended.String()))
}
