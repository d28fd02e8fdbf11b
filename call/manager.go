////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package call

import (
	"sync"
	"time"

	"github.com/golang-collections/collections/queue"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/event"
)

// Error messages.
const (
	callInProgressErr = "a %s call with %s is already %s"
	noIncomingCallErr = "no incoming call to %s"
	captureErr        = "failed to capture %s media"
	peerErr           = "failed to set up peer connection"
	signalErr         = "failed to send %s to %s"
	unknownSignalErr  = "unknown signal event %q"
	missingSDPErr     = "%s for call %s carries no session description"
)

// Manager runs at most one call at a time over a Signaller. Incoming
// signals are passed to HandleSignal; pion callbacks never take the
// manager's lock on the goroutine that invoked them.
type Manager struct {
	self      string
	signaller Signaller
	newPeer   PeerFactory
	media     MediaSource
	events    event.Reporter
	params    Params

	mux     sync.Mutex
	state   State
	gen     uint64
	pc      PeerConnection
	capture Capture
	offer   *webrtc.SessionDescription
	remote  bool
	pending *queue.Queue
	out     *outbox
	timer   *time.Timer
	ringing bool
}

// NewManager creates a call manager for the local user self.
func NewManager(self string, signaller Signaller, newPeer PeerFactory,
	media MediaSource, events event.Reporter, params Params) *Manager {
	return &Manager{
		self:      self,
		signaller: signaller,
		newPeer:   newPeer,
		media:     media,
		events:    events,
		params:    params,
		pending:   queue.New(),
	}
}

// State returns a snapshot of the current or last call.
func (m *Manager) State() State {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.state
}

// Start places a call to peer. On success the call is ringing and its ID is
// returned. Any failure releases what was acquired and leaves the previous
// state untouched.
func (m *Manager) Start(peer string, media Media) (string, error) {
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.state.Status.Active() {
		return "", errors.Errorf(callInProgressErr, m.state.Media,
			m.state.Peer, m.state.Status)
	}

	callID := uuid.NewString()
	m.gen++
	m.resetNegotiation()

	capture, err := m.media.Capture(media)
	if err != nil {
		return "", errors.Wrapf(err, captureErr, media)
	}
	m.capture = capture

	if err = m.setupPeer(callID, peer); err != nil {
		m.release()
		return "", err
	}

	offer, err := m.pc.CreateOffer(nil)
	if err == nil {
		err = m.pc.SetLocalDescription(offer)
	}
	if err != nil {
		m.release()
		return "", errors.Wrap(err, peerErr)
	}

	sig := Signal{
		Event:  EventOffer,
		CallID: callID,
		From:   m.self,
		To:     peer,
		Media:  media,
		SDP:    &offer,
	}
	if err = m.signaller.Broadcast(EventOffer, sig); err != nil {
		m.release()
		return "", errors.WithMessagef(err, signalErr, EventOffer, peer)
	}
	m.out.ready()

	m.state = State{
		CallID:    callID,
		Peer:      peer,
		Direction: Outgoing,
		Media:     media,
		Status:    Ringing,
		StartedAt: time.Now(),
	}
	m.report()
	m.armTimer()

	jww.INFO.Printf("[CALL] Calling %s (%s, call %s)", peer, media, callID)
	return callID, nil
}

// Accept answers the ringing incoming call. A failure ends the call and
// tells the caller.
func (m *Manager) Accept() error {
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.state.Status != Ringing || m.state.Direction != Incoming ||
		m.offer == nil {
		return errors.Errorf(noIncomingCallErr, "accept")
	}
	m.stopRinging()

	if err := m.answer(); err != nil {
		jww.ERROR.Printf("[CALL] Failed to accept call %s from %s: %+v",
			m.state.CallID, m.state.Peer, err)
		m.terminate(Ended, ReasonFailed, true)
		return err
	}

	jww.INFO.Printf("[CALL] Accepted call %s from %s", m.state.CallID,
		m.state.Peer)
	return nil
}

// answer does the callee's half of the negotiation.
func (m *Manager) answer() error {
	capture, err := m.media.Capture(m.state.Media)
	if err != nil {
		return errors.Wrapf(err, captureErr, m.state.Media)
	}
	m.capture = capture

	if err = m.setupPeer(m.state.CallID, m.state.Peer); err != nil {
		return err
	}

	if err = m.pc.SetRemoteDescription(*m.offer); err != nil {
		return errors.Wrap(err, peerErr)
	}
	m.remote = true
	m.flushCandidates()

	answer, err := m.pc.CreateAnswer(nil)
	if err == nil {
		err = m.pc.SetLocalDescription(answer)
	}
	if err != nil {
		return errors.Wrap(err, peerErr)
	}

	sig := Signal{
		Event:  EventAnswer,
		CallID: m.state.CallID,
		From:   m.self,
		To:     m.state.Peer,
		Media:  m.state.Media,
		SDP:    &answer,
	}
	if err = m.signaller.Broadcast(EventAnswer, sig); err != nil {
		return errors.WithMessagef(err, signalErr, EventAnswer, m.state.Peer)
	}
	m.out.ready()
	return nil
}

// Reject declines the ringing incoming call.
func (m *Manager) Reject() error {
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.state.Status != Ringing || m.state.Direction != Incoming {
		return errors.Errorf(noIncomingCallErr, "reject")
	}
	m.terminate(Missed, ReasonRejected, true)
	return nil
}

// Hangup ends the current call and tells the peer. A call still ringing is
// recorded as missed. It does nothing when no call is active.
func (m *Manager) Hangup() {
	m.mux.Lock()
	defer m.mux.Unlock()

	switch m.state.Status {
	case Ringing:
		m.terminate(Missed, ReasonHangup, true)
	case Connected:
		m.terminate(Ended, ReasonHangup, true)
	}
}

// HandleSignal applies a signal received from the channel. Signals not
// addressed to the local user, and signals for other calls, are ignored.
func (m *Manager) HandleSignal(s Signal) error {
	if s.To != m.self || s.From == m.self {
		return nil
	}

	m.mux.Lock()
	defer m.mux.Unlock()

	switch s.Event {
	case EventOffer:
		return m.handleOffer(s)
	case EventAnswer:
		return m.handleAnswer(s)
	case EventICE:
		m.handleCandidate(s)
	case EventEnded:
		m.handleEnded(s)
	default:
		return errors.Errorf(unknownSignalErr, s.Event)
	}
	return nil
}

func (m *Manager) handleOffer(s Signal) error {
	if m.state.Status.Active() {
		jww.INFO.Printf("[CALL] Ignoring offer %s from %s while %s with %s",
			s.CallID, s.From, m.state.Status, m.state.Peer)
		return nil
	}
	if s.SDP == nil {
		return errors.Errorf(missingSDPErr, s.Event, s.CallID)
	}

	m.gen++
	m.resetNegotiation()
	offer := *s.SDP
	m.offer = &offer

	media := s.Media
	if media == "" {
		media = Audio
	}
	m.state = State{
		CallID:    s.CallID,
		Peer:      s.From,
		Direction: Incoming,
		Media:     media,
		Status:    Ringing,
		StartedAt: time.Now(),
	}
	m.report()
	m.ringing = true
	m.events.Report(event.Info, event.Sound, event.SoundRingStart, s.CallID)
	m.armTimer()

	jww.INFO.Printf("[CALL] Incoming %s call %s from %s", media, s.CallID,
		s.From)
	return nil
}

func (m *Manager) handleAnswer(s Signal) error {
	if !m.current(s) || m.state.Direction != Outgoing || m.pc == nil ||
		m.remote {
		jww.DEBUG.Printf("[CALL] Ignoring answer for call %s", s.CallID)
		return nil
	}
	if s.SDP == nil {
		return errors.Errorf(missingSDPErr, s.Event, s.CallID)
	}

	if err := m.pc.SetRemoteDescription(*s.SDP); err != nil {
		jww.ERROR.Printf("[CALL] Failed to apply answer for call %s: %+v",
			s.CallID, err)
		m.terminate(Ended, ReasonFailed, true)
		return errors.Wrap(err, peerErr)
	}
	m.remote = true
	m.flushCandidates()
	return nil
}

func (m *Manager) handleCandidate(s Signal) {
	if !m.current(s) || s.Candidate == nil {
		return
	}
	if m.pc == nil || !m.remote {
		m.pending.Enqueue(*s.Candidate)
		return
	}
	if err := m.pc.AddICECandidate(*s.Candidate); err != nil {
		jww.WARN.Printf("[CALL] Failed to add candidate for call %s: %+v",
			s.CallID, err)
	}
}

func (m *Manager) handleEnded(s Signal) {
	if !m.current(s) {
		return
	}
	jww.INFO.Printf("[CALL] %s ended call %s: %s", s.From, s.CallID,
		s.Reason)
	if m.state.Status == Connected {
		m.terminate(Ended, s.Reason, false)
	} else {
		m.terminate(Missed, s.Reason, false)
	}
}

// current returns true if s belongs to the active call.
func (m *Manager) current(s Signal) bool {
	return m.state.Status.Active() && s.CallID == m.state.CallID &&
		s.From == m.state.Peer
}

// setupPeer creates the peer connection for a call, hooks its callbacks and
// adds the captured tracks.
func (m *Manager) setupPeer(callID, peer string) error {
	pc, err := m.newPeer()
	if err != nil {
		return errors.Wrap(err, peerErr)
	}
	m.pc = pc

	gen := m.gen
	m.out = newOutbox(func(c webrtc.ICECandidateInit) {
		sig := Signal{
			Event:     EventICE,
			CallID:    callID,
			From:      m.self,
			To:        peer,
			Candidate: &c,
		}
		if err := m.signaller.Broadcast(EventICE, sig); err != nil {
			jww.WARN.Printf("[CALL] Failed to send candidate for call %s: "+
				"%+v", callID, err)
		}
	})
	out := m.out

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		out.push(c.ToJSON())
	})
	pc.OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {
		go m.connected(gen)
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateConnected:
			go m.connected(gen)
		case webrtc.PeerConnectionStateFailed:
			go m.peerFailed(gen)
		}
	})

	for _, track := range m.capture.Tracks() {
		if _, err = pc.AddTrack(track); err != nil {
			return errors.Wrap(err, peerErr)
		}
	}
	return nil
}

// connected moves a ringing call to Connected on its first remote track, or
// when the peer connection reports connected if no track arrives first.
func (m *Manager) connected(gen uint64) {
	m.mux.Lock()
	defer m.mux.Unlock()

	if gen != m.gen || m.state.Status != Ringing {
		return
	}
	m.stopTimer()
	m.state.Status = Connected
	m.state.ConnectedAt = time.Now()
	m.report()
	jww.INFO.Printf("[CALL] Call %s with %s connected", m.state.CallID,
		m.state.Peer)
}

func (m *Manager) peerFailed(gen uint64) {
	m.mux.Lock()
	defer m.mux.Unlock()

	if gen != m.gen || !m.state.Status.Active() {
		return
	}
	jww.WARN.Printf("[CALL] Peer connection for call %s failed",
		m.state.CallID)
	m.terminate(Ended, ReasonFailed, true)
}

// ringTimeout ends a call that has not connected. A call nobody answered is
// missed; one that was answered but never carried media has ended.
func (m *Manager) ringTimeout(gen uint64) {
	m.mux.Lock()
	defer m.mux.Unlock()

	if gen != m.gen || m.state.Status != Ringing {
		return
	}
	if m.remote {
		jww.WARN.Printf("[CALL] Call %s with %s never connected",
			m.state.CallID, m.state.Peer)
		m.terminate(Ended, ReasonTimeout, true)
		return
	}
	jww.INFO.Printf("[CALL] %s call %s with %s was not answered",
		m.state.Direction, m.state.CallID, m.state.Peer)
	m.terminate(Missed, ReasonTimeout, true)
}

// armTimer starts the ring timeout of the current call. It stays armed
// until the call connects or ends.
func (m *Manager) armTimer() {
	m.stopTimer()
	if m.params.RingTimeout <= 0 {
		return
	}
	gen := m.gen
	m.timer = time.AfterFunc(m.params.RingTimeout, func() {
		m.ringTimeout(gen)
	})
}

// terminate moves the active call to a terminal status, optionally telling
// the peer, and releases its resources.
func (m *Manager) terminate(next Status, reason string, notify bool) {
	if !m.state.Status.CanTransition(next) {
		jww.ERROR.Printf("[CALL] Invalid transition %s -> %s for call %s",
			m.state.Status, next, m.state.CallID)
		return
	}

	if notify {
		sig := Signal{
			Event:  EventEnded,
			CallID: m.state.CallID,
			From:   m.self,
			To:     m.state.Peer,
			Reason: reason,
		}
		if err := m.signaller.Broadcast(EventEnded, sig); err != nil {
			jww.WARN.Printf("[CALL] "+signalErr+": %+v", EventEnded,
				m.state.Peer, err)
		}
	}

	m.stopRinging()
	m.release()
	m.gen++

	m.state.Status = next
	m.state.EndedAt = time.Now()
	m.report()
}

// release frees the peer connection and local media of the call.
func (m *Manager) release() {
	m.stopTimer()
	if m.out != nil {
		m.out.close()
		m.out = nil
	}
	if m.pc != nil {
		if err := m.pc.Close(); err != nil {
			jww.WARN.Printf("[CALL] Failed to close peer connection: %+v", err)
		}
		m.pc = nil
	}
	if m.capture != nil {
		m.capture.Stop()
		m.capture = nil
	}
	m.resetNegotiation()
}

func (m *Manager) resetNegotiation() {
	m.offer = nil
	m.remote = false
	m.pending = queue.New()
}

// flushCandidates applies buffered remote candidates in receipt order.
func (m *Manager) flushCandidates() {
	for m.pending.Len() > 0 {
		c := m.pending.Dequeue().(webrtc.ICECandidateInit)
		if err := m.pc.AddICECandidate(c); err != nil {
			jww.WARN.Printf("[CALL] Failed to add buffered candidate for "+
				"call %s: %+v", m.state.CallID, err)
		}
	}
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) stopRinging() {
	if !m.ringing {
		return
	}
	m.ringing = false
	m.events.Report(event.Info, event.Sound, event.SoundRingStop,
		m.state.CallID)
}

func (m *Manager) report() {
	m.events.Report(event.Info, event.Call, m.state.Status.String(),
		m.state.CallID)
}

// outbox holds local candidates until the description they belong to has
// been sent, then forwards them in the order they were gathered.
type outbox struct {
	mux    sync.Mutex
	send   func(webrtc.ICECandidateInit)
	held   []webrtc.ICECandidateInit
	open   bool
	closed bool
}

func newOutbox(send func(webrtc.ICECandidateInit)) *outbox {
	return &outbox{send: send}
}

func (o *outbox) push(c webrtc.ICECandidateInit) {
	o.mux.Lock()
	defer o.mux.Unlock()
	switch {
	case o.closed:
	case o.open:
		o.send(c)
	default:
		o.held = append(o.held, c)
	}
}

func (o *outbox) ready() {
	o.mux.Lock()
	defer o.mux.Unlock()
	if o.closed || o.open {
		return
	}
	o.open = true
	for _, c := range o.held {
		o.send(c)
	}
	o.held = nil
}

func (o *outbox) close() {
	o.mux.Lock()
	defer o.mux.Unlock()
	o.closed = true
	o.held = nil
}
