////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package call

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

// Broadcast events that carry call signalling.
const (
	EventOffer  = "call-offer"
	EventAnswer = "call-answer"
	EventICE    = "ice-candidate"
	EventEnded  = "call-ended"
)

// Reasons sent with EventEnded.
const (
	ReasonHangup   = "hangup"
	ReasonRejected = "rejected"
	ReasonTimeout  = "timeout"
	ReasonFailed   = "failed"
)

// Events lists every signalling event.
var Events = []string{EventOffer, EventAnswer, EventICE, EventEnded}

// Signal is one signalling message. Every signal is broadcast to all
// subscribers and addressed to one user by To.
type Signal struct {
	// Event is the broadcast event the signal travelled as. It is not part
	// of the payload.
	Event string `json:"-"`

	CallID string `json:"call_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Media  Media  `json:"media,omitempty"`

	// SDP is set on offers and answers
	SDP *webrtc.SessionDescription `json:"sdp,omitempty"`

	// Candidate is set on ice-candidate signals
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`

	// Reason is set on call-ended signals
	Reason string `json:"reason,omitempty"`
}

// DecodeSignal decodes the payload of a signalling broadcast.
func DecodeSignal(event string, payload json.RawMessage) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(payload, &s); err != nil {
		return Signal{}, errors.Wrapf(err, "failed to decode %s", event)
	}
	s.Event = event
	return s, nil
}

// Signaller sends signals to the other party.
type Signaller interface {
	Broadcast(event string, payload interface{}) error
}
