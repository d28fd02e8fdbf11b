////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package call

import (
	"strconv"
	"time"
)

// Status is the state of a call.
type Status uint8

const (
	// Idle means no call has been made yet.
	Idle Status = iota
	// Ringing means an offer was sent or received and not yet answered.
	Ringing
	// Connected means remote media is flowing.
	Connected
	// Ended means the call was hung up after connecting, or set up failed.
	Ended
	// Missed means the call was abandoned while ringing.
	Missed
)

// transitions lists every allowed status change. Terminal statuses may
// start a new call.
var transitions = map[Status][]Status{
	Idle:      {Ringing},
	Ringing:   {Connected, Missed, Ended},
	Connected: {Ended},
	Ended:     {Ringing},
	Missed:    {Ringing},
}

// String returns the status as a human-readable name.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ringing:
		return "ringing"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	case Missed:
		return "missed"
	default:
		return "INVALID STATUS: " + strconv.Itoa(int(s))
	}
}

// CanTransition returns true if the status may change to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active returns true while a call is in progress.
func (s Status) Active() bool {
	return s == Ringing || s == Connected
}

// Direction tells who placed the call.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
)

// String returns the direction as a human-readable name.
func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Media is the kind of call.
type Media string

const (
	Audio Media = "audio"
	Video Media = "video"
)

// State is a snapshot of the current or last call.
type State struct {
	CallID    string
	Peer      string
	Direction Direction
	Media     Media
	Status    Status

	StartedAt   time.Time
	ConnectedAt time.Time
	EndedAt     time.Time
}
