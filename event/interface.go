////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package event

import "github.com/chatwave/client/stoppable"

// Priorities used when reporting.
const (
	Debug = iota
	Info
	Warning
	Error
)

// Categories of events surfaced to the UI.
const (
	// Notice is a user-visible failure notice.
	Notice = "notice"

	// Sound asks the UI to play or stop a sound.
	Sound = "sound"

	// Session reports session lifecycle changes such as a forced logout.
	Session = "session"

	// Call reports call state changes.
	Call = "call"
)

// Event types within the categories.
const (
	SoundMessage   = "message"
	SoundRingStart = "ring-start"
	SoundRingStop  = "ring-stop"

	SessionLogout = "logout"
)

// Callback defines the callback functions for client event reports.
type Callback func(priority int, category, evtType, details string)

// Reporter is the reporting API used internally by the session.
type Reporter interface {
	Report(priority int, category, evtType, details string)
}

// Manager reports events and delivers them to registered callbacks.
type Manager interface {
	Reporter

	// RegisterEventCallback registers cb under a unique name. Given
	// categories limit what it receives.
	RegisterEventCallback(name string, cb Callback, categories ...string) error
	UnregisterEventCallback(name string)

	// Dropped returns how many reports were lost to a full queue.
	Dropped() uint64

	EventService() (stoppable.Stoppable, error)
}
