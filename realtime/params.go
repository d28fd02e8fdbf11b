////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package realtime

import (
	"encoding/json"
	"time"
)

// Params configures the realtime connection.
type Params struct {
	// URL of the websocket endpoint, e.g.
	// ws://localhost:54321/realtime/v1/websocket.
	URL string

	// APIKey is the public API key appended to the URL.
	APIKey string

	// HeartbeatPeriod is the delay between heartbeats. A heartbeat still
	// unacknowledged when the next is due closes the connection.
	HeartbeatPeriod time.Duration

	// HandshakeTimeout bounds the websocket handshake.
	HandshakeTimeout time.Duration

	// ReconnectInitial and ReconnectMax bound the exponential backoff between
	// connection attempts.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// RejoinDelay is the wait before rejoining a channel the server closed
	// or errored.
	RejoinDelay time.Duration

	// SendRate is the maximum number of frames written per second.
	SendRate int

	// SendBuffer is the number of frames that may wait to be written,
	// including while disconnected.
	SendBuffer uint
}

// GetDefaultParams returns the default realtime parameters.
func GetDefaultParams() Params {
	return Params{
		URL:              "ws://localhost:54321/realtime/v1/websocket",
		HeartbeatPeriod:  30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReconnectInitial: 1 * time.Second,
		ReconnectMax:     30 * time.Second,
		RejoinDelay:      2 * time.Second,
		SendRate:         10,
		SendBuffer:       256,
	}
}

// GetParameters returns the default parameters overridden by the JSON in
// params, if set.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}
