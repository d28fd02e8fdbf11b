////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package app

// params.go defines the top level parameters, which embed the parameters of
// every component the client builds.

import (
	"encoding/json"
	"time"

	"github.com/chatwave/client/backend"
	"github.com/chatwave/client/call"
	"github.com/chatwave/client/chat"
	"github.com/chatwave/client/poll"
	"github.com/chatwave/client/realtime"
	"github.com/chatwave/client/upload"
)

// Params contains the parameters of every component.
type Params struct {
	Backend  backend.Params
	Realtime realtime.Params
	Session  chat.Params
	Poll     poll.Params
	Call     call.Params
	Upload   upload.Params

	// RelayUploads sends attachments through the auxiliary service instead
	// of writing to object storage directly.
	RelayUploads bool

	// StopTimeout bounds how long stopping waits for the services.
	StopTimeout time.Duration
}

// GetDefaultParams returns the default parameters of every component.
func GetDefaultParams() Params {
	return Params{
		Backend:     backend.GetDefaultParams(),
		Realtime:    realtime.GetDefaultParams(),
		Session:     chat.GetDefaultParams(),
		Poll:        poll.GetDefaultParams(),
		Call:        call.GetDefaultParams(),
		Upload:      upload.GetDefaultParams(),
		StopTimeout: 5 * time.Second,
	}
}

// GetParameters returns the default Params, or override with given
// parameters, if set.
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
