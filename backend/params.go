////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package backend

import (
	"encoding/json"
	"time"
)

// Params configures access to the hosted backend.
type Params struct {
	// URL is the base URL of the backend project, without a trailing slash.
	URL string

	// AnonKey is the public API key sent with every request.
	AnonKey string

	// AuxURL is the base URL of the auxiliary HTTP service (health, push
	// token registration, upload relay, user lookup).
	AuxURL string

	// Timeout bounds requests whose context has no deadline.
	Timeout time.Duration

	// MaxConnsPerHost limits parallel connections to the backend.
	MaxConnsPerHost int

	// SignedURLExpiry is how long signed attachment URLs stay valid.
	SignedURLExpiry time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// GetDefaultParams returns the default backend parameters.
func GetDefaultParams() Params {
	return Params{
		URL:             "http://localhost:54321",
		AuxURL:          "http://localhost:3000",
		Timeout:         10 * time.Second,
		MaxConnsPerHost: 16,
		SignedURLExpiry: 365 * 24 * time.Hour,
		UserAgent:       "chatwave-client",
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
