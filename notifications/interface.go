////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package notifications

import (
	"context"

	"github.com/chatwave/client/prefs"
)

// Registrar registers device tokens with the push service.
// *backend.Client implements it.
type Registrar interface {
	RegisterDeviceToken(ctx context.Context, userID, token,
		platform string) error
}

// TokenStore persists the registered token. *prefs.Prefs implements it.
type TokenStore interface {
	PushToken() (prefs.PushToken, bool, error)
	SetPushToken(t prefs.PushToken) error
	DeletePushToken() error
}

// Update is called after the registered token changed. registered is false
// when the token was removed.
type Update func(token prefs.PushToken, registered bool)
