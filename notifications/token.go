////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package notifications

import (
	"context"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/prefs"
)

var (
	ErrNoTokenRegistered = errors.New("cannot do operation, no token is " +
		"registered")
)

// Error messages.
const (
	registerErr = "failed to register push token for %s"
	storeErr    = "push token for %s was registered but not stored"
)

// AddToken registers the token for the app with the push service and
// stores it. The app tells the service which platform forwards the
// notifications.
func (m *Manager) AddToken(ctx context.Context, token, app string) error {
	m.mux.Lock()
	defer m.mux.Unlock()

	err := m.remote.RegisterDeviceToken(ctx, m.self, token, app)
	if err != nil {
		return errors.WithMessagef(err, registerErr, app)
	}

	t := prefs.PushToken{Token: token, App: app}
	if err = m.local.SetPushToken(t); err != nil {
		return errors.WithMessagef(err, storeErr, app)
	}

	jww.INFO.Printf("[NOTIF] Registered push token for %s", app)
	m.notifyUnsafe(t, true)
	return nil
}

// RemoveToken forgets the registered token. The push service drops tokens
// that stop receiving, so nothing is sent. Returns ErrNoTokenRegistered if
// there is no token.
func (m *Manager) RemoveToken() error {
	m.mux.Lock()
	defer m.mux.Unlock()

	t, ok, err := m.local.PushToken()
	if err != nil {
		return err
	} else if !ok {
		return errors.WithStack(ErrNoTokenRegistered)
	}

	if err = m.local.DeletePushToken(); err != nil {
		return err
	}
	m.notifyUnsafe(t, false)
	return nil
}

// Token returns the registered token, if any.
func (m *Manager) Token() (prefs.PushToken, bool, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.local.PushToken()
}
