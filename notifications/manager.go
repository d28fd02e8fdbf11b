////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package notifications registers the device's push token for the signed-in
// user. Push delivery itself happens outside the client.
package notifications

import (
	"context"
	"sync"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/prefs"
)

// Manager tracks the device token registered for one user.
type Manager struct {
	self   string
	remote Registrar
	local  TokenStore

	callbacks map[string]Update
	mux       sync.Mutex
}

// NewManager creates a manager for user self.
func NewManager(self string, remote Registrar, local TokenStore) *Manager {
	return &Manager{
		self:      self,
		remote:    remote,
		local:     local,
		callbacks: make(map[string]Update),
	}
}

// Reregister registers the stored token again, if there is one. Failures
// are logged since registration is best effort; the stored token is kept.
func (m *Manager) Reregister(ctx context.Context) bool {
	m.mux.Lock()
	defer m.mux.Unlock()

	t, ok, err := m.local.PushToken()
	if err != nil {
		jww.WARN.Printf("[NOTIF] Failed to load push token: %+v", err)
		return false
	} else if !ok {
		return false
	}

	err = m.remote.RegisterDeviceToken(ctx, m.self, t.Token, t.App)
	if err != nil {
		jww.WARN.Printf("[NOTIF] Failed to register push token for %s "+
			"again: %+v", t.App, err)
		return false
	}
	jww.DEBUG.Printf("[NOTIF] Registered push token for %s again", t.App)
	return true
}

// RegisterUpdateCallback registers a callback for token changes under the
// name, replacing any callback with the same name.
func (m *Manager) RegisterUpdateCallback(name string, cb Update) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.callbacks[name] = cb
}

// notifyUnsafe calls every callback. The caller holds the lock.
func (m *Manager) notifyUnsafe(t prefs.PushToken, registered bool) {
	for _, cb := range m.callbacks {
		go cb(t, registered)
	}
}
