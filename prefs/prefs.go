////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package prefs holds the small set of client-local preferences that survive
// restarts: last view, last selected chat, remembered credentials, the sound
// preference and the registered push token. Values live in an encrypted
// ekv store.
package prefs

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
)

const (
	currentVersion = 0

	lastViewKey         = "prefs/lastView"
	lastSelectedChatKey = "prefs/lastSelectedChat"
	credentialsKey      = "prefs/credentials"
	soundKey            = "prefs/soundEnabled"
	pushTokenKey        = "prefs/pushToken"
)

// Error messages.
const (
	openErr       = "failed to open preference store in %s"
	versionErr    = "preference %s has version %d, expected %d"
	decodeErr     = "failed to decode preference %s"
	encodeErr     = "failed to encode preference %s"
	loadErr       = "failed to load preference %s"
	storeErr      = "failed to store preference %s"
	deletePrefErr = "failed to delete preference %s"
)

// Credentials are remembered login details. The password is never stored;
// the refresh token lets the identity provider resume the session.
type Credentials struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
}

// PushToken is the device token registered for push notifications.
type PushToken struct {
	Token string `json:"token"`
	App   string `json:"app"`
}

// Selection records the chat that was open when the client last ran. Group is
// true when the ID is a group ID.
type Selection struct {
	ID    string `json:"id"`
	Group bool   `json:"group"`
}

// Prefs reads and writes preferences. It is safe for concurrent use.
type Prefs struct {
	kv  ekv.KeyValue
	mux sync.Mutex
}

// Open opens, or creates, the encrypted preference store in dir.
func Open(dir, password string) (*Prefs, error) {
	fs, err := ekv.NewFilestore(dir, password)
	if err != nil {
		return nil, errors.Wrapf(err, openErr, dir)
	}
	return New(fs), nil
}

// New wraps an existing key/value store.
func New(kv ekv.KeyValue) *Prefs {
	return &Prefs{kv: kv}
}

// LastView returns the last view the UI showed, or an empty string.
func (p *Prefs) LastView() (string, error) {
	var view string
	_, err := p.get(lastViewKey, &view)
	return view, err
}

// SetLastView stores the last view the UI showed.
func (p *Prefs) SetLastView(view string) error {
	return p.set(lastViewKey, view)
}

// LastSelectedChat returns the chat that was open last, if any.
func (p *Prefs) LastSelectedChat() (Selection, bool, error) {
	var s Selection
	found, err := p.get(lastSelectedChatKey, &s)
	return s, found, err
}

// SetLastSelectedChat stores the chat that is currently open.
func (p *Prefs) SetLastSelectedChat(s Selection) error {
	return p.set(lastSelectedChatKey, s)
}

// ClearLastSelectedChat forgets the open chat.
func (p *Prefs) ClearLastSelectedChat() error {
	return p.delete(lastSelectedChatKey)
}

// Credentials returns the remembered credentials, if any.
func (p *Prefs) Credentials() (Credentials, bool, error) {
	var c Credentials
	found, err := p.get(credentialsKey, &c)
	return c, found, err
}

// RememberCredentials stores credentials for the next start.
func (p *Prefs) RememberCredentials(c Credentials) error {
	return p.set(credentialsKey, c)
}

// ForgetCredentials deletes remembered credentials. Called on logout.
func (p *Prefs) ForgetCredentials() error {
	return p.delete(credentialsKey)
}

// SoundEnabled returns true if notification sounds are on. Sounds default to
// on when the preference was never set or cannot be read.
func (p *Prefs) SoundEnabled() bool {
	enabled := true
	if _, err := p.get(soundKey, &enabled); err != nil {
		jww.WARN.Printf("[PREFS] Defaulting sound to on: %+v", err)
		return true
	}
	return enabled
}

// SetSoundEnabled stores the sound preference.
func (p *Prefs) SetSoundEnabled(enabled bool) error {
	return p.set(soundKey, enabled)
}

// PushToken returns the registered push token, if any.
func (p *Prefs) PushToken() (PushToken, bool, error) {
	var t PushToken
	found, err := p.get(pushTokenKey, &t)
	return t, found, err
}

// SetPushToken stores the registered push token.
func (p *Prefs) SetPushToken(t PushToken) error {
	return p.set(pushTokenKey, t)
}

// DeletePushToken forgets the registered push token.
func (p *Prefs) DeletePushToken() error {
	return p.delete(pushTokenKey)
}

// get loads the preference into v. Returns false if it was never stored.
func (p *Prefs) get(key string, v interface{}) (bool, error) {
	p.mux.Lock()
	defer p.mux.Unlock()

	obj := &object{}
	if err := p.kv.Get(key, obj); err != nil {
		if !ekv.Exists(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, loadErr, key)
	}

	if obj.Version != currentVersion {
		return false, errors.Errorf(
			versionErr, key, obj.Version, currentVersion)
	}

	if err := json.Unmarshal(obj.Data, v); err != nil {
		return false, errors.Wrapf(err, decodeErr, key)
	}

	return true, nil
}

// set stores v under key.
func (p *Prefs) set(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, encodeErr, key)
	}

	p.mux.Lock()
	defer p.mux.Unlock()

	obj := &object{
		Version:   currentVersion,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err = p.kv.Set(key, obj); err != nil {
		return errors.Wrapf(err, storeErr, key)
	}
	return nil
}

// delete removes key. Deleting a missing key is not an error.
func (p *Prefs) delete(key string) error {
	p.mux.Lock()
	defer p.mux.Unlock()

	if err := p.kv.Delete(key); err != nil && ekv.Exists(err) {
		return errors.Wrapf(err, deletePrefErr, key)
	}
	return nil
}
