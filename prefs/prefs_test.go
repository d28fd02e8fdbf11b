////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package prefs

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"
)

// Tests that unset preferences report as missing and defaults apply.
func TestPrefs_Defaults(t *testing.T) {
	p := New(ekv.MakeMemstore())

	view, err := p.LastView()
	require.NoError(t, err)
	require.Empty(t, view)

	_, found, err := p.LastSelectedChat()
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = p.Credentials()
	require.NoError(t, err)
	require.False(t, found)

	require.True(t, p.SoundEnabled())
}

// Tests that every preference can be stored and read back.
func TestPrefs_SetGet(t *testing.T) {
	p := New(ekv.MakeMemstore())

	require.NoError(t, p.SetLastView("groups"))
	view, err := p.LastView()
	require.NoError(t, err)
	require.Equal(t, "groups", view)

	sel := Selection{ID: "c5b1", Group: true}
	require.NoError(t, p.SetLastSelectedChat(sel))
	got, found, err := p.LastSelectedChat()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, sel, got)

	creds := Credentials{Email: "ana@example.com", RefreshToken: "r-123"}
	require.NoError(t, p.RememberCredentials(creds))
	gotCreds, found, err := p.Credentials()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, creds, gotCreds)

	require.NoError(t, p.SetSoundEnabled(false))
	require.False(t, p.SoundEnabled())

	token := PushToken{Token: "device-token", App: "web"}
	require.NoError(t, p.SetPushToken(token))
	gotToken, found, err := p.PushToken()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, token, gotToken)
}

// Tests that deleted preferences read as missing and that deleting twice is
// not an error.
func TestPrefs_Delete(t *testing.T) {
	p := New(ekv.MakeMemstore())

	require.NoError(t, p.RememberCredentials(Credentials{Email: "a@b.c"}))
	require.NoError(t, p.ForgetCredentials())
	require.NoError(t, p.ForgetCredentials())

	_, found, err := p.Credentials()
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, p.SetLastSelectedChat(Selection{ID: "x"}))
	require.NoError(t, p.ClearLastSelectedChat())
	_, found, err = p.LastSelectedChat()
	require.NoError(t, err)
	require.False(t, found)
}
