////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package app

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// signedToken returns an HS256 access token carrying claims.
func signedToken(t *testing.T, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("test secret"))
	require.NoError(t, err)
	return token
}

// Tests that ParseIdentity reads the subject, email and expiry.
func TestParseIdentity(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{
		"sub":   "alice",
		"email": "alice@example.com",
		"exp":   exp.Unix(),
	})

	id, err := ParseIdentity(token)
	require.NoError(t, err)
	require.Equal(t, "alice", id.UserID)
	require.Equal(t, "alice@example.com", id.Email)
	require.True(t, exp.Equal(id.Expires))
	require.False(t, id.Expired(time.Now()))
	require.True(t, id.Expired(exp.Add(time.Second)))
}

// Tests that a token without an expiry never expires.
func TestIdentity_Expired_NoExpiry(t *testing.T) {
	id, err := ParseIdentity(signedToken(t, jwt.MapClaims{"sub": "bob"}))
	require.NoError(t, err)
	require.Empty(t, id.Email)
	require.False(t, id.Expired(time.Now().Add(1000*time.Hour)))
}

// Tests that malformed tokens and tokens without a subject are rejected.
func TestParseIdentity_Invalid(t *testing.T) {
	_, err := ParseIdentity("not a token")
	require.Error(t, err)

	_, err = ParseIdentity(signedToken(t, jwt.MapClaims{"email": "x@y.z"}))
	require.EqualError(t, err, noSubjectErr)
}
