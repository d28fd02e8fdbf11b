////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package app

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Error messages.
const (
	parseTokenErr = "failed to parse access token"
	noSubjectErr  = "access token names no user"
	expiredErr    = "access token of %s expired at %s"
)

// Identity is the signed-in user named by an access token.
type Identity struct {
	UserID  string
	Email   string
	Expires time.Time
}

// ParseIdentity reads the identity from an access token. The signature is
// not checked; the backend verifies the token on every request.
func ParseIdentity(accessToken string) (Identity, error) {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(accessToken, claims)
	if err != nil {
		return Identity{}, errors.Wrap(err, parseTokenErr)
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return Identity{}, errors.Wrap(err, parseTokenErr)
	} else if sub == "" {
		return Identity{}, errors.New(noSubjectErr)
	}

	id := Identity{UserID: sub}
	id.Email, _ = claims["email"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.Expires = exp.Time
	}
	return id, nil
}

// Expired returns true if the token carries an expiry before now.
func (i Identity) Expired(now time.Time) bool {
	return !i.Expires.IsZero() && now.After(i.Expires)
}
