////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"context"

	"github.com/pkg/errors"

	"github.com/chatwave/client/backend/tables"
)

// LookupUser fetches a user's profile through the auxiliary service.
func (s *Session) LookupUser(ctx context.Context,
	userID string) (tables.Profile, error) {
	if s.users == nil {
		return tables.Profile{}, errors.Errorf(unavailableErr, "user lookups")
	}
	var p tables.Profile
	if err := s.users.LookupUser(ctx, userID, &p); err != nil {
		return tables.Profile{}, s.fail(ActionLookup, err)
	}
	return p, nil
}

// SetAvatar uploads a new avatar image and stores it on the user's profile.
func (s *Session) SetAvatar(ctx context.Context, image []byte) (string, error) {
	a, err := s.files.UploadAvatar(ctx, s.self, image)
	if err != nil {
		return "", s.fail(ActionAvatar, err)
	}
	if err = s.repo.SetAvatar(ctx, s.self, a.URL); err != nil {
		return "", s.fail(ActionAvatar, err)
	}

	s.mux.Lock()
	s.profile.AvatarURL = a.URL
	s.mux.Unlock()
	return a.URL, nil
}
