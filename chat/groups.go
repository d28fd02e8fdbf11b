////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/backend"
	"github.com/chatwave/client/backend/tables"
	"github.com/chatwave/client/messages"
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

// LoadGroups reloads the groups the user is a member of.
func (s *Session) LoadGroups(ctx context.Context) ([]tables.Group, error) {
	list, err := s.repo.Groups(ctx, s.self)
	if err != nil {
		return nil, s.fail(ActionLoad, err)
	}
	s.mux.Lock()
	s.groups = list
	s.mux.Unlock()
	return s.Groups(), nil
}

// Groups returns the last loaded groups.
func (s *Session) Groups() []tables.Group {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return append([]tables.Group(nil), s.groups...)
}

// CreateGroup creates a group with the user as its first admin.
func (s *Session) CreateGroup(ctx context.Context, name,
	handle string) (tables.Group, error) {
	name = strings.TrimSpace(name)
	handle = NormalizeHandle(handle)
	if name == "" {
		return tables.Group{}, errors.New(emptyNameErr)
	}
	if !handlePattern.MatchString(handle) {
		return tables.Group{}, errors.Errorf(invalidHandleErr, handle)
	}

	g, err := s.repo.CreateGroup(ctx, tables.Group{
		ID:        messages.NewID(),
		Name:      name,
		Handle:    handle,
		CreatedBy: s.self,
	})
	if err != nil {
		return tables.Group{}, s.fail(ActionCreateGroup, err)
	}

	err = s.repo.AddGroupMember(ctx, tables.GroupMember{
		GroupID: g.ID,
		UserID:  s.self,
		Role:    tables.RoleAdmin,
	})
	if err != nil {
		if derr := s.repo.DeleteGroup(ctx, g.ID); derr != nil {
			jww.ERROR.Printf("[CHAT] %+v", errors.WithMessagef(derr,
				compensationErr, "group "+g.ID))
		}
		return tables.Group{}, s.fail(ActionCreateGroup, err)
	}

	s.addGroup(g)
	jww.INFO.Printf("[CHAT] Created group @%s (%s)", g.Handle, g.ID)
	return g, nil
}

// JoinGroup joins the group with the handle as a member. Joining a group
// the user is already in succeeds.
func (s *Session) JoinGroup(ctx context.Context,
	handle string) (tables.Group, error) {
	g, err := s.repo.GroupByHandle(ctx, NormalizeHandle(handle))
	if err != nil {
		return tables.Group{}, s.fail(ActionJoinGroup, err)
	}

	err = s.repo.AddGroupMember(ctx, tables.GroupMember{
		GroupID: g.ID,
		UserID:  s.self,
		Role:    tables.RoleMember,
	})
	if err != nil && !backend.IsUniqueViolation(err) {
		return tables.Group{}, s.fail(ActionJoinGroup, err)
	}

	s.addGroup(g)
	return g, nil
}

// NormalizeHandle lowercases a handle and strips a leading @.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

func (s *Session) addGroup(g tables.Group) {
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, cur := range s.groups {
		if cur.ID == g.ID {
			return
		}
	}
	s.groups = append(append([]tables.Group(nil), s.groups...), g)
}
