////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/backend/tables"
	"github.com/chatwave/client/messages"
)

// LoadRequests reloads the pending requests addressed to the user.
func (s *Session) LoadRequests(ctx context.Context) ([]tables.ChatRequest,
	error) {
	if err := s.loadRequests(ctx); err != nil {
		return nil, s.fail(ActionLoad, err)
	}
	return s.Requests(), nil
}

func (s *Session) loadRequests(ctx context.Context) error {
	list, err := s.repo.PendingRequests(ctx, s.self)
	if err != nil {
		return err
	}
	s.mux.Lock()
	s.requests = list
	s.mux.Unlock()
	return nil
}

// Requests returns the last known pending requests.
func (s *Session) Requests() []tables.ChatRequest {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return append([]tables.ChatRequest(nil), s.requests...)
}

// SendChatRequest asks the user with the username to start a conversation.
func (s *Session) SendChatRequest(ctx context.Context,
	username string) (tables.ChatRequest, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	p, err := s.repo.ProfileByUsername(ctx, username)
	if err != nil {
		return tables.ChatRequest{}, s.fail(ActionSendRequest, err)
	}
	if p.ID == s.self {
		return tables.ChatRequest{}, errors.New(selfRequestErr)
	}

	r, err := s.repo.CreateRequest(ctx, s.self, p.ID)
	if err != nil {
		return tables.ChatRequest{}, s.fail(ActionSendRequest, err)
	}
	jww.INFO.Printf("[CHAT] Sent chat request %s to %s", r.ID, p.Username)
	return r, nil
}

// AcceptRequest accepts a pending request addressed to the user. It creates
// the conversation and both participants, then marks the request accepted.
// If any step fails the conversation is deleted again.
func (s *Session) AcceptRequest(ctx context.Context,
	requestID string) (tables.Conversation, error) {
	r, err := s.pendingRequest(ctx, requestID, ActionAcceptRequest)
	if err != nil {
		return tables.Conversation{}, err
	}

	conv, err := s.repo.CreateConversation(ctx, messages.NewID())
	if err != nil {
		return tables.Conversation{}, s.fail(ActionAcceptRequest, err)
	}

	err = s.repo.AddParticipants(ctx, conv.ID,
		[]string{r.SenderID, r.ReceiverID})
	if err == nil {
		err = s.repo.SetRequestStatus(ctx, r.ID, tables.RequestAccepted)
	}
	if err != nil {
		if derr := s.repo.DeleteConversation(ctx, conv.ID); derr != nil {
			jww.ERROR.Printf("[CHAT] %+v", errors.WithMessagef(derr,
				compensationErr, "conversation "+conv.ID))
		}
		return tables.Conversation{}, s.fail(ActionAcceptRequest, err)
	}

	s.dropRequest(r.ID)
	if _, err = s.LoadConversations(ctx); err != nil {
		jww.WARN.Printf("[CHAT] Failed to reload conversations: %+v", err)
	}
	jww.INFO.Printf("[CHAT] Accepted request %s, conversation %s", r.ID,
		conv.ID)
	return conv, nil
}

// RejectRequest rejects a pending request addressed to the user.
func (s *Session) RejectRequest(ctx context.Context, requestID string) error {
	r, err := s.pendingRequest(ctx, requestID, ActionRejectRequest)
	if err != nil {
		return err
	}
	err = s.repo.SetRequestStatus(ctx, r.ID, tables.RequestRejected)
	if err != nil {
		return s.fail(ActionRejectRequest, err)
	}
	s.dropRequest(r.ID)
	return nil
}

// pendingRequest loads the request and checks the user may answer it.
func (s *Session) pendingRequest(ctx context.Context, id,
	action string) (tables.ChatRequest, error) {
	r, err := s.repo.Request(ctx, id)
	if err != nil {
		return tables.ChatRequest{}, s.fail(action, err)
	}
	if r.ReceiverID != s.self {
		return tables.ChatRequest{}, errors.Errorf(notReceiverErr, id,
			r.ReceiverID)
	}
	if r.Status != tables.RequestPending {
		s.dropRequest(id)
		return tables.ChatRequest{}, errors.Errorf(notPendingErr, id,
			r.Status)
	}
	return r, nil
}

func (s *Session) dropRequest(id string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.requests = withoutRequest(s.requests, id)
}

// withoutRequest returns list without the request, leaving list untouched.
func withoutRequest(list []tables.ChatRequest,
	id string) []tables.ChatRequest {
	out := make([]tables.ChatRequest, 0, len(list))
	for _, r := range list {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// upsertRequest returns list with r added or replaced, leaving list
// untouched.
func upsertRequest(list []tables.ChatRequest,
	r tables.ChatRequest) []tables.ChatRequest {
	out := make([]tables.ChatRequest, 0, len(list)+1)
	found := false
	for _, cur := range list {
		if cur.ID == r.ID {
			if r.Sender == nil {
				r.Sender = cur.Sender
			}
			cur = r
			found = true
		}
		out = append(out, cur)
	}
	if !found {
		out = append(out, r)
	}
	return out
}
