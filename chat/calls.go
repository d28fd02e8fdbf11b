////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"github.com/pkg/errors"

	"github.com/chatwave/client/call"
)

// StartCall calls the partner of the conversation.
func (s *Session) StartCall(conversationID string,
	media call.Media) (string, error) {
	calls := s.caller()
	if calls == nil {
		return "", errors.Errorf(unavailableErr, "calls")
	}
	peer, ok := s.partnerOf(conversationID)
	if !ok {
		return "", s.fail(ActionCall,
			errors.Errorf("conversation %s is not known", conversationID))
	}
	id, err := calls.Start(peer, media)
	if err != nil {
		return "", s.fail(ActionCall, err)
	}
	return id, nil
}

// AcceptCall answers the ringing incoming call.
func (s *Session) AcceptCall() error {
	calls := s.caller()
	if calls == nil {
		return errors.Errorf(unavailableErr, "calls")
	}
	if err := calls.Accept(); err != nil {
		return s.fail(ActionCall, err)
	}
	return nil
}

// RejectCall declines the ringing incoming call.
func (s *Session) RejectCall() error {
	calls := s.caller()
	if calls == nil {
		return errors.Errorf(unavailableErr, "calls")
	}
	return calls.Reject()
}

// Hangup ends the current call, if any.
func (s *Session) Hangup() {
	if calls := s.caller(); calls != nil {
		calls.Hangup()
	}
}

// CallState returns the current call state.
func (s *Session) CallState() call.State {
	if calls := s.caller(); calls != nil {
		return calls.State()
	}
	return call.State{}
}

func (s *Session) partnerOf(conversationID string) (string, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	for _, c := range s.conversations {
		if c.ID == conversationID && c.Partner.ID != "" {
			return c.Partner.ID, true
		}
	}
	return "", false
}
