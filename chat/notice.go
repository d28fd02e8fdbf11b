////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/backend"
	"github.com/chatwave/client/event"
)

// Actions name the operation a notice is about. They are reported as the
// notice's event type.
const (
	ActionLoad          = "load"
	ActionSend          = "send"
	ActionUpload        = "upload"
	ActionReact         = "react"
	ActionDelete        = "delete"
	ActionSendRequest   = "send-request"
	ActionAcceptRequest = "accept-request"
	ActionRejectRequest = "reject-request"
	ActionCreateGroup   = "create-group"
	ActionJoinGroup     = "join-group"
	ActionCall          = "call"
	ActionAvatar        = "avatar"
	ActionLookup        = "lookup"
)

// Notices for backend codes the client recognises.
const (
	NoticeUserNotFound     = "User not found"
	NoticeRequestSent      = "Request already sent"
	NoticeHandleTaken      = "Group handle already taken"
	NoticeGroupNotFound    = "Group not found"
	NoticeAlreadyMember    = "You are already a member of this group"
	NoticeRequestNotFound  = "Request not found"
	NoticeMessageNotFound  = "Message not found"
	NoticeGenericNotFound  = "Not found"
	NoticeGenericDuplicate = "Already exists"
)

type known struct {
	notFound  string
	duplicate string
}

var knownNotices = map[string]known{
	ActionSendRequest:   {notFound: NoticeUserNotFound, duplicate: NoticeRequestSent},
	ActionAcceptRequest: {notFound: NoticeRequestNotFound},
	ActionRejectRequest: {notFound: NoticeRequestNotFound},
	ActionCreateGroup:   {duplicate: NoticeHandleTaken},
	ActionJoinGroup:     {notFound: NoticeGroupNotFound, duplicate: NoticeAlreadyMember},
	ActionReact:         {notFound: NoticeMessageNotFound},
	ActionDelete:        {notFound: NoticeMessageNotFound},
}

// NoticeFor returns the user-facing text for a failed action. Known backend
// codes map to specific notices; anything else carries the error text.
func NoticeFor(action string, err error) string {
	k := knownNotices[action]
	switch {
	case backend.IsNotFound(err):
		if k.notFound != "" {
			return k.notFound
		}
		return NoticeGenericNotFound
	case backend.IsUniqueViolation(err):
		if k.duplicate != "" {
			return k.duplicate
		}
		return NoticeGenericDuplicate
	}
	return "Failed to " + action + ": " + err.Error()
}

// fail handles an error from a user action. Rejected credentials end the
// session; everything else becomes a notice. Returns err.
func (s *Session) fail(action string, err error) error {
	if err == nil {
		return nil
	}
	if backend.IsAuth(err) {
		s.forceLogout(err.Error())
		return err
	}
	jww.WARN.Printf("[CHAT] %s failed: %+v", action, err)
	s.events.Report(event.Warning, event.Notice, action, NoticeFor(action, err))
	return err
}
