////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package messages contains the local message store for the open conversation
// or group. All mutations are pure functions over a List so that the change
// feed, the poller and user actions can all feed the same reducers; Store
// serialises their application.
package messages

import (
	"time"

	"github.com/google/uuid"
)

// DeletedContent replaces the body of a soft-deleted message.
const DeletedContent = "This message was deleted"

// Message is a single chat message in a conversation or a group.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	GroupID        string `json:"group_id,omitempty"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`

	FileURL  string `json:"file_url,omitempty"`
	FileType string `json:"file_type,omitempty"`
	FileName string `json:"file_name,omitempty"`

	IsRead    bool      `json:"is_read"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Reactions Reactions `json:"reactions"`
	CreatedAt time.Time `json:"created_at"`

	// Optimistic is true while the message has only been created locally.
	// It is never sent to the backend.
	Optimistic bool `json:"-"`
}

// Attachment describes an uploaded file referenced by a message.
type Attachment struct {
	URL      string
	MIMEType string
	FileName string
}

// NewID returns a new client side message ID. IDs are assigned before
// transmission so the optimistic and confirmed copies share an identity.
func NewID() string {
	return uuid.NewString()
}

// Scope returns the conversation or group the message belongs to.
func (m Message) Scope() Scope {
	if m.GroupID != "" {
		return Scope{ID: m.GroupID, Group: true}
	}
	return Scope{ID: m.ConversationID}
}

// HasAttachment returns true if a file is attached.
func (m Message) HasAttachment() bool {
	return m.FileURL != ""
}

// Attach sets the attachment fields.
func (m *Message) Attach(a Attachment) {
	m.FileURL = a.URL
	m.FileType = a.MIMEType
	m.FileName = a.FileName
}

// Update carries the mutable fields of a message as received in an update
// event. Only these fields are overwritten when patching.
type Update struct {
	ID        string
	Content   string
	IsRead    bool
	Reactions Reactions
	FileURL   string
	FileType  string
	FileName  string
}

// UpdateOf extracts the mutable fields of m.
func UpdateOf(m Message) Update {
	return Update{
		ID:        m.ID,
		Content:   m.Content,
		IsRead:    m.IsRead,
		Reactions: m.Reactions,
		FileURL:   m.FileURL,
		FileType:  m.FileType,
		FileName:  m.FileName,
	}
}

// Scope identifies a conversation or a group.
type Scope struct {
	ID    string
	Group bool
}

// IsZero returns true if no scope is set.
func (s Scope) IsZero() bool {
	return s.ID == ""
}

// String returns a loggable form of the scope.
func (s Scope) String() string {
	if s.IsZero() {
		return "none"
	}
	if s.Group {
		return "group:" + s.ID
	}
	return "conversation:" + s.ID
}
