////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package tables gives typed access to the backend tables of the chat schema.
package tables

import (
	"time"

	"github.com/chatwave/client/messages"
)

// Table names.
const (
	Profiles                 = "profiles"
	Conversations            = "conversations"
	ConversationParticipants = "conversation_participants"
	Messages                 = "messages"
	Groups                   = "groups"
	GroupMembers             = "group_members"
	GroupMessages            = "group_messages"
	ChatRequests             = "chat_requests"
)

// Profile is a user's public profile.
type Profile struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
}

// Name returns the display name, or the username if none is set.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// Conversation is a one to one conversation.
type Conversation struct {
	ID            string    `json:"id"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConversationSummary is a conversation as shown in the conversation list:
// with the other participant and the number of messages the viewer has not
// read.
type ConversationSummary struct {
	Conversation
	Partner Profile
	Unread  int
}

// Participant links a user to a conversation.
type Participant struct {
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	JoinedAt       *time.Time `json:"joined_at,omitempty"`
}

// Role of a group member.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Group is a named group chat with a unique handle.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Handle    string    `json:"handle"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupMember is a user's membership in a group.
type GroupMember struct {
	GroupID  string     `json:"group_id"`
	UserID   string     `json:"user_id"`
	Role     Role       `json:"role"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
}

// RequestStatus is the state of a chat request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// ChatRequest asks the receiver to start a conversation with the sender.
type ChatRequest struct {
	ID         string        `json:"id"`
	SenderID   string        `json:"sender_id"`
	ReceiverID string        `json:"receiver_id"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`

	// Sender is embedded when listing incoming requests.
	Sender *Profile `json:"sender,omitempty"`
}

// messageRow is the insert shape of the messages table.
type messageRow struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	SenderID       string             `json:"sender_id"`
	Content        string             `json:"content"`
	FileURL        *string            `json:"file_url"`
	FileType       *string            `json:"file_type"`
	FileName       *string            `json:"file_name"`
	IsRead         bool               `json:"is_read"`
	ReplyTo        *string            `json:"reply_to"`
	Reactions      messages.Reactions `json:"reactions"`
	CreatedAt      time.Time          `json:"created_at"`
}

// groupMessageRow is the insert shape of the group_messages table, which has
// no read flag.
type groupMessageRow struct {
	ID        string             `json:"id"`
	GroupID   string             `json:"group_id"`
	SenderID  string             `json:"sender_id"`
	Content   string             `json:"content"`
	FileURL   *string            `json:"file_url"`
	FileType  *string            `json:"file_type"`
	FileName  *string            `json:"file_name"`
	ReplyTo   *string            `json:"reply_to"`
	Reactions messages.Reactions `json:"reactions"`
	CreatedAt time.Time          `json:"created_at"`
}

func toMessageRow(m messages.Message) messageRow {
	return messageRow{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		FileURL:        nullable(m.FileURL),
		FileType:       nullable(m.FileType),
		FileName:       nullable(m.FileName),
		IsRead:         m.IsRead,
		ReplyTo:        nullable(m.ReplyTo),
		Reactions:      m.Reactions,
		CreatedAt:      m.CreatedAt,
	}
}

func toGroupMessageRow(m messages.Message) groupMessageRow {
	return groupMessageRow{
		ID:        m.ID,
		GroupID:   m.GroupID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		FileURL:   nullable(m.FileURL),
		FileType:  nullable(m.FileType),
		FileName:  nullable(m.FileName),
		ReplyTo:   nullable(m.ReplyTo),
		Reactions: m.Reactions,
		CreatedAt: m.CreatedAt,
	}
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
