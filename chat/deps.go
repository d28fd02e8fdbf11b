////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chatwave/client/backend/tables"
	"github.com/chatwave/client/call"
	"github.com/chatwave/client/event"
	"github.com/chatwave/client/messages"
	"github.com/chatwave/client/prefs"
)

// Repository is the table access used by the session. *tables.Tables
// implements it.
type Repository interface {
	Profile(ctx context.Context, userID string) (tables.Profile, error)
	ProfileByUsername(ctx context.Context, username string) (tables.Profile,
		error)
	SetAvatar(ctx context.Context, userID, url string) error
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error

	Conversations(ctx context.Context, viewerID string) (
		[]tables.ConversationSummary, error)
	CreateConversation(ctx context.Context, id string) (tables.Conversation,
		error)
	AddParticipants(ctx context.Context, conversationID string,
		userIDs []string) error
	DeleteConversation(ctx context.Context, id string) error
	TouchConversation(ctx context.Context, conversationID, text string,
		at time.Time) error

	Messages(ctx context.Context, scope messages.Scope) ([]messages.Message,
		error)
	InsertMessage(ctx context.Context, m messages.Message) error
	SetReactions(ctx context.Context, scope messages.Scope, messageID string,
		r messages.Reactions) error
	SoftDelete(ctx context.Context, scope messages.Scope, messageID,
		senderID string) error
	MarkRead(ctx context.Context, conversationID, viewerID string) error

	PendingRequests(ctx context.Context, viewerID string) (
		[]tables.ChatRequest, error)
	Request(ctx context.Context, id string) (tables.ChatRequest, error)
	CreateRequest(ctx context.Context, senderID, receiverID string) (
		tables.ChatRequest, error)
	SetRequestStatus(ctx context.Context, id string,
		status tables.RequestStatus) error

	Groups(ctx context.Context, viewerID string) ([]tables.Group, error)
	GroupByHandle(ctx context.Context, handle string) (tables.Group, error)
	CreateGroup(ctx context.Context, g tables.Group) (tables.Group, error)
	AddGroupMember(ctx context.Context, m tables.GroupMember) error
	DeleteGroup(ctx context.Context, id string) error
}

// Uploader stores attachments. *upload.Uploader implements it.
type Uploader interface {
	UploadFile(ctx context.Context, owner, fileName string, data []byte) (
		messages.Attachment, error)
	UploadVoice(ctx context.Context, owner string, data []byte) (
		messages.Attachment, error)
	UploadAvatar(ctx context.Context, owner string, data []byte) (
		messages.Attachment, error)
}

// Caller runs calls. *call.Manager implements it.
type Caller interface {
	Start(peer string, media call.Media) (string, error)
	Accept() error
	Reject() error
	Hangup()
	HandleSignal(s call.Signal) error
	State() call.State
}

// Typer broadcasts typing indicators. *feed.Subscriber implements it.
type Typer interface {
	SendTyping(scope messages.Scope, typing bool) error
}

// Directory looks up users through the auxiliary service.
// *backend.Client implements it.
type Directory interface {
	LookupUser(ctx context.Context, userID string, out interface{}) error
}

// Preferences is the local state the session reads and writes.
// *prefs.Prefs implements it.
type Preferences interface {
	SoundEnabled() bool
	SetLastSelectedChat(s prefs.Selection) error
	ClearLastSelectedChat() error
	LastSelectedChat() (prefs.Selection, bool, error)
	ForgetCredentials() error
}

// Deps are the collaborators of a session. Typer and Calls may be bound
// later with Session.Bind since they are built on the session itself.
type Deps struct {
	Repo   Repository
	Files  Uploader
	Users  Directory
	Prefs  Preferences
	Events event.Reporter
	Typer  Typer
	Calls  Caller

	// OnLogout is called once when the session is forcibly ended
	OnLogout func(reason string)
}

// Params configures a session.
type Params struct {
	// Timeout bounds work started by feed events
	Timeout time.Duration

	// TypingInterval is the least time between typing broadcasts
	TypingInterval time.Duration

	// TypingTTL is how long a typing indicator lasts without a refresh
	TypingTTL time.Duration

	// SeenCapacity is how many message IDs are remembered to suppress
	// duplicate notifications
	SeenCapacity int
}

// GetDefaultParams returns the default session parameters.
func GetDefaultParams() Params {
	return Params{
		Timeout:        10 * time.Second,
		TypingInterval: 2 * time.Second,
		TypingTTL:      5 * time.Second,
		SeenCapacity:   512,
	}
}

// GetParameters returns the default parameters overridden by the JSON in
// params, if set.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}
