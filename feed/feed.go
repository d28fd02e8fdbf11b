////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package feed turns realtime channel traffic into typed session events.
// Row changes, typing and call broadcasts, and presence rosters are decoded
// here and handed to a Sink. Every event may be delivered more than once,
// so sinks must treat them idempotently.
package feed

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/backend/tables"
	"github.com/chatwave/client/call"
	"github.com/chatwave/client/messages"
	"github.com/chatwave/client/realtime"
)

// Broadcast event carrying typing indicators.
const EventTyping = "typing"

// DefaultChannel is the channel every session subscribes to.
const DefaultChannel = "chat"

const decodeErr = "failed to decode %s %s"

// Sink receives decoded feed events. Methods are called on the realtime
// reader goroutine and must not block.
type Sink interface {
	// MessageInserted and MessageUpdated carry direct and group messages;
	// Message.Scope tells them apart.
	MessageInserted(m messages.Message)
	MessageUpdated(m messages.Message)

	ConversationChanged(c tables.Conversation)
	ParticipantAdded(p tables.Participant)
	GroupMemberAdded(m tables.GroupMember)
	RequestChanged(r tables.ChatRequest)

	Typing(t Typing)
	CallSignal(s call.Signal)

	// PresenceSynced is the full online set, user ID to online time.
	PresenceSynced(online map[string]time.Time)

	// Joined is called after every join, including rejoins.
	Joined()
}

// Typing is the payload of a typing broadcast. Exactly one of
// ConversationID and GroupID is set.
type Typing struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	GroupID        string `json:"group_id,omitempty"`
	IsTyping       bool   `json:"is_typing"`
}

// Scope returns the chat the indicator belongs to.
func (t Typing) Scope() messages.Scope {
	if t.GroupID != "" {
		return messages.Scope{ID: t.GroupID, Group: true}
	}
	return messages.Scope{ID: t.ConversationID}
}

// Track is the presence payload announced by every session.
type Track struct {
	UserID   string    `json:"user_id"`
	OnlineAt time.Time `json:"online_at"`
}

// Subscriber binds a Sink to a realtime channel.
type Subscriber struct {
	ch   *realtime.Channel
	self string
	sink Sink
}

// NewSubscriber creates a subscriber for the local user self on ch and
// registers its bindings. The channel's presence key is set to self.
func NewSubscriber(ch *realtime.Channel, self string, sink Sink) *Subscriber {
	ch.WithPresenceKey(self)
	s := &Subscriber{ch: ch, self: self, sink: sink}
	s.bind()
	return s
}

// bind registers every binding on the channel. Bindings accumulate on the
// channel, so this runs once per subscriber.
func (s *Subscriber) bind() {
	s.ch.
		OnPostgresChange(realtime.Insert, tables.Messages, "", s.onMessage).
		OnPostgresChange(realtime.Update, tables.Messages, "", s.onMessage).
		OnPostgresChange(realtime.Insert, tables.GroupMessages, "", s.onMessage).
		OnPostgresChange(realtime.Update, tables.GroupMessages, "", s.onMessage).
		OnPostgresChange(realtime.Insert, tables.Conversations, "",
			s.onConversation).
		OnPostgresChange(realtime.Update, tables.Conversations, "",
			s.onConversation).
		OnPostgresChange(realtime.Insert, tables.ConversationParticipants, "",
			s.onParticipant).
		OnPostgresChange(realtime.Insert, tables.GroupMembers, "",
			s.onGroupMember).
		OnPostgresChange(realtime.Insert, tables.ChatRequests, "",
			s.onRequest).
		OnPostgresChange(realtime.Update, tables.ChatRequests, "",
			s.onRequest).
		OnBroadcast(EventTyping, s.onTyping).
		OnPresenceSync(s.onPresence).
		OnJoined(s.sink.Joined)
	for _, evt := range call.Events {
		evt := evt
		s.ch.OnBroadcast(evt, func(payload json.RawMessage) {
			s.onSignal(evt, payload)
		})
	}
}

// Start joins the channel and announces presence. The channel re-declares
// its bindings and presence on every rejoin, and Start may follow Stop.
func (s *Subscriber) Start() error {
	s.ch.Subscribe()
	return s.ch.Track(Track{UserID: s.self, OnlineAt: time.Now()})
}

// Stop leaves the channel.
func (s *Subscriber) Stop() {
	s.ch.Unsubscribe()
}

// Broadcast sends a broadcast on the channel. It lets the subscriber act as
// the call signaller.
func (s *Subscriber) Broadcast(event string, payload interface{}) error {
	return s.ch.Broadcast(event, payload)
}

// SendTyping broadcasts a typing indicator from the local user.
func (s *Subscriber) SendTyping(scope messages.Scope, typing bool) error {
	t := Typing{UserID: s.self, IsTyping: typing}
	if scope.Group {
		t.GroupID = scope.ID
	} else {
		t.ConversationID = scope.ID
	}
	return s.ch.Broadcast(EventTyping, t)
}

func (s *Subscriber) onMessage(c realtime.Change) {
	var m messages.Message
	if err := json.Unmarshal(c.New, &m); err != nil {
		jww.WARN.Printf("[FEED] %+v", errors.Wrapf(err, decodeErr, c.Table,
			c.Type))
		return
	}
	if m.ID == "" {
		return
	}

	switch c.Type {
	case realtime.Insert:
		s.sink.MessageInserted(m)
	case realtime.Update:
		s.sink.MessageUpdated(m)
	}
}

func (s *Subscriber) onConversation(c realtime.Change) {
	var conv tables.Conversation
	if decode(c, &conv) {
		s.sink.ConversationChanged(conv)
	}
}

func (s *Subscriber) onParticipant(c realtime.Change) {
	var p tables.Participant
	if decode(c, &p) {
		s.sink.ParticipantAdded(p)
	}
}

func (s *Subscriber) onGroupMember(c realtime.Change) {
	var m tables.GroupMember
	if decode(c, &m) {
		s.sink.GroupMemberAdded(m)
	}
}

func (s *Subscriber) onRequest(c realtime.Change) {
	var r tables.ChatRequest
	if decode(c, &r) {
		s.sink.RequestChanged(r)
	}
}

func (s *Subscriber) onTyping(payload json.RawMessage) {
	var t Typing
	if err := json.Unmarshal(payload, &t); err != nil {
		jww.WARN.Printf("[FEED] %+v", errors.Wrapf(err, decodeErr,
			"broadcast", EventTyping))
		return
	}
	if t.UserID == "" || t.UserID == s.self {
		return
	}
	s.sink.Typing(t)
}

func (s *Subscriber) onSignal(evt string, payload json.RawMessage) {
	sig, err := call.DecodeSignal(evt, payload)
	if err != nil {
		jww.WARN.Printf("[FEED] %+v", err)
		return
	}
	if sig.To != s.self {
		return
	}
	s.sink.CallSignal(sig)
}

func (s *Subscriber) onPresence(r realtime.Roster) {
	s.sink.PresenceSynced(Online(r))
}

// Online maps every user in the roster to the earliest time any of their
// sessions came online.
func Online(r realtime.Roster) map[string]time.Time {
	online := make(map[string]time.Time, len(r))
	for key, metas := range r {
		var first time.Time
		for _, meta := range metas {
			var t Track
			if err := json.Unmarshal(meta.Data, &t); err != nil {
				continue
			}
			if first.IsZero() || t.OnlineAt.Before(first) {
				first = t.OnlineAt
			}
		}
		online[key] = first
	}
	return online
}

// decode decodes the new row of a change, logging failures.
func decode(c realtime.Change, out interface{}) bool {
	if err := json.Unmarshal(c.New, out); err != nil {
		jww.WARN.Printf("[FEED] %+v", errors.Wrapf(err, decodeErr, c.Table,
			c.Type))
		return false
	}
	return true
}
