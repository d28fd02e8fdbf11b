////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package realtime

import (
	"encoding/json"
)

// Protocol events.
const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventToken     = "access_token"

	eventPostgresChanges = "postgres_changes"
	eventBroadcast       = "broadcast"
	eventPresence        = "presence"
	eventPresenceState   = "presence_state"
	eventPresenceDiff    = "presence_diff"

	phoenixTopic = "phoenix"
	topicPrefix  = "realtime:"

	replyOK = "ok"
)

// Frame is one message on the socket in either direction.
type Frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

// reply is the payload of a phx_reply.
type reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// broadcastPayload wraps a broadcast or presence push.
type broadcastPayload struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// joinPayload is sent with phx_join and declares every binding of the
// channel.
type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

type joinConfig struct {
	Broadcast       broadcastConfig  `json:"broadcast"`
	Presence        presenceConfig   `json:"presence"`
	PostgresChanges []postgresFilter `json:"postgres_changes"`
}

type broadcastConfig struct {
	Self bool `json:"self"`
	Ack  bool `json:"ack"`
}

type presenceConfig struct {
	Key string `json:"key"`
}

type postgresFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

// changePayload is the payload of a postgres_changes frame.
type changePayload struct {
	Data struct {
		Schema          string          `json:"schema"`
		Table           string          `json:"table"`
		Type            string          `json:"type"`
		CommitTimestamp string          `json:"commit_timestamp"`
		Record          json.RawMessage `json:"record"`
		OldRecord       json.RawMessage `json:"old_record"`
	} `json:"data"`
}

func strPtr(s string) *string {
	return &s
}
