////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const notJoinedErr = "channel %s is not joined"

// ChangeEvent is the kind of row change a binding listens for.
type ChangeEvent string

const (
	Insert ChangeEvent = "INSERT"
	Update ChangeEvent = "UPDATE"
	Delete ChangeEvent = "DELETE"
	All    ChangeEvent = "*"
)

// Change is a row change notification.
type Change struct {
	Schema          string
	Table           string
	Type            ChangeEvent
	CommitTimestamp string

	// New is the row after the change; empty for deletes
	New json.RawMessage

	// Old holds the primary key, or the whole row for tables with full
	// replica identity
	Old json.RawMessage
}

type changeBinding struct {
	filter postgresFilter
	cb     func(Change)
}

// Channel is one logical channel on the connection. Callbacks are called on
// the connection's reader goroutine and must not block.
type Channel struct {
	c     *Client
	topic string

	presenceKey string
	changes     []changeBinding
	broadcasts  map[string][]func(payload json.RawMessage)
	onPresence  []func(Roster)
	onJoined    []func()

	subscribed bool
	joined     bool
	joinRef    string
	tracked    json.RawMessage
	roster     Roster

	mux sync.RWMutex
}

func newChannel(c *Client, topic string) *Channel {
	return &Channel{
		c:          c,
		topic:      topic,
		broadcasts: make(map[string][]func(json.RawMessage)),
		roster:     Roster{},
	}
}

// Topic returns the channel's topic.
func (ch *Channel) Topic() string {
	return ch.topic
}

// WithPresenceKey sets the key this client's tracked presence is listed
// under, usually the user ID.
func (ch *Channel) WithPresenceKey(key string) *Channel {
	ch.mux.Lock()
	ch.presenceKey = key
	ch.mux.Unlock()
	return ch
}

// OnPostgresChange registers cb for changes of the event type on the table.
// filter narrows the rows in the backend's syntax, e.g. "group_id=eq.1", or
// is empty. Bindings take effect on the next join.
func (ch *Channel) OnPostgresChange(event ChangeEvent, table, filter string,
	cb func(Change)) *Channel {
	ch.mux.Lock()
	ch.changes = append(ch.changes, changeBinding{
		filter: postgresFilter{
			Event:  string(event),
			Schema: "public",
			Table:  table,
			Filter: filter,
		},
		cb: cb,
	})
	ch.mux.Unlock()
	return ch
}

// OnBroadcast registers cb for broadcasts of the event.
func (ch *Channel) OnBroadcast(event string,
	cb func(payload json.RawMessage)) *Channel {
	ch.mux.Lock()
	ch.broadcasts[event] = append(ch.broadcasts[event], cb)
	ch.mux.Unlock()
	return ch
}

// OnPresenceSync registers cb for the full roster after every presence
// change.
func (ch *Channel) OnPresenceSync(cb func(Roster)) *Channel {
	ch.mux.Lock()
	ch.onPresence = append(ch.onPresence, cb)
	ch.mux.Unlock()
	return ch
}

// OnJoined registers cb for every successful join, including rejoins after
// a reconnect.
func (ch *Channel) OnJoined(cb func()) *Channel {
	ch.mux.Lock()
	ch.onJoined = append(ch.onJoined, cb)
	ch.mux.Unlock()
	return ch
}

// Subscribe joins the channel now if connected and on every connect after.
func (ch *Channel) Subscribe() {
	ch.mux.Lock()
	ch.subscribed = true
	ch.mux.Unlock()

	if ch.c.IsConnected() {
		ch.rejoin()
	}
}

// Unsubscribe leaves the channel and stops rejoining it.
func (ch *Channel) Unsubscribe() {
	ch.mux.Lock()
	wasJoined := ch.joined
	ch.subscribed = false
	ch.joined = false
	ch.tracked = nil
	ch.mux.Unlock()

	if wasJoined {
		if err := ch.push(eventLeave, struct{}{}); err != nil {
			jww.WARN.Printf("[RT] Failed to leave %s: %+v", ch.topic, err)
		}
	}
}

// IsJoined returns true if the server accepted the last join.
func (ch *Channel) IsJoined() bool {
	ch.mux.RLock()
	defer ch.mux.RUnlock()
	return ch.joined
}

// Presence returns the current roster.
func (ch *Channel) Presence() Roster {
	ch.mux.RLock()
	defer ch.mux.RUnlock()
	return ch.roster
}

// Broadcast sends an event to every other subscriber of the channel.
func (ch *Channel) Broadcast(event string, payload interface{}) error {
	if !ch.IsJoined() {
		return errors.Errorf(notJoinedErr, ch.topic)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, encodeFrameErr, event, ch.topic)
	}
	return ch.push(eventBroadcast, broadcastPayload{
		Type:    eventBroadcast,
		Event:   event,
		Payload: data,
	})
}

// Track announces this client's presence with the payload. The payload is
// re-announced after every rejoin.
func (ch *Channel) Track(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, encodeFrameErr, eventPresence, ch.topic)
	}

	ch.mux.Lock()
	ch.tracked = data
	joined := ch.joined
	ch.mux.Unlock()

	if !joined {
		return nil
	}
	return ch.pushTrack(data)
}

func (ch *Channel) pushTrack(data json.RawMessage) error {
	return ch.push(eventPresence, broadcastPayload{
		Type:    eventPresence,
		Event:   "track",
		Payload: data,
	})
}

// push queues a frame for the channel.
func (ch *Channel) push(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, encodeFrameErr, event, ch.topic)
	}

	ch.mux.RLock()
	joinRef := ch.joinRef
	ch.mux.RUnlock()

	f := Frame{
		Topic:   ch.topic,
		Event:   event,
		Payload: data,
		Ref:     strPtr(ch.c.nextRef()),
	}
	if joinRef != "" {
		f.JoinRef = strPtr(joinRef)
	}
	encoded, err := json.Marshal(f)
	if err != nil {
		return errors.Wrapf(err, encodeFrameErr, event, ch.topic)
	}
	return ch.c.enqueue(encoded, event, ch.topic)
}

// joinFrame builds the join for the channel with every binding. Returns
// false if the channel is not subscribed.
func (ch *Channel) joinFrame() ([]byte, bool) {
	ch.mux.Lock()
	defer ch.mux.Unlock()
	if !ch.subscribed {
		return nil, false
	}

	filters := make([]postgresFilter, len(ch.changes))
	for i, b := range ch.changes {
		filters[i] = b.filter
	}
	payload := joinPayload{
		Config: joinConfig{
			Presence:        presenceConfig{Key: ch.presenceKey},
			PostgresChanges: filters,
		},
		AccessToken: ch.c.token(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		jww.FATAL.Panicf("[RT] Failed to encode join of %s: %+v",
			ch.topic, err)
	}

	ref := ch.c.nextRef()
	ch.joinRef = ref
	ch.joined = false
	encoded, err := json.Marshal(Frame{
		Topic:   ch.topic,
		Event:   eventJoin,
		Payload: data,
		Ref:     &ref,
		JoinRef: &ref,
	})
	if err != nil {
		jww.FATAL.Panicf("[RT] Failed to encode join of %s: %+v",
			ch.topic, err)
	}
	return encoded, true
}

// rejoin queues a join if the channel is still subscribed.
func (ch *Channel) rejoin() {
	join, ok := ch.joinFrame()
	if !ok {
		return
	}
	if err := ch.c.enqueue(join, eventJoin, ch.topic); err != nil {
		jww.WARN.Printf("[RT] Failed to rejoin %s: %+v", ch.topic, err)
	}
}

// scheduleRejoin rejoins after the delay if still connected.
func (ch *Channel) scheduleRejoin() {
	time.AfterFunc(ch.c.params.RejoinDelay, func() {
		if ch.c.IsConnected() && !ch.IsJoined() {
			ch.rejoin()
		}
	})
}

// left resets the channel after the connection dropped.
func (ch *Channel) left() {
	ch.mux.Lock()
	ch.joined = false
	ch.joinRef = ""
	ch.mux.Unlock()
}

// handle processes a frame for this channel.
func (ch *Channel) handle(f Frame) {
	switch f.Event {
	case eventReply:
		ch.handleReply(f)
	case eventError, eventClose:
		ch.mux.Lock()
		current := f.JoinRef == nil || *f.JoinRef == ch.joinRef
		subscribed := ch.subscribed
		if current {
			ch.joined = false
		}
		ch.mux.Unlock()
		if current && subscribed {
			jww.WARN.Printf("[RT] Channel %s got %s, rejoining", ch.topic,
				f.Event)
			ch.scheduleRejoin()
		}
	case eventPostgresChanges:
		ch.handleChange(f.Payload)
	case eventBroadcast:
		var b broadcastPayload
		if err := json.Unmarshal(f.Payload, &b); err != nil {
			jww.WARN.Printf("[RT] Malformed broadcast on %s: %+v", ch.topic,
				err)
			return
		}
		ch.mux.RLock()
		cbs := ch.broadcasts[b.Event]
		ch.mux.RUnlock()
		for _, cb := range cbs {
			cb(b.Payload)
		}
	case eventPresenceState:
		state, err := decodeRoster(f.Payload, "state")
		if err != nil {
			jww.WARN.Printf("[RT] %+v", err)
			return
		}
		ch.syncPresence(func(Roster) Roster { return state })
	case eventPresenceDiff:
		var diff struct {
			Joins  json.RawMessage `json:"joins"`
			Leaves json.RawMessage `json:"leaves"`
		}
		if err := json.Unmarshal(f.Payload, &diff); err != nil {
			jww.WARN.Printf("[RT] Malformed presence diff on %s: %+v",
				ch.topic, err)
			return
		}
		joins, err := decodeRoster(diff.Joins, "joins")
		if err != nil {
			jww.WARN.Printf("[RT] %+v", err)
			return
		}
		leaves, err := decodeRoster(diff.Leaves, "leaves")
		if err != nil {
			jww.WARN.Printf("[RT] %+v", err)
			return
		}
		ch.syncPresence(func(cur Roster) Roster {
			return applyDiff(cur, joins, leaves)
		})
	default:
		jww.TRACE.Printf("[RT] Ignoring %s on %s", f.Event, ch.topic)
	}
}

func (ch *Channel) handleReply(f Frame) {
	var r reply
	if err := json.Unmarshal(f.Payload, &r); err != nil {
		jww.WARN.Printf("[RT] Malformed reply on %s: %+v", ch.topic, err)
		return
	}

	ch.mux.Lock()
	isJoin := f.Ref != nil && *f.Ref == ch.joinRef && !ch.joined
	if !isJoin {
		ch.mux.Unlock()
		if r.Status != replyOK {
			jww.WARN.Printf("[RT] Push on %s failed: %s", ch.topic,
				r.Response)
		}
		return
	}
	if r.Status != replyOK {
		ch.mux.Unlock()
		jww.ERROR.Printf("[RT] Join of %s rejected: %s", ch.topic, r.Response)
		ch.scheduleRejoin()
		return
	}
	ch.joined = true
	tracked := ch.tracked
	onJoined := append([]func(){}, ch.onJoined...)
	ch.mux.Unlock()

	jww.INFO.Printf("[RT] Joined %s", ch.topic)
	if tracked != nil {
		if err := ch.pushTrack(tracked); err != nil {
			jww.WARN.Printf("[RT] Failed to track presence on %s: %+v",
				ch.topic, err)
		}
	}
	for _, cb := range onJoined {
		cb()
	}
}

func (ch *Channel) handleChange(payload json.RawMessage) {
	var p changePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		jww.WARN.Printf("[RT] Malformed change on %s: %+v", ch.topic, err)
		return
	}
	c := Change{
		Schema:          p.Data.Schema,
		Table:           p.Data.Table,
		Type:            ChangeEvent(p.Data.Type),
		CommitTimestamp: p.Data.CommitTimestamp,
		New:             p.Data.Record,
		Old:             p.Data.OldRecord,
	}

	ch.mux.RLock()
	var cbs []func(Change)
	for _, b := range ch.changes {
		if b.filter.Table != c.Table {
			continue
		}
		if b.filter.Event != string(All) && b.filter.Event != string(c.Type) {
			continue
		}
		cbs = append(cbs, b.cb)
	}
	ch.mux.RUnlock()

	for _, cb := range cbs {
		cb(c)
	}
}

// syncPresence applies the reducer to the roster and reports the result.
func (ch *Channel) syncPresence(reducer func(Roster) Roster) {
	ch.mux.Lock()
	ch.roster = reducer(ch.roster)
	roster := ch.roster
	cbs := append([]func(Roster){}, ch.onPresence...)
	ch.mux.Unlock()

	for _, cb := range cbs {
		cb(roster)
	}
}
