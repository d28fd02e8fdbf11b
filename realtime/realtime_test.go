////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/stretchr/testify/require"

	"github.com/chatwave/client/stoppable"
)

func TestMain(m *testing.M) {
	jww.SetStdoutThreshold(jww.LevelDebug)
	os.Exit(m.Run())
}

const waitFor = 2 * time.Second

// fakeServer plays the backend side of the realtime protocol. Joins and
// heartbeats are acknowledged automatically.
type fakeServer struct {
	srv    *httptest.Server
	frames chan Frame

	ackHeartbeats bool

	conn    *websocket.Conn
	connMux sync.Mutex
	conns   int
}

func newFakeServer(t *testing.T, ackHeartbeats bool) *fakeServer {
	fs := &fakeServer{frames: make(chan Frame, 100),
		ackHeartbeats: ackHeartbeats}
	upgrader := websocket.Upgrader{}

	fs.srv = httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			fs.connMux.Lock()
			fs.conn = conn
			fs.conns++
			fs.connMux.Unlock()

			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var f Frame
				if err = json.Unmarshal(data, &f); err != nil {
					continue
				}
				fs.frames <- f

				ack := f.Event == eventJoin ||
					(f.Event == eventHeartbeat && fs.ackHeartbeats)
				if ack {
					fs.write(conn, Frame{
						Topic:   f.Topic,
						Event:   eventReply,
						Payload: json.RawMessage(`{"status":"ok","response":{}}`),
						Ref:     f.Ref,
						JoinRef: f.JoinRef,
					})
				}
			}
		}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) write(conn *websocket.Conn, f Frame) {
	data, _ := json.Marshal(f)
	fs.connMux.Lock()
	defer fs.connMux.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// push sends a frame on the current connection.
func (fs *fakeServer) push(topic, event, payload string) {
	fs.connMux.Lock()
	conn := fs.conn
	fs.connMux.Unlock()
	fs.write(conn, Frame{
		Topic:   topic,
		Event:   event,
		Payload: json.RawMessage(payload),
	})
}

// drop closes the current connection.
func (fs *fakeServer) drop() {
	fs.connMux.Lock()
	defer fs.connMux.Unlock()
	_ = fs.conn.Close()
}

func (fs *fakeServer) connections() int {
	fs.connMux.Lock()
	defer fs.connMux.Unlock()
	return fs.conns
}

// next returns the next frame the client sent with the event.
func (fs *fakeServer) next(t *testing.T, event string) Frame {
	timeout := time.After(waitFor)
	for {
		select {
		case f := <-fs.frames:
			if f.Event == event {
				return f
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %s", event)
		}
	}
}

func testParams(url string) Params {
	p := GetDefaultParams()
	p.URL = url
	p.HeartbeatPeriod = time.Hour
	p.ReconnectInitial = 10 * time.Millisecond
	p.ReconnectMax = 50 * time.Millisecond
	p.RejoinDelay = 10 * time.Millisecond
	p.SendRate = 1000
	return p
}

func start(t *testing.T, c *Client) {
	stop, err := c.StartProcesses()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = stop.Close()
		_ = stoppable.WaitForStopped(stop, waitFor)
	})
}

// Tests that the join declares every binding, the presence key and the
// access token.
func TestChannel_JoinDeclaresBindings(t *testing.T) {
	fs := newFakeServer(t, true)
	c := NewClient(testParams(fs.url()), "tok-1")

	noop := func(Change) {}
	ch := c.Channel("chat").WithPresenceKey("u1").
		OnPostgresChange(Insert, "messages", "", noop).
		OnPostgresChange(Update, "group_messages", "group_id=eq.g1", noop)
	ch.Subscribe()
	start(t, c)

	join := fs.next(t, eventJoin)
	require.Equal(t, "realtime:chat", join.Topic)
	require.Equal(t, *join.Ref, *join.JoinRef)

	var p joinPayload
	require.NoError(t, json.Unmarshal(join.Payload, &p))
	require.Equal(t, "tok-1", p.AccessToken)
	require.Equal(t, "u1", p.Config.Presence.Key)
	require.Equal(t, []postgresFilter{
		{Event: "INSERT", Schema: "public", Table: "messages"},
		{Event: "UPDATE", Schema: "public", Table: "group_messages",
			Filter: "group_id=eq.g1"},
	}, p.Config.PostgresChanges)

	require.Eventually(t, ch.IsJoined, waitFor, 5*time.Millisecond)
}

// Tests that row changes reach the bindings of their table and event.
func TestChannel_RoutesChanges(t *testing.T) {
	fs := newFakeServer(t, true)
	c := NewClient(testParams(fs.url()), "tok")

	inserts := make(chan Change, 10)
	updates := make(chan Change, 10)
	ch := c.Channel("chat").
		OnPostgresChange(Insert, "messages", "", func(ch Change) {
			inserts <- ch
		}).
		OnPostgresChange(Update, "messages", "", func(ch Change) {
			updates <- ch
		})
	ch.Subscribe()
	start(t, c)
	fs.next(t, eventJoin)
	require.Eventually(t, ch.IsJoined, waitFor, 5*time.Millisecond)

	fs.push("realtime:chat", eventPostgresChanges, `{"ids":[1],"data":{`+
		`"schema":"public","table":"messages","type":"INSERT",`+
		`"record":{"id":"m1"},"old_record":null}}`)
	fs.push("realtime:chat", eventPostgresChanges, `{"ids":[2],"data":{`+
		`"schema":"public","table":"messages","type":"UPDATE",`+
		`"record":{"id":"m1","is_read":true},"old_record":{"id":"m1"}}}`)
	fs.push("realtime:chat", eventPostgresChanges, `{"ids":[3],"data":{`+
		`"schema":"public","table":"groups","type":"INSERT",`+
		`"record":{"id":"g1"}}}`)

	select {
	case got := <-inserts:
		require.Equal(t, Insert, got.Type)
		require.JSONEq(t, `{"id":"m1"}`, string(got.New))
	case <-time.After(waitFor):
		t.Fatal("No insert")
	}
	select {
	case got := <-updates:
		require.JSONEq(t, `{"id":"m1","is_read":true}`, string(got.New))
	case <-time.After(waitFor):
		t.Fatal("No update")
	}
	require.Empty(t, inserts)
}

// Tests sending and receiving broadcasts.
func TestChannel_Broadcast(t *testing.T) {
	fs := newFakeServer(t, true)
	c := NewClient(testParams(fs.url()), "tok")

	got := make(chan json.RawMessage, 1)
	ch := c.Channel("chat").OnBroadcast("typing", func(p json.RawMessage) {
		got <- p
	})

	require.Error(t, ch.Broadcast("typing", map[string]string{}))

	ch.Subscribe()
	start(t, c)
	fs.next(t, eventJoin)
	require.Eventually(t, ch.IsJoined, waitFor, 5*time.Millisecond)

	require.NoError(t, ch.Broadcast("call-offer", map[string]string{
		"to": "u2"}))
	f := fs.next(t, eventBroadcast)
	var b broadcastPayload
	require.NoError(t, json.Unmarshal(f.Payload, &b))
	require.Equal(t, "broadcast", b.Type)
	require.Equal(t, "call-offer", b.Event)
	require.JSONEq(t, `{"to":"u2"}`, string(b.Payload))
	require.NotNil(t, f.JoinRef)

	fs.push("realtime:chat", eventBroadcast,
		`{"type":"broadcast","event":"typing","payload":{"user_id":"u3"}}`)
	select {
	case p := <-got:
		require.JSONEq(t, `{"user_id":"u3"}`, string(p))
	case <-time.After(waitFor):
		t.Fatal("No broadcast")
	}
}

// Tests that presence is tracked after joining and that the roster follows
// state and diffs.
func TestChannel_Presence(t *testing.T) {
	fs := newFakeServer(t, true)
	c := NewClient(testParams(fs.url()), "tok")

	rosters := make(chan Roster, 10)
	ch := c.Channel("chat").WithPresenceKey("u1").
		OnPresenceSync(func(r Roster) { rosters <- r })
	require.NoError(t, ch.Track(map[string]string{"user_id": "u1"}))
	ch.Subscribe()
	start(t, c)

	fs.next(t, eventJoin)
	track := fs.next(t, eventPresence)
	var b broadcastPayload
	require.NoError(t, json.Unmarshal(track.Payload, &b))
	require.Equal(t, "track", b.Event)
	require.JSONEq(t, `{"user_id":"u1"}`, string(b.Payload))

	fs.push("realtime:chat", eventPresenceState,
		`{"u1":{"metas":[{"phx_ref":"r1"}]},"u2":{"metas":[{"phx_ref":"r2"}]}}`)
	fs.push("realtime:chat", eventPresenceDiff,
		`{"joins":{"u3":{"metas":[{"phx_ref":"r3"}]}},`+
			`"leaves":{"u2":{"metas":[{"phx_ref":"r2"}]}}}`)

	var last Roster
	for i := 0; i < 2; i++ {
		select {
		case last = <-rosters:
		case <-time.After(waitFor):
			t.Fatal("No presence sync")
		}
	}
	require.Equal(t, []string{"u1", "u3"}, last.Keys())
	require.Equal(t, last, ch.Presence())
}

// Tests that a dropped connection is re-established, the channel rejoined
// with its bindings and the presence re-announced.
func TestClient_ReconnectRejoins(t *testing.T) {
	fs := newFakeServer(t, true)
	c := NewClient(testParams(fs.url()), "tok")

	var joins int
	var mux sync.Mutex
	ch := c.Channel("chat").
		OnPostgresChange(Insert, "messages", "", func(Change) {}).
		OnJoined(func() {
			mux.Lock()
			joins++
			mux.Unlock()
		})
	require.NoError(t, ch.Track(map[string]string{"user_id": "u1"}))
	ch.Subscribe()
	start(t, c)

	fs.next(t, eventJoin)
	fs.next(t, eventPresence)

	fs.drop()

	rejoin := fs.next(t, eventJoin)
	var p joinPayload
	require.NoError(t, json.Unmarshal(rejoin.Payload, &p))
	require.Len(t, p.Config.PostgresChanges, 1)
	fs.next(t, eventPresence)

	require.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return joins == 2
	}, waitFor, 5*time.Millisecond)
	require.Equal(t, 2, fs.connections())
}

// Tests that acknowledged heartbeats make the connection healthy and that an
// unacknowledged heartbeat forces a reconnect.
func TestClient_Heartbeat(t *testing.T) {
	fs := newFakeServer(t, true)
	p := testParams(fs.url())
	p.HeartbeatPeriod = 20 * time.Millisecond
	c := NewClient(p, "tok")
	start(t, c)

	fs.next(t, eventHeartbeat)
	require.Eventually(t, c.Health().IsHealthy, waitFor, 5*time.Millisecond)
	require.True(t, c.Health().WasHealthy())

	silent := newFakeServer(t, false)
	p = testParams(silent.url())
	p.HeartbeatPeriod = 20 * time.Millisecond
	c = NewClient(p, "tok")
	start(t, c)

	require.Eventually(t, func() bool { return silent.connections() >= 2 },
		waitFor, 5*time.Millisecond)
	require.False(t, c.Health().WasHealthy())
}

// Tests that starting twice fails.
func TestClient_StartTwice(t *testing.T) {
	fs := newFakeServer(t, true)
	c := NewClient(testParams(fs.url()), "tok")
	start(t, c)
	_, err := c.StartProcesses()
	require.Error(t, err)
}

// Tests the roster reducer directly.
func TestApplyDiff(t *testing.T) {
	cur := Roster{
		"a": {{Ref: "1"}, {Ref: "2"}},
		"b": {{Ref: "3"}},
	}
	joins := Roster{"a": {{Ref: "4"}}, "c": {{Ref: "5"}}}
	leaves := Roster{"a": {{Ref: "1"}}, "b": {{Ref: "3"}}, "z": {{Ref: "9"}}}

	out := applyDiff(cur, joins, leaves)
	require.Equal(t, []string{"a", "c"}, out.Keys())
	require.Equal(t, []Meta{{Ref: "4"}, {Ref: "2"}}, out["a"])

	// The input is untouched
	require.Len(t, cur["a"], 2)
	require.True(t, cur.Has("b"))
}
