////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package realtime is a client for the backend's realtime websocket. One
// connection carries any number of channels; each channel multiplexes row
// change notifications, broadcast events and a presence roster. The
// connection reconnects with exponential backoff and every subscribed
// channel is rejoined, with all of its bindings, on every connect.
package realtime

import (
	"encoding/json"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"

	"github.com/chatwave/client/stoppable"
)

// Error messages.
const (
	alreadyRunningErr = "cannot start realtime threads, they are already running"
	dialErr           = "failed to connect to %s"
	readErr           = "realtime connection read failed"
	writeErr          = "realtime connection write failed"
	heartbeatErr      = "heartbeat %s was not acknowledged within %s"
	sendFullErr       = "send buffer full, dropping %s on %s"
	encodeFrameErr    = "failed to encode %s on %s"
)

// Client owns the websocket connection and its channels.
type Client struct {
	params Params
	dialer *websocket.Dialer
	health *tracker

	// Frames waiting to be written, possibly across reconnects
	send chan []byte

	ref uint64

	accessToken      string
	channels         map[string]*Channel
	connected        bool
	running          bool
	pendingHeartbeat string
	mux              sync.RWMutex
}

// NewClient returns a client that authenticates channels with the access
// token. Nothing connects until StartProcesses.
func NewClient(params Params, accessToken string) *Client {
	return &Client{
		params: params,
		dialer: &websocket.Dialer{
			HandshakeTimeout: params.HandshakeTimeout,
		},
		health:      newTracker(2 * params.HeartbeatPeriod),
		send:        make(chan []byte, params.SendBuffer),
		accessToken: accessToken,
		channels:    make(map[string]*Channel),
	}
}

// Health returns the connection health monitor.
func (c *Client) Health() Monitor {
	return c.health
}

// IsConnected returns true while the websocket is open.
func (c *Client) IsConnected() bool {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.connected
}

// Channel returns the channel with the name, creating it on first use.
func (c *Client) Channel(name string) *Channel {
	topic := topicPrefix + name

	c.mux.Lock()
	defer c.mux.Unlock()
	if ch, ok := c.channels[topic]; ok {
		return ch
	}
	ch := newChannel(c, topic)
	c.channels[topic] = ch
	return ch
}

// SetAccessToken replaces the access token and pushes it to every joined
// channel.
func (c *Client) SetAccessToken(token string) {
	c.mux.Lock()
	c.accessToken = token
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mux.Unlock()

	for _, ch := range channels {
		if ch.IsJoined() {
			payload := map[string]string{"access_token": token}
			if err := ch.push(eventToken, payload); err != nil {
				jww.WARN.Printf("[RT] Failed to refresh token on %s: %+v",
					ch.topic, err)
			}
		}
	}
}

func (c *Client) token() string {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.accessToken
}

// StartProcesses connects and keeps the connection alive until the returned
// stoppable is closed.
func (c *Client) StartProcesses() (stoppable.Stoppable, error) {
	c.mux.Lock()
	if c.running {
		c.mux.Unlock()
		return nil, errors.New(alreadyRunningErr)
	}
	c.running = true
	c.mux.Unlock()

	multi := stoppable.NewMulti("realtime")

	healthStop := stoppable.NewSingle("realtimeHealth")
	multi.Add(healthStop)
	go c.health.start(healthStop)

	connStop := stoppable.NewSingle("realtimeConnection")
	multi.Add(connStop)
	go c.run(connStop)

	return multi, nil
}

// run connects, serves the connection until it fails and reconnects after a
// backoff, until stopped.
func (c *Client) run(stop *stoppable.Single) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.params.ReconnectInitial
	b.MaxInterval = c.params.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	defer func() {
		c.mux.Lock()
		c.running = false
		c.mux.Unlock()
		stop.ToStopped()
	}()

	for {
		conn, err := c.dial()
		if err == nil {
			b.Reset()
			err = c.serve(conn, stop.Quit())
			c.disconnected()
			if err == nil {
				jww.INFO.Printf("[RT] Realtime connection closed")
				return
			}
		}

		wait := b.NextBackOff()
		jww.WARN.Printf("[RT] Realtime connection lost, reconnecting in "+
			"%s: %+v", wait, err)
		select {
		case <-stop.Quit():
			return
		case <-time.After(wait):
		}
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.params.URL)
	if err != nil {
		return nil, errors.Wrapf(err, dialErr, c.params.URL)
	}
	q := u.Query()
	if c.params.APIKey != "" {
		q.Set("apikey", c.params.APIKey)
	}
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, dialErr, c.params.URL)
	}
	return conn, nil
}

// serve runs the connection. Every subscribed channel is joined first, then
// queued frames and heartbeats are written until the connection fails or
// quit is closed. Returns nil only when quit was closed.
func (c *Client) serve(conn *websocket.Conn, quit <-chan struct{}) error {
	defer conn.Close()

	readErrCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}
			c.route(data)
		}
	}()

	limiter := ratelimit.NewUnlimited()
	if c.params.SendRate > 0 {
		limiter = ratelimit.New(c.params.SendRate)
	}
	write := func(data []byte) error {
		limiter.Take()
		_ = conn.SetWriteDeadline(time.Now().Add(c.params.HandshakeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return errors.Wrap(err, writeErr)
		}
		return nil
	}

	c.mux.Lock()
	c.connected = true
	c.pendingHeartbeat = ""
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mux.Unlock()
	jww.INFO.Printf("[RT] Connected to %s", c.params.URL)

	for _, ch := range channels {
		join, ok := ch.joinFrame()
		if !ok {
			continue
		}
		if err := write(join); err != nil {
			return err
		}
	}

	heartbeat := time.NewTicker(c.params.HeartbeatPeriod)
	defer heartbeat.Stop()

	for {
		select {
		case <-quit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		case err := <-readErrCh:
			return errors.Wrap(err, readErr)
		case data := <-c.send:
			if err := write(data); err != nil {
				return err
			}
		case <-heartbeat.C:
			c.mux.Lock()
			pending := c.pendingHeartbeat
			ref := c.nextRef()
			c.pendingHeartbeat = ref
			c.mux.Unlock()

			if pending != "" {
				c.health.report(false)
				return errors.Errorf(heartbeatErr, pending,
					c.params.HeartbeatPeriod)
			}

			data, _ := json.Marshal(Frame{
				Topic:   phoenixTopic,
				Event:   eventHeartbeat,
				Payload: json.RawMessage(`{}`),
				Ref:     &ref,
			})
			if err := write(data); err != nil {
				return err
			}
		}
	}
}

// disconnected marks every channel as left.
func (c *Client) disconnected() {
	c.mux.Lock()
	c.connected = false
	c.pendingHeartbeat = ""
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mux.Unlock()

	c.health.report(false)
	for _, ch := range channels {
		ch.left()
	}
}

// route hands a received frame to its channel.
func (c *Client) route(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		jww.WARN.Printf("[RT] Dropping malformed frame: %+v", err)
		return
	}

	if f.Topic == phoenixTopic {
		if f.Event == eventReply && f.Ref != nil {
			c.mux.Lock()
			acked := c.pendingHeartbeat == *f.Ref
			if acked {
				c.pendingHeartbeat = ""
			}
			c.mux.Unlock()
			if acked {
				c.health.report(true)
			}
		}
		return
	}

	c.mux.RLock()
	ch, ok := c.channels[f.Topic]
	c.mux.RUnlock()
	if !ok {
		jww.DEBUG.Printf("[RT] Dropping %s for unknown topic %s",
			f.Event, f.Topic)
		return
	}
	ch.handle(f)
}

// enqueue queues an encoded frame for writing. Fails if the buffer is full.
func (c *Client) enqueue(data []byte, what, topic string) error {
	select {
	case c.send <- data:
		return nil
	default:
		return errors.Errorf(sendFullErr, what, topic)
	}
}

// nextRef returns a new message reference. Callers may hold c.mux.
func (c *Client) nextRef() string {
	return strconv.FormatUint(atomic.AddUint64(&c.ref, 1), 10)
}
