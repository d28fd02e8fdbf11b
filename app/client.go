////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package app assembles a signed-in client: the backend and realtime
// connections, the chat session, the change feed, the reconciler, calls and
// push registration, started and stopped as one set of services.
package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/backend"
	"github.com/chatwave/client/backend/tables"
	"github.com/chatwave/client/call"
	"github.com/chatwave/client/chat"
	"github.com/chatwave/client/event"
	"github.com/chatwave/client/feed"
	"github.com/chatwave/client/messages"
	"github.com/chatwave/client/notifications"
	"github.com/chatwave/client/poll"
	"github.com/chatwave/client/prefs"
	"github.com/chatwave/client/realtime"
	"github.com/chatwave/client/stoppable"
	"github.com/chatwave/client/upload"
)

// Error messages.
const (
	noPrefsErr      = "preferences are required to log in"
	uploaderErr     = "failed to create the uploader"
	reconcilerErr   = "failed to create the reconciler"
	startSessionErr = "failed to start the session"
	startFeedErr    = "failed to subscribe to the change feed"
)

// Client is a signed-in user's running client.
type Client struct {
	id     Identity
	params Params

	api    *backend.Client
	rt     *realtime.Client
	events event.Manager
	prefs  *prefs.Prefs

	session *chat.Session
	feed    *feed.Subscriber
	calls   *call.Manager
	poller  *poll.Reconciler
	push    *notifications.Manager

	services  *services
	loggedOut chan string
}

// Login builds a client for the user named by accessToken. Nothing connects
// until StartServices is called. onChange receives the open chat's messages
// after every change and may be nil. A nil reg registers the metrics with a
// private registry.
func Login(accessToken string, p *prefs.Prefs, params Params,
	reg prometheus.Registerer, onChange messages.ChangeFunc) (*Client, error) {
	if p == nil {
		return nil, errors.New(noPrefsErr)
	}
	id, err := ParseIdentity(accessToken)
	if err != nil {
		return nil, err
	}
	if id.Expired(time.Now()) {
		return nil, errors.Errorf(expiredErr, id.UserID, id.Expires)
	}

	c := &Client{
		id:        id,
		params:    params,
		api:       backend.NewClient(params.Backend, accessToken),
		rt:        realtime.NewClient(params.Realtime, accessToken),
		events:    event.NewEventManager(),
		prefs:     p,
		services:  newServices(),
		loggedOut: make(chan string, 1),
	}

	var transfer upload.Transfer = upload.NewStorageTransfer(c.api)
	if params.RelayUploads {
		transfer = upload.RelayTransfer{Client: c.api}
	}
	files, err := upload.NewUploader(transfer, params.Upload)
	if err != nil {
		return nil, errors.WithMessage(err, uploaderErr)
	}

	c.session = chat.NewSession(id.UserID, chat.Deps{
		Repo:     tables.New(c.api),
		Files:    files,
		Users:    c.api,
		Prefs:    p,
		Events:   c.events,
		OnLogout: c.onLogout,
	}, params.Session, onChange)

	c.feed = feed.NewSubscriber(c.rt.Channel(feed.DefaultChannel), id.UserID,
		c.session)
	c.calls = call.NewManager(id.UserID, c.feed, call.PionFactory(params.Call),
		call.StaticSource{}, c.events, params.Call)
	c.session.Bind(c.feed, c.calls)

	c.poller, err = poll.NewReconciler(c.session, params.Poll, reg)
	if err != nil {
		return nil, errors.WithMessage(err, reconcilerErr)
	}
	c.push = notifications.NewManager(id.UserID, c.api, p)

	for _, s := range []Service{
		c.events.EventService,
		c.rt.StartProcesses,
		c.startSession,
		c.poller.StartProcesses,
	} {
		if err = c.services.add(s); err != nil {
			return nil, err
		}
	}

	jww.INFO.Printf("[APP] Logged in as %s (%s)", id.UserID, id.Email)
	return c, nil
}

// startSession loads the session state, joins the change feed and
// re-registers the push token. The returned stoppable leaves the feed and
// closes the session.
func (c *Client) startSession() (stoppable.Stoppable, error) {
	ctx, cancel := context.WithTimeout(context.Background(),
		c.params.Session.Timeout)
	defer cancel()

	if err := c.session.Start(ctx); err != nil {
		return nil, errors.WithMessage(err, startSessionErr)
	}
	if err := c.feed.Start(); err != nil {
		c.session.Close()
		return nil, errors.WithMessage(err, startFeedErr)
	}
	c.push.Reregister(ctx)

	stop := stoppable.NewSingle("session")
	go func() {
		<-stop.Quit()
		c.feed.Stop()
		c.session.Close()
		stop.ToStopped()
	}()
	return stop, nil
}

// onLogout is called by the session when it is forcibly ended.
func (c *Client) onLogout(reason string) {
	select {
	case c.loggedOut <- reason:
	default:
	}
}

// StartServices connects and starts every service. It fails if the services
// are already running.
func (c *Client) StartServices() error {
	jww.INFO.Printf("[APP] Starting services for %s", c.id.UserID)
	return c.services.start(c.params.StopTimeout)
}

// StopServices stops every service and waits up to the stop timeout for
// them to return.
func (c *Client) StopServices() error {
	jww.INFO.Printf("[APP] Stopping services for %s", c.id.UserID)
	return c.services.stop()
}

// ServicesStatus returns the status of the services.
func (c *Client) ServicesStatus() Status {
	return c.services.status()
}

// HasRunningProcesses returns true if any service is still running.
func (c *Client) HasRunningProcesses() bool {
	c.services.mux.Lock()
	defer c.services.mux.Unlock()
	return c.services.stoppable.IsRunning()
}

// AddService adds a service that starts and stops with the client. If the
// client is running it is started at once.
func (c *Client) AddService(sp Service) error {
	return c.services.add(sp)
}

// LoggedOut receives the reason when the session is forcibly ended. The
// caller should then stop the services and discard the client.
func (c *Client) LoggedOut() <-chan string {
	return c.loggedOut
}

// Identity returns the signed-in user.
func (c *Client) Identity() Identity {
	return c.id
}

// Session returns the chat session.
func (c *Client) Session() *chat.Session {
	return c.session
}

// Events returns the event manager, for registering callbacks.
func (c *Client) Events() event.Manager {
	return c.events
}

// Prefs returns the local preferences.
func (c *Client) Prefs() *prefs.Prefs {
	return c.prefs
}

// Backend returns the backend client.
func (c *Client) Backend() *backend.Client {
	return c.api
}

// Push returns the push registration manager.
func (c *Client) Push() *notifications.Manager {
	return c.push
}

// Calls returns the call manager.
func (c *Client) Calls() *call.Manager {
	return c.calls
}

// Realtime returns the realtime connection, for its health monitor.
func (c *Client) Realtime() *realtime.Client {
	return c.rt
}

// Reconcile runs one sweep immediately. It returns false if one was
// already running.
func (c *Client) Reconcile(ctx context.Context) (bool, error) {
	return c.poller.Trigger(ctx)
}
