////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package chat holds the state of a signed-in user and implements every
// user operation on it. The change feed and the poller both feed the same
// session through idempotent reducers, so whichever delivers a row first
// wins and the other is a no-op.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/time/rate"

	"github.com/chatwave/client/backend"
	"github.com/chatwave/client/backend/tables"
	"github.com/chatwave/client/event"
	"github.com/chatwave/client/messages"
	"github.com/chatwave/client/prefs"
)

// Error messages.
const (
	noOpenChatErr    = "no conversation or group is open"
	emptyMessageErr  = "cannot send an empty message"
	unknownMsgErr    = "message %s is not in the open chat"
	notOwnMessageErr = "message %s was sent by %s, not by you"
	notReceiverErr   = "request %s is addressed to %s, not to you"
	notPendingErr    = "request %s is already %s"
	selfRequestErr   = "cannot send a chat request to yourself"
	invalidHandleErr = "group handle %q must be 3 to 32 lowercase letters, " +
		"digits or underscores"
	emptyNameErr    = "group name cannot be empty"
	unavailableErr  = "%s are not available in this session"
	loggedOutErr    = "session has ended"
	orphanedErr     = "profile %s is not accessible"
	compensationErr = "failed to undo %s after an error"
)

// Session is one signed-in user's client state.
type Session struct {
	self   string
	params Params

	repo   Repository
	files  Uploader
	users  Directory
	prefs  Preferences
	events event.Reporter

	onLogout func(reason string)

	store *messages.Store
	seen  *seen

	mux           sync.RWMutex
	typer         Typer
	calls         Caller
	profile       tables.Profile
	conversations []tables.ConversationSummary
	requests      []tables.ChatRequest
	groups        []tables.Group
	online        map[string]time.Time
	typing        typingSet
	limiter       *rate.Limiter
	loggedOut     bool
}

// NewSession creates the session of user self. onChange is called with the
// open chat's list after every change and may be nil.
func NewSession(self string, deps Deps, params Params,
	onChange messages.ChangeFunc) *Session {
	events := deps.Events
	if events == nil {
		events = event.NewEventManager()
	}
	return &Session{
		self:     self,
		params:   params,
		repo:     deps.Repo,
		files:    deps.Files,
		users:    deps.Users,
		prefs:    deps.Prefs,
		events:   events,
		onLogout: deps.OnLogout,
		typer:    deps.Typer,
		calls:    deps.Calls,
		store:    messages.NewStore(onChange),
		seen:     newSeen(params.SeenCapacity),
		online:   map[string]time.Time{},
		typing:   typingSet{},
		limiter:  rate.NewLimiter(rate.Every(params.TypingInterval), 1),
	}
}

// Bind attaches the typing and call transports, which are built on top of
// the session.
func (s *Session) Bind(typer Typer, calls Caller) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.typer = typer
	s.calls = calls
}

// Self returns the signed-in user's ID.
func (s *Session) Self() string {
	return s.self
}

// Profile returns the signed-in user's profile as loaded by Start.
func (s *Session) Profile() tables.Profile {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.profile
}

// LoggedOut returns true once the session was forcibly ended.
func (s *Session) LoggedOut() bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.loggedOut
}

// Start verifies the user's profile and loads the initial state. A profile
// that cannot be read means the session is stale and ends it.
func (s *Session) Start(ctx context.Context) error {
	p, err := s.repo.Profile(ctx, s.self)
	if err != nil {
		if backend.IsAuth(err) || backend.IsRLS(err) ||
			backend.IsNotFound(err) {
			s.forceLogout(errors.Errorf(orphanedErr, s.self).Error())
		}
		return err
	}
	s.mux.Lock()
	s.profile = p
	s.mux.Unlock()

	if err = s.repo.TouchLastSeen(ctx, s.self, time.Now()); err != nil {
		jww.WARN.Printf("[CHAT] Failed to update last seen: %+v", err)
	}

	if _, err = s.LoadConversations(ctx); err != nil {
		return err
	}
	if _, err = s.LoadRequests(ctx); err != nil {
		return err
	}
	if _, err = s.LoadGroups(ctx); err != nil {
		return err
	}

	if s.prefs != nil {
		sel, ok, err := s.prefs.LastSelectedChat()
		if err != nil {
			jww.WARN.Printf("[CHAT] Failed to read last chat: %+v", err)
		} else if ok {
			scope := messages.Scope{ID: sel.ID, Group: sel.Group}
			if err = s.open(ctx, scope); err != nil {
				jww.WARN.Printf("[CHAT] Failed to reopen %s: %+v", scope, err)
			}
		}
	}

	jww.INFO.Printf("[CHAT] Session for %s started", s.self)
	return nil
}

// Close hangs up any call and closes the open chat.
func (s *Session) Close() {
	if calls := s.caller(); calls != nil {
		calls.Hangup()
	}
	s.store.Close()
}

// forceLogout ends the session once and reports it.
func (s *Session) forceLogout(reason string) {
	s.mux.Lock()
	if s.loggedOut {
		s.mux.Unlock()
		return
	}
	s.loggedOut = true
	s.mux.Unlock()

	jww.ERROR.Printf("[CHAT] Ending session of %s: %s", s.self, reason)
	if s.prefs != nil {
		if err := s.prefs.ForgetCredentials(); err != nil {
			jww.WARN.Printf("[CHAT] Failed to forget credentials: %+v", err)
		}
	}
	s.events.Report(event.Error, event.Session, event.SessionLogout, reason)
	if s.onLogout != nil {
		s.onLogout(reason)
	}
}

// background runs f off the calling goroutine with the session timeout.
// Used by feed handlers, which must not block.
func (s *Session) background(what string, f func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(),
			s.params.Timeout)
		defer cancel()
		if err := f(ctx); err != nil {
			if backend.IsAuth(err) {
				s.forceLogout(err.Error())
				return
			}
			jww.WARN.Printf("[CHAT] Failed to %s: %+v", what, err)
		}
	}()
}

func (s *Session) caller() Caller {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.calls
}

func (s *Session) typingSender() Typer {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.typer
}

func (s *Session) soundEnabled() bool {
	return s.prefs == nil || s.prefs.SoundEnabled()
}

func selectionOf(scope messages.Scope) prefs.Selection {
	return prefs.Selection{ID: scope.ID, Group: scope.Group}
}
