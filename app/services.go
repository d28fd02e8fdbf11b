////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package app

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/stoppable"
)

// Service starts a long-running process. A nil stoppable means the service
// has nothing left running.
type Service func() (stoppable.Stoppable, error)

// Error messages.
const (
	notStoppedErr = "cannot start services when not stopped: %s"
	notRunningErr = "cannot stop services when not running: %s"
	startErr      = "failed to start service %d"
	stopErr       = "failed to stop services"
)

// services tracks the client's long-running processes so they start and stop
// together.
type services struct {
	services  []Service
	stoppable *stoppable.Multi
	state     Status
	timeout   time.Duration
	mux       sync.Mutex
}

// newServices returns a stopped services list.
func newServices() *services {
	return &services{
		services:  make([]Service, 0),
		stoppable: stoppable.NewMulti("services"),
		state:     Stopped,
	}
}

// add adds a service. If the services are running it is started at once and
// its failure is returned.
func (s *services) add(sp Service) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.state == Running {
		stop, err := sp()
		if err != nil {
			return errors.WithMessagef(err, startErr, len(s.services))
		}
		if stop != nil {
			s.stoppable.Add(stop)
		}
	}
	s.services = append(s.services, sp)
	return nil
}

// start starts every service in the order added. If one fails the services
// already started are stopped again. timeout bounds how long stop waits.
func (s *services) start(timeout time.Duration) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.state != Stopped {
		return errors.Errorf(notStoppedErr, s.state)
	}

	multi := stoppable.NewMulti("services")
	for i, sp := range s.services {
		stop, err := sp()
		if err != nil {
			if closeErr := multi.Close(); closeErr != nil {
				jww.ERROR.Printf("Failed to stop services after a failed "+
					"start: %+v", closeErr)
			}
			return errors.WithMessagef(err, startErr, i)
		}
		if stop != nil {
			multi.Add(stop)
		}
	}

	s.stoppable = multi
	s.timeout = timeout
	s.state = Running
	return nil
}

// stop stops every running service and waits for them to return.
func (s *services) stop() error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.state != Running {
		return errors.Errorf(notRunningErr, s.state)
	}
	s.state = Stopping

	err := s.stoppable.Close()
	if err == nil && s.timeout > 0 {
		err = stoppable.WaitForStopped(s.stoppable, s.timeout)
	}
	s.state = Stopped
	if err != nil {
		return errors.WithMessage(err, stopErr)
	}
	return nil
}

// status returns the current status.
func (s *services) status() Status {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.state
}
