////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Error message.
const toStoppingErr = "failed to set the status of single stoppable %q to " +
	"stopping when status is %s instead of %s"

// Single allows stopping a single goroutine using a channel. It adheres to the
// Stoppable interface.
type Single struct {
	name   string
	quit   chan struct{}
	status uint32
	once   sync.Once
}

// NewSingle returns a new Single in the Running state.
func NewSingle(name string) *Single {
	return &Single{
		name:   name,
		quit:   make(chan struct{}),
		status: uint32(Running),
	}
}

// Name returns the name of the Single.
func (s *Single) Name() string {
	return s.name
}

// GetStatus returns the status of the Single.
func (s *Single) GetStatus() Status {
	return Status(atomic.LoadUint32(&s.status))
}

// IsRunning returns true if the Single is marked as running.
func (s *Single) IsRunning() bool {
	return s.GetStatus() == Running
}

// IsStopping returns true if the Single is marked as stopping.
func (s *Single) IsStopping() bool {
	return s.GetStatus() == Stopping
}

// IsStopped returns true if the Single is marked as stopped.
func (s *Single) IsStopped() bool {
	return s.GetStatus() == Stopped
}

// ToStopped changes the status from stopping to stopped. The owning goroutine
// calls this as it returns. Panics if the status is not stopping.
func (s *Single) ToStopped() {
	if !atomic.CompareAndSwapUint32(
		&s.status, uint32(Stopping), uint32(Stopped)) {
		jww.FATAL.Panicf("Failed to set the status of single stoppable %q "+
			"to stopped when status is %s instead of %s.",
			s.name, s.GetStatus(), Stopping)
	}

	jww.TRACE.Printf("Switched status of single stoppable %q from %s to %s.",
		s.name, Stopping, Stopped)
}

// Quit returns a receive-only channel that is closed when the Single is told
// to stop.
func (s *Single) Quit() <-chan struct{} {
	return s.quit
}

// Close signals the Single to stop via the quit channel. Returns an error if
// the Single was not running.
func (s *Single) Close() error {
	err := errors.Errorf(toStoppingErr, s.name, s.GetStatus(), Running)

	s.once.Do(func() {
		if !atomic.CompareAndSwapUint32(
			&s.status, uint32(Running), uint32(Stopping)) {
			return
		}
		err = nil

		jww.TRACE.Printf("Closing quit channel of single stoppable %q.",
			s.name)
		close(s.quit)
	})

	if err != nil {
		jww.ERROR.Print(err.Error())
	}

	return err
}
