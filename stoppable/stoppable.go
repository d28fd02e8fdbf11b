////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package stoppable tracks the lifecycle of the long-running goroutines owned
// by a chat session (realtime reader and writer, poller, event reporter).
package stoppable

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Error message.
const (
	timeoutErr = "timed out after %s waiting for %s to stop"

	// ErrMsg is returned by operations attempted on a stopping thread.
	ErrMsg = "thread %q stopping, cannot run %s"

	errKey = "stoppable stopping, cannot run"
)

// Polling interval used by WaitForStopped.
const pollPeriod = 10 * time.Millisecond

// Stoppable is a goroutine, or group of goroutines, that can be signalled to
// quit.
type Stoppable interface {
	// Name returns the name of the thread. Used for logging.
	Name() string

	// GetStatus returns the current Status.
	GetStatus() Status

	// IsRunning returns true if the thread has not been told to stop.
	IsRunning() bool

	// IsStopping returns true if the thread has been told to stop but has not
	// yet returned.
	IsStopping() bool

	// IsStopped returns true once the thread has returned.
	IsStopped() bool

	// Close signals the thread to stop. It does not block until the thread
	// returns; use WaitForStopped for that.
	Close() error
}

// WaitForStopped polls the stoppable until it reports that it is stopped or
// the timeout is reached.
func WaitForStopped(s Stoppable, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()

	for !s.IsStopped() {
		select {
		case <-deadline.C:
			return errors.Errorf(timeoutErr, timeout, s.Name())
		case <-ticker.C:
		}
	}

	jww.DEBUG.Printf("Stoppable %s stopped", s.Name())
	return nil
}

// CheckErr returns true if the error was produced because a thread was
// stopping.
func CheckErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), errKey) ||
		strings.Contains(err.Error(), "stopping, cannot run")
}
