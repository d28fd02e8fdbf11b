////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Error message.
const closeMultiErr = "multi stoppable %q failed to close %d/%d children"

// Multi contains multiple stoppables and closes them all together. It adheres
// to the Stoppable interface.
type Multi struct {
	name       string
	stoppables []Stoppable
	mux        sync.RWMutex
	once       sync.Once
}

// NewMulti returns a new Multi with no children.
func NewMulti(name string) *Multi {
	return &Multi{name: name}
}

// Add adds the given Stoppable to the list of children.
func (m *Multi) Add(s Stoppable) {
	m.mux.Lock()
	m.stoppables = append(m.stoppables, s)
	m.mux.Unlock()
}

// Name returns the name of the Multi followed by the names of its children.
func (m *Multi) Name() string {
	m.mux.RLock()
	defer m.mux.RUnlock()

	names := make([]string, 0, len(m.stoppables))
	for _, s := range m.stoppables {
		names = append(names, s.Name())
	}

	return m.name + "{" + strings.Join(names, ", ") + "}"
}

// GetStatus returns the lowest status of all the children. A Multi with no
// children is stopped only after it has been closed.
func (m *Multi) GetStatus() Status {
	m.mux.RLock()
	defer m.mux.RUnlock()

	lowest := Stopped
	for _, s := range m.stoppables {
		if status := s.GetStatus(); status < lowest {
			lowest = status
		}
	}

	return lowest
}

// IsRunning returns true if any child is still running.
func (m *Multi) IsRunning() bool {
	return m.GetStatus() == Running
}

// IsStopping returns true if no child is running and at least one is still
// stopping.
func (m *Multi) IsStopping() bool {
	return m.GetStatus() == Stopping
}

// IsStopped returns true once every child has stopped.
func (m *Multi) IsStopped() bool {
	return m.GetStatus() == Stopped
}

// Close closes all children. Children that are already stopped are skipped.
// Returns an error listing how many children failed to close.
func (m *Multi) Close() error {
	var err error

	m.once.Do(func() {
		m.mux.RLock()
		defer m.mux.RUnlock()

		numErrors := 0
		var wg sync.WaitGroup
		var errMux sync.Mutex
		for _, s := range m.stoppables {
			if !s.IsRunning() {
				continue
			}
			wg.Add(1)
			go func(s Stoppable) {
				defer wg.Done()
				if closeErr := s.Close(); closeErr != nil {
					errMux.Lock()
					numErrors++
					errMux.Unlock()
				}
			}(s)
		}
		wg.Wait()

		if numErrors > 0 {
			err = errors.Errorf(
				closeMultiErr, m.name, numErrors, len(m.stoppables))
			jww.ERROR.Print(err.Error())
		}
	})

	return err
}
