////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package poll runs the periodic reconciliation sweep that backs up the
// change feed. At most one sweep is in flight; ticks that fire during a
// sweep are dropped and counted.
package poll

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/stoppable"
)

const (
	alreadyRunningErr = "polling is already running"
	metricsErr        = "failed to register poll metrics"
)

// Sweeper reloads server state into the session.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// SweepFunc adapts a function to a Sweeper.
type SweepFunc func(ctx context.Context) error

// Sweep calls f.
func (f SweepFunc) Sweep(ctx context.Context) error { return f(ctx) }

// Params configures the reconciler.
type Params struct {
	// Interval between sweeps
	Interval time.Duration

	// Timeout bounds a single sweep
	Timeout time.Duration
}

// GetDefaultParams returns the default poll parameters.
func GetDefaultParams() Params {
	return Params{
		Interval: time.Second,
		Timeout:  10 * time.Second,
	}
}

// GetParameters returns the default parameters overridden by the JSON in
// params, if set.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}

// Reconciler calls a Sweeper on a fixed interval.
type Reconciler struct {
	sweeper Sweeper
	params  Params
	metrics *metrics

	inFlight    atomic.Bool
	consecutive atomic.Int64
	wg          sync.WaitGroup

	running bool
	mux     sync.Mutex
}

// NewReconciler creates a reconciler whose metrics are registered with reg.
// A nil reg registers them with a private registry.
func NewReconciler(sweeper Sweeper, params Params,
	reg prometheus.Registerer) (*Reconciler, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, errors.Wrap(err, metricsErr)
	}
	return &Reconciler{
		sweeper: sweeper,
		params:  params,
		metrics: m,
	}, nil
}

// StartProcesses starts the ticker. The returned stoppable waits for an
// in-flight sweep after cancelling it.
func (r *Reconciler) StartProcesses() (stoppable.Stoppable, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.running {
		return nil, errors.New(alreadyRunningErr)
	}
	r.running = true

	stop := stoppable.NewSingle("pollReconciler")
	go r.run(stop)
	return stop, nil
}

func (r *Reconciler) run(stop *stoppable.Single) {
	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(r.params.Interval)
	defer ticker.Stop()

	jww.INFO.Printf("[POLL] Sweeping every %s", r.params.Interval)
	for {
		select {
		case <-stop.Quit():
			cancel()
			r.wg.Wait()
			r.mux.Lock()
			r.running = false
			r.mux.Unlock()
			stop.ToStopped()
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick starts a sweep unless one is in flight.
func (r *Reconciler) tick(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.metrics.skipped.Inc()
		jww.TRACE.Printf("[POLL] Skipping tick, sweep in flight")
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.sweep(ctx)
	}()
}

// Trigger runs a sweep now on the calling goroutine. It returns false
// without sweeping if another sweep is in flight.
func (r *Reconciler) Trigger(ctx context.Context) (bool, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.metrics.skipped.Inc()
		return false, nil
	}
	return true, r.sweep(ctx)
}

// sweep runs one sweep. The in-flight flag must be held.
func (r *Reconciler) sweep(parent context.Context) error {
	defer r.inFlight.Store(false)

	ctx := parent
	if r.params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.params.Timeout)
		defer cancel()
	}

	r.metrics.sweeps.Inc()
	start := time.Now()
	err := r.sweeper.Sweep(ctx)
	r.metrics.duration.Observe(time.Since(start).Seconds())

	if err != nil {
		if parent.Err() != nil {
			return err
		}
		n := r.consecutive.Add(1)
		r.metrics.failures.Inc()
		r.metrics.consecutive.Set(float64(n))
		jww.WARN.Printf("[POLL] Sweep failed (%d in a row): %+v", n, err)
		return err
	}

	if n := r.consecutive.Swap(0); n > 0 {
		jww.INFO.Printf("[POLL] Sweep recovered after %d failures", n)
	}
	r.metrics.consecutive.Set(0)
	return nil
}

// ConsecutiveFailures returns the number of sweeps failed since the last
// successful one.
func (r *Reconciler) ConsecutiveFailures() int {
	return int(r.consecutive.Load())
}
