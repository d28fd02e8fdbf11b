////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package poll

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatwave"

type metrics struct {
	sweeps      prometheus.Counter
	failures    prometheus.Counter
	skipped     prometheus.Counter
	consecutive prometheus.Gauge
	duration    prometheus.Histogram
}

// newMetrics creates the poll metrics and registers them with reg.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "sweeps_total",
			Help:      "Polling sweeps started.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "failures_total",
			Help:      "Polling sweeps that returned an error.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "skipped_total",
			Help:      "Ticks dropped because a sweep was in flight.",
		}),
		consecutive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "consecutive_failures",
			Help:      "Sweeps failed since the last successful one.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "sweep_seconds",
			Help:      "Duration of polling sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
	}

	for _, c := range []prometheus.Collector{m.sweeps, m.failures, m.skipped,
		m.consecutive, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
