// Package metrics exports pipeline transitions as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacoelho/weffo"
	"github.com/jacoelho/weffo/errors"
)

// Collectors holds the pipeline metrics.
type Collectors struct {
	Transitions *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Failures    *prometheus.CounterVec
}

// NewObserver registers the pipeline metrics with reg and returns an
// observer feeding them.
func NewObserver(reg prometheus.Registerer) (weffo.Observer, *Collectors, error) {
	c := &Collectors{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weffo_transitions_total",
				Help: "Pipeline request transitions by target state.",
			},
			[]string{"state"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weffo_stage_duration_seconds",
				Help:    "Time spent reaching each pipeline state.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"state"},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weffo_failures_total",
				Help: "Failed pipeline requests by stage and error code.",
			},
			[]string{"stage", "code"},
		),
	}
	for _, col := range []prometheus.Collector{c.Transitions, c.Duration, c.Failures} {
		if err := reg.Register(col); err != nil {
			return nil, nil, err
		}
	}
	return weffo.ObserverFunc(c.observe), c, nil
}

func (c *Collectors) observe(t weffo.Transition) {
	state := t.To.String()
	c.Transitions.WithLabelValues(state).Inc()
	c.Duration.WithLabelValues(state).Observe(t.Elapsed.Seconds())
	if t.To == weffo.StateFailed {
		code := string(errors.CodeOf(t.Err))
		if code == "" {
			code = "unknown"
		}
		c.Failures.WithLabelValues(string(t.Stage), code).Inc()
	}
}
