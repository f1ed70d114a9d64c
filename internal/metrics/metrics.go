// Package metrics records reconciliation outcomes as Prometheus series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a single reconciliation.
const (
	OutcomeUnchanged = "unchanged"
	OutcomeChanged   = "changed"
	OutcomeFailed    = "failed"
	OutcomePlanned   = "planned"
)

// Recorder owns a private registry so that several runs in one process,
// and tests, never collide on the global default registry. A nil
// *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	reconciliations *prometheus.CounterVec
	actions         *prometheus.CounterVec
	failures        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
}

// New creates a Recorder with all series registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vcsrepo_reconciliations_total",
				Help: "Reconciliations performed, by ensure value and outcome",
			},
			[]string{"ensure", "outcome"},
		),
		actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vcsrepo_actions_total",
				Help: "Plan actions executed, by action kind",
			},
			[]string{"action"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vcsrepo_failures_total",
				Help: "Failed reconciliations, by error code",
			},
			[]string{"code"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vcsrepo_reconcile_duration_seconds",
				Help:    "Wall time of one reconciliation",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"ensure"},
		),
	}
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Action counts one executed action.
func (r *Recorder) Action(kind string) {
	if r == nil {
		return
	}
	r.actions.WithLabelValues(kind).Inc()
}

// Reconciled records the outcome of one reconciliation. code is empty
// unless the outcome is OutcomeFailed.
func (r *Recorder) Reconciled(ensure, outcome, code string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.reconciliations.WithLabelValues(ensure, outcome).Inc()
	r.duration.WithLabelValues(ensure).Observe(elapsed.Seconds())
	if outcome == OutcomeFailed {
		if code == "" {
			code = "UNKNOWN"
		}
		r.failures.WithLabelValues(code).Inc()
	}
}

// WriteTextfile dumps every series in the text exposition format, for the
// node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
