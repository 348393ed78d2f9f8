// Package metrics records unit-of-work and production run counters in a
// private Prometheus registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Unit-of-work results.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultConflict = "conflict"
)

// Recorder owns the batchworks collectors.
type Recorder struct {
	registry    *prometheus.Registry
	attempts    *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	results     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

// New creates a Recorder with its own registry, including Go runtime collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "batchworks",
			Subsystem: "uow",
			Name:      "attempts_total",
			Help:      "Attempts made to commit a unit of work.",
		}, []string{"unit"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "batchworks",
			Subsystem: "uow",
			Name:      "conflicts_total",
			Help:      "Attempts rolled back because data read was modified concurrently.",
		}, []string{"unit"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "batchworks",
			Subsystem: "uow",
			Name:      "results_total",
			Help:      "Final outcome of each unit of work.",
		}, []string{"unit", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "batchworks",
			Subsystem: "uow",
			Name:      "duration_seconds",
			Help:      "Wall time of a unit of work across all attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"unit"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "batchworks",
			Name:      "run_transitions_total",
			Help:      "Production run lifecycle events that committed.",
		}, []string{"event"}),
	}

	r.registry.MustRegister(
		r.attempts,
		r.conflicts,
		r.results,
		r.duration,
		r.transitions,
		collectors.NewGoCollector(),
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// UnitAttempt counts one attempt of unit.
func (r *Recorder) UnitAttempt(unit string) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(unit).Inc()
}

// UnitConflict counts one conflicting attempt of unit.
func (r *Recorder) UnitConflict(unit string) {
	if r == nil {
		return
	}
	r.conflicts.WithLabelValues(unit).Inc()
}

// UnitResult records the final outcome and duration of unit.
func (r *Recorder) UnitResult(unit, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.results.WithLabelValues(unit, result).Inc()
	r.duration.WithLabelValues(unit).Observe(d.Seconds())
}

// RunTransition counts a committed run lifecycle event.
func (r *Recorder) RunTransition(event string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(event).Inc()
}

// WriteTextfile writes the registry in the Prometheus text format, for the
// node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Attempts returns the attempts counter for unit.
func (r *Recorder) Attempts(unit string) prometheus.Counter {
	return r.attempts.WithLabelValues(unit)
}

// Conflicts returns the conflicts counter for unit.
func (r *Recorder) Conflicts(unit string) prometheus.Counter {
	return r.conflicts.WithLabelValues(unit)
}

// Results returns the result counter for unit and result.
func (r *Recorder) Results(unit, result string) prometheus.Counter {
	return r.results.WithLabelValues(unit, result)
}

// Transitions returns the transition counter for event.
func (r *Recorder) Transitions(event string) prometheus.Counter {
	return r.transitions.WithLabelValues(event)
}
