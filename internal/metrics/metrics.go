// Package metrics provides Prometheus collectors for audit cycles.
//
// All methods are nil-safe so a nil *Metrics disables instrumentation.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit engine.
type Metrics struct {
	registry *prometheus.Registry

	// Cycle outcomes by job and outcome
	CycleOutcome *prometheus.CounterVec

	// Step failures by job and failure kind
	StepFailures *prometheus.CounterVec

	// Items moved to their completion status
	Completions *prometheus.CounterVec

	// Audit invocation wall time
	InvokeLatency *prometheus.HistogramVec

	// Eligible candidates seen by the most recent selection
	EligibleCandidates *prometheus.GaugeVec
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		CycleOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ampa_audit_cycles_total",
			Help: "Total audit cycles by job and outcome",
		}, []string{"job", "outcome"}),

		StepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ampa_audit_step_failures_total",
			Help: "Total recoverable step failures by job and kind",
		}, []string{"job", "kind"}),

		Completions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ampa_audit_completions_total",
			Help: "Total work items moved to completion by the evaluator",
		}, []string{"job"}),

		InvokeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ampa_audit_invoke_duration_seconds",
			Help:    "Duration of audit invocations",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"job", "timed_out"}),

		EligibleCandidates: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ampa_audit_eligible_candidates",
			Help: "Eligible candidates found by the most recent selection",
		}, []string{"job"}),
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncrementOutcome records a finished cycle.
func (m *Metrics) IncrementOutcome(job, outcome string) {
	if m != nil {
		m.CycleOutcome.WithLabelValues(job, outcome).Inc()
	}
}

// IncrementFailure records a recoverable step failure.
func (m *Metrics) IncrementFailure(job, kind string) {
	if m != nil {
		m.StepFailures.WithLabelValues(job, kind).Inc()
	}
}

// IncrementCompletion records an item moved to completion.
func (m *Metrics) IncrementCompletion(job string) {
	if m != nil {
		m.Completions.WithLabelValues(job).Inc()
	}
}

// ObserveInvoke records an audit invocation duration.
func (m *Metrics) ObserveInvoke(job string, d time.Duration, timedOut bool) {
	if m != nil {
		m.InvokeLatency.WithLabelValues(job, fmt.Sprint(timedOut)).Observe(d.Seconds())
	}
}

// SetEligible records the eligible-candidate count of a selection.
func (m *Metrics) SetEligible(job string, n int) {
	if m != nil {
		m.EligibleCandidates.WithLabelValues(job).Set(float64(n))
	}
}

// WriteTextfile writes all metrics in the node-exporter textfile format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
