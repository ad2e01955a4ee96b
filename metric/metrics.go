// Package metric exposes Prometheus instrumentation for the compiler:
// workflow outcomes, source fetch results, and queue batch processing.
// All methods are nil-receiver safe so callers can run without metrics.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	workflowsStarted  *prometheus.CounterVec
	workflowsFinished *prometheus.CounterVec
	workflowDuration  *prometheus.HistogramVec

	fetchesTotal  *prometheus.CounterVec
	fetchDuration prometheus.Histogram

	queueMessages *prometheus.CounterVec
}

// New registers the collectors with reg. A nil registerer uses the default
// registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		workflowsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listforge",
			Name:      "workflows_started_total",
			Help:      "Workflows started, by workflow type.",
		}, []string{"type"}),
		workflowsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listforge",
			Name:      "workflows_finished_total",
			Help:      "Workflows finished, by workflow type and outcome.",
		}, []string{"type", "outcome"}),
		workflowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "listforge",
			Name:      "workflow_duration_seconds",
			Help:      "Wall time of completed workflows, by workflow type.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"type"}),
		fetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listforge",
			Name:      "source_fetches_total",
			Help:      "Source fetches, by outcome (success, failure, cached).",
		}, []string{"outcome"}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "listforge",
			Name:      "source_fetch_duration_seconds",
			Help:      "Duration of network source fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		queueMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listforge",
			Name:      "queue_messages_total",
			Help:      "Queue messages processed, by result (acked, retried, failed).",
		}, []string{"result"}),
	}
}

// WorkflowStarted counts a workflow start.
func (m *Metrics) WorkflowStarted(workflowType string) {
	if m == nil {
		return
	}
	m.workflowsStarted.WithLabelValues(workflowType).Inc()
}

// WorkflowFinished counts a workflow completion and observes its duration.
func (m *Metrics) WorkflowFinished(workflowType string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.workflowsFinished.WithLabelValues(workflowType, outcome).Inc()
	m.workflowDuration.WithLabelValues(workflowType).Observe(elapsed.Seconds())
}

// FetchObserved counts a source fetch outcome; network fetches also record
// their duration.
func (m *Metrics) FetchObserved(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(outcome).Inc()
	if outcome != "cached" {
		m.fetchDuration.Observe(elapsed.Seconds())
	}
}

// QueueMessage counts a queue message result.
func (m *Metrics) QueueMessage(result string) {
	if m == nil {
		return
	}
	m.queueMessages.WithLabelValues(result).Inc()
}
