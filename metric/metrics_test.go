package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.WorkflowStarted("compile")
		m.WorkflowFinished("compile", true, time.Second)
		m.FetchObserved("success", time.Second)
		m.QueueMessage("acked")
	})
}

func TestCountersIncrement(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.WorkflowStarted("compile")
	m.WorkflowStarted("compile")
	m.WorkflowFinished("compile", true, 100*time.Millisecond)
	m.WorkflowFinished("compile", false, 100*time.Millisecond)
	m.FetchObserved("cached", 0)
	m.QueueMessage("retried")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.workflowsStarted.WithLabelValues("compile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflowsFinished.WithLabelValues("compile", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflowsFinished.WithLabelValues("compile", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetchesTotal.WithLabelValues("cached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queueMessages.WithLabelValues("retried")))

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
