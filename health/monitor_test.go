package health

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listforge/listforge/storage"
)

const testSource = "https://filters.example.com/ads.txt"

func newTestMonitor(maxHistory int) *Monitor {
	return NewMonitor(storage.NewMemoryStore(), maxHistory, nil)
}

func recordN(t *testing.T, m *Monitor, source string, successes, failures int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < successes; i++ {
		require.NoError(t, m.RecordAttempt(ctx, source, Outcome{
			Success:   true,
			Duration:  100 * time.Millisecond,
			RuleCount: 500,
		}))
	}
	for i := 0; i < failures; i++ {
		require.NoError(t, m.RecordAttempt(ctx, source, Outcome{
			Duration: 50 * time.Millisecond,
			Error:    "unexpected HTTP status 503",
		}))
	}
}

func TestStatusThresholds(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		failures  int
		want      Status
	}{
		{"90 percent is healthy", 9, 1, StatusHealthy},
		{"exactly 80 percent is healthy", 8, 2, StatusHealthy},
		{"70 percent is degraded", 7, 3, StatusDegraded},
		{"exactly 50 percent is degraded", 5, 5, StatusDegraded},
		{"30 percent is unhealthy", 3, 7, StatusUnhealthy},
		{"all failures is unhealthy", 0, 10, StatusUnhealthy},
		{"all successes is healthy", 10, 0, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(0)
			recordN(t, m, testSource, tt.successes, tt.failures)

			metrics, err := m.Metrics(context.Background(), testSource)
			require.NoError(t, err)
			assert.Equal(t, tt.want, metrics.Status)
			assert.Equal(t, tt.successes+tt.failures, metrics.TotalAttempts)
			assert.InDelta(t, float64(tt.successes)/float64(tt.successes+tt.failures), metrics.SuccessRate, 1e-9)
		})
	}
}

func TestUnknownSource(t *testing.T) {
	m := newTestMonitor(0)

	_, err := m.Metrics(context.Background(), "https://never-recorded.example.com/list.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConsecutiveFailuresResetOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := newTestMonitor(0)

	recordN(t, m, testSource, 0, 3)
	metrics, err := m.Metrics(ctx, testSource)
	require.NoError(t, err)
	assert.Equal(t, 3, metrics.ConsecutiveFailures)
	assert.True(t, metrics.IsCurrentlyFailing)

	recordN(t, m, testSource, 1, 0)
	metrics, err = m.Metrics(ctx, testSource)
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.ConsecutiveFailures)
	assert.False(t, metrics.IsCurrentlyFailing)

	// Total counters are unaffected by the reset.
	assert.Equal(t, 4, metrics.TotalAttempts)
	assert.Equal(t, 3, metrics.FailedAttempts)
	assert.Equal(t, 1, metrics.SuccessfulAttempts)
}

func TestHistoryBounded(t *testing.T) {
	ctx := context.Background()
	m := newTestMonitor(5)

	for i := 0; i < 10; i++ {
		require.NoError(t, m.RecordAttempt(ctx, testSource, Outcome{
			Success: true,
			Error:   fmt.Sprintf("attempt-%d", i),
		}))
	}

	metrics, err := m.Metrics(ctx, testSource)
	require.NoError(t, err)

	// Oldest attempts are evicted first; the window holds only the most
	// recent five while the running counters still cover all ten.
	require.Len(t, metrics.RecentAttempts, 5)
	assert.Equal(t, "attempt-5", metrics.RecentAttempts[0].Error)
	assert.Equal(t, "attempt-9", metrics.RecentAttempts[4].Error)
	assert.Equal(t, 10, metrics.TotalAttempts)
}

func TestAverages(t *testing.T) {
	ctx := context.Background()
	m := newTestMonitor(0)

	require.NoError(t, m.RecordAttempt(ctx, testSource, Outcome{
		Success: true, Duration: 100 * time.Millisecond, RuleCount: 400,
	}))
	require.NoError(t, m.RecordAttempt(ctx, testSource, Outcome{
		Success: true, Duration: 300 * time.Millisecond, RuleCount: 600,
	}))
	require.NoError(t, m.RecordAttempt(ctx, testSource, Outcome{
		Duration: 200 * time.Millisecond, Error: "timed out",
	}))

	metrics, err := m.Metrics(ctx, testSource)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, metrics.AverageDurationMs, 1e-9)
	// Rule counts average over successful samples only.
	assert.InDelta(t, 500.0, metrics.AverageRuleCount, 1e-9)
}

func TestAllSourcesAndReport(t *testing.T) {
	ctx := context.Background()
	m := newTestMonitor(0)

	recordN(t, m, "https://a.example.com/list.txt", 9, 1) // healthy
	recordN(t, m, "https://b.example.com/list.txt", 6, 4) // degraded
	recordN(t, m, "https://c.example.com/list.txt", 1, 9) // unhealthy

	all, err := m.AllSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	report, err := m.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalSources)
	assert.Equal(t, 1, report.HealthySources)
	assert.Equal(t, 1, report.DegradedSources)
	assert.Equal(t, 1, report.UnhealthySources)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	m := newTestMonitor(0)

	recordN(t, m, "https://a.example.com/list.txt", 5, 0)
	recordN(t, m, "https://b.example.com/list.txt", 5, 0)

	require.NoError(t, m.Clear(ctx, "https://a.example.com/list.txt"))

	_, err := m.Metrics(ctx, "https://a.example.com/list.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The other source is untouched.
	metrics, err := m.Metrics(ctx, "https://b.example.com/list.txt")
	require.NoError(t, err)
	assert.Equal(t, 5, metrics.TotalAttempts)

	// Clearing an unknown source is a no-op.
	assert.NoError(t, m.Clear(ctx, "https://never.example.com/list.txt"))
}

func TestStatusForZeroAttempts(t *testing.T) {
	assert.Equal(t, StatusUnknown, statusFor(0, 0))
	assert.Equal(t, StatusHealthy, statusFor(1, 1.0))
	assert.Equal(t, StatusHealthy, statusFor(10, 0.8))
	assert.Equal(t, StatusDegraded, statusFor(10, 0.79))
	assert.Equal(t, StatusDegraded, statusFor(10, 0.5))
	assert.Equal(t, StatusUnhealthy, statusFor(10, 0.49))
}

func TestLastAttemptTimestamps(t *testing.T) {
	ctx := context.Background()
	m := newTestMonitor(0)

	require.NoError(t, m.RecordAttempt(ctx, testSource, Outcome{Success: true}))
	metrics, err := m.Metrics(ctx, testSource)
	require.NoError(t, err)
	assert.False(t, metrics.LastAttempt.IsZero())
	assert.False(t, metrics.LastSuccess.IsZero())
	assert.True(t, metrics.LastFailure.IsZero())

	require.NoError(t, m.RecordAttempt(ctx, testSource, Outcome{Error: "boom"}))
	metrics, err = m.Metrics(ctx, testSource)
	require.NoError(t, err)
	assert.False(t, metrics.LastFailure.IsZero())
}
