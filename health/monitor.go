// Package health tracks per-source fetch reliability. Every fetch attempt is
// recorded against a bounded per-source history persisted through the storage
// collaborator, and metrics (success rate, consecutive failures, status) are
// derived on read. The counters are advisory: concurrent recorders for the
// same source serialize through the store's read-modify-write and tolerate
// eventual rather than strict consistency.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/listforge/listforge/storage"
)

// DefaultMaxHistory bounds the per-source attempt window.
const DefaultMaxHistory = 100

const keyPrefix = "health."

// Status classifies a source's recent reliability. It is a pure function of
// the success rate once at least one attempt has been recorded.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// statusFor maps a success rate onto a Status. Boundaries are inclusive:
// rate >= 0.8 is healthy, rate >= 0.5 is degraded, anything below is
// unhealthy.
func statusFor(totalAttempts int, successRate float64) Status {
	switch {
	case totalAttempts == 0:
		return StatusUnknown
	case successRate >= 0.8:
		return StatusHealthy
	case successRate >= 0.5:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// Attempt is one recorded fetch try against a source. Immutable once recorded.
type Attempt struct {
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	DurationMs int64     `json:"duration_ms"`
	RuleCount  int       `json:"rule_count,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Outcome describes a fetch attempt being recorded.
type Outcome struct {
	Success   bool
	Duration  time.Duration
	RuleCount int
	Error     string
}

// record is the persisted per-source state. Running counters cover every
// attempt ever recorded; Attempts holds only the bounded recent window.
type record struct {
	Source              string    `json:"source"`
	Attempts            []Attempt `json:"attempts"`
	TotalAttempts       int       `json:"total_attempts"`
	SuccessfulAttempts  int       `json:"successful_attempts"`
	FailedAttempts      int       `json:"failed_attempts"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalDurationMs     int64     `json:"total_duration_ms"`
	TotalRuleCount      int64     `json:"total_rule_count"`
	RuleCountSamples    int       `json:"rule_count_samples"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
}

// SourceMetrics is the derived health view of one source.
type SourceMetrics struct {
	Source              string    `json:"source"`
	TotalAttempts       int       `json:"total_attempts"`
	SuccessfulAttempts  int       `json:"successful_attempts"`
	FailedAttempts      int       `json:"failed_attempts"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	SuccessRate         float64   `json:"success_rate"`
	AverageDurationMs   float64   `json:"average_duration_ms"`
	AverageRuleCount    float64   `json:"average_rule_count"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
	RecentAttempts      []Attempt `json:"recent_attempts"`
	Status              Status    `json:"status"`
	IsCurrentlyFailing  bool      `json:"is_currently_failing"`
}

// Report counts tracked sources by current status.
type Report struct {
	TotalSources     int `json:"total_sources"`
	HealthySources   int `json:"healthy_sources"`
	DegradedSources  int `json:"degraded_sources"`
	UnhealthySources int `json:"unhealthy_sources"`
}

// Monitor records fetch attempts and derives per-source health metrics.
type Monitor struct {
	store      storage.Store
	maxHistory int
	logger     *slog.Logger
}

// NewMonitor creates a Monitor persisting through store. maxHistory bounds
// the retained attempt window; zero or negative uses DefaultMaxHistory.
func NewMonitor(store storage.Store, maxHistory int, logger *slog.Logger) *Monitor {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{store: store, maxHistory: maxHistory, logger: logger}
}

// RecordAttempt appends a fetch attempt to the source's history, trimming the
// window to the configured bound (oldest evicted first) and updating the
// running counters.
func (m *Monitor) RecordAttempt(ctx context.Context, source string, outcome Outcome) error {
	rec, err := m.load(ctx, source)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		rec = &record{Source: source}
	}

	now := time.Now()
	attempt := Attempt{
		Timestamp:  now,
		Success:    outcome.Success,
		DurationMs: outcome.Duration.Milliseconds(),
		RuleCount:  outcome.RuleCount,
		Error:      outcome.Error,
	}

	rec.Attempts = append(rec.Attempts, attempt)
	if len(rec.Attempts) > m.maxHistory {
		rec.Attempts = rec.Attempts[len(rec.Attempts)-m.maxHistory:]
	}

	rec.TotalAttempts++
	rec.TotalDurationMs += attempt.DurationMs
	rec.LastAttempt = now
	if outcome.Success {
		rec.SuccessfulAttempts++
		rec.ConsecutiveFailures = 0
		rec.LastSuccess = now
		if outcome.RuleCount > 0 {
			rec.TotalRuleCount += int64(outcome.RuleCount)
			rec.RuleCountSamples++
		}
	} else {
		rec.FailedAttempts++
		rec.ConsecutiveFailures++
		rec.LastFailure = now
	}

	return m.save(ctx, rec)
}

// Metrics returns the derived health view of one source, or
// storage.ErrNotFound when the source has never been recorded.
func (m *Monitor) Metrics(ctx context.Context, source string) (*SourceMetrics, error) {
	rec, err := m.load(ctx, source)
	if err != nil {
		return nil, err
	}
	return rec.metrics(), nil
}

// AllSources returns metrics for every source that has been recorded.
func (m *Monitor) AllSources(ctx context.Context) ([]*SourceMetrics, error) {
	entries, err := m.store.List(ctx, keyPrefix, 0, false)
	if err != nil {
		return nil, fmt.Errorf("list health records: %w", err)
	}

	all := make([]*SourceMetrics, 0, len(entries))
	for _, entry := range entries {
		var rec record
		if err := json.Unmarshal(entry.Data, &rec); err != nil {
			m.logger.Warn("Skipping unreadable health record",
				slog.String("key", entry.Key),
				slog.String("error", err.Error()))
			continue
		}
		all = append(all, rec.metrics())
	}
	return all, nil
}

// Report counts all tracked sources by current status.
func (m *Monitor) Report(ctx context.Context) (*Report, error) {
	all, err := m.AllSources(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{TotalSources: len(all)}
	for _, metrics := range all {
		switch metrics.Status {
		case StatusHealthy:
			report.HealthySources++
		case StatusDegraded:
			report.DegradedSources++
		case StatusUnhealthy:
			report.UnhealthySources++
		}
	}
	return report, nil
}

// Clear removes all history and metrics for one source, leaving others
// untouched. Clearing an unknown source is a no-op.
func (m *Monitor) Clear(ctx context.Context, source string) error {
	err := m.store.Delete(ctx, keyPrefix+storage.SourceKey(source))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

func (m *Monitor) load(ctx context.Context, source string) (*record, error) {
	entry, err := m.store.Get(ctx, keyPrefix+storage.SourceKey(source))
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(entry.Data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal health record %s: %w", source, err)
	}
	return &rec, nil
}

func (m *Monitor) save(ctx context.Context, rec *record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal health record %s: %w", rec.Source, err)
	}
	// Health records never expire; staleness is visible via LastAttempt.
	return m.store.Set(ctx, keyPrefix+storage.SourceKey(rec.Source), data, 0)
}

// metrics derives the exported view from a persisted record.
func (r *record) metrics() *SourceMetrics {
	m := &SourceMetrics{
		Source:              r.Source,
		TotalAttempts:       r.TotalAttempts,
		SuccessfulAttempts:  r.SuccessfulAttempts,
		FailedAttempts:      r.FailedAttempts,
		ConsecutiveFailures: r.ConsecutiveFailures,
		LastAttempt:         r.LastAttempt,
		LastSuccess:         r.LastSuccess,
		LastFailure:         r.LastFailure,
		RecentAttempts:      r.Attempts,
		IsCurrentlyFailing:  r.ConsecutiveFailures > 0,
	}
	if r.TotalAttempts > 0 {
		m.SuccessRate = float64(r.SuccessfulAttempts) / float64(r.TotalAttempts)
		m.AverageDurationMs = float64(r.TotalDurationMs) / float64(r.TotalAttempts)
	}
	if r.RuleCountSamples > 0 {
		m.AverageRuleCount = float64(r.TotalRuleCount) / float64(r.RuleCountSamples)
	}
	m.Status = statusFor(r.TotalAttempts, m.SuccessRate)
	return m
}
