package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/listforge/listforge/fetch"
	"github.com/listforge/listforge/health"
)

// CheckSourceHealth performs a guarded fetch against each declared source,
// records every attempt in the health monitor, and reports per-source and
// aggregate results. When failures are detected and an alert hook is
// configured, the hook is invoked with the failing results.
func (e *Engine) CheckSourceHealth(ctx context.Context, sources []string) *HealthCheckResult {
	started := time.Now()

	inst := e.newInstance(TypeHealthCheck, map[string]any{"sources": len(sources)})
	if err := e.transition(inst, StatusRunning); err != nil {
		return &HealthCheckResult{SourcesChecked: len(sources)}
	}

	e.metrics.WorkflowStarted(string(TypeHealthCheck))
	e.emit(Event{
		Type: EventStarted, WorkflowID: inst.ID, WorkflowType: TypeHealthCheck,
		Message: fmt.Sprintf("checking %d sources", len(sources)),
	})

	results := make([]*SourceHealthResult, len(sources))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.fetchConcurrency)
	for i, source := range sources {
		i, source := i, source
		group.Go(func() error {
			results[i] = e.checkSource(groupCtx, source)
			return nil
		})
	}
	_ = group.Wait()

	report := &HealthCheckResult{
		SourcesChecked: len(sources),
		Results:        results,
	}
	for _, res := range results {
		if res.Healthy {
			report.HealthySources++
		} else {
			report.UnhealthySources++
		}
	}

	if report.UnhealthySources > 0 && e.alert != nil {
		failing := make([]*SourceHealthResult, 0, report.UnhealthySources)
		for _, res := range results {
			if !res.Healthy {
				failing = append(failing, res)
			}
		}
		e.invokeAlert(failing)
	}

	e.complete(inst, report)
	e.emit(Event{
		Type: EventCompleted, WorkflowID: inst.ID, WorkflowType: TypeHealthCheck,
		Progress: 100,
		Message: fmt.Sprintf("%d healthy, %d unhealthy of %d sources",
			report.HealthySources, report.UnhealthySources, report.SourcesChecked),
	})
	e.metrics.WorkflowFinished(string(TypeHealthCheck), report.UnhealthySources == 0, time.Since(started))

	return report
}

func (e *Engine) checkSource(ctx context.Context, source string) *SourceHealthResult {
	res := &SourceHealthResult{Source: source}
	start := time.Now()

	content, err := e.fetcher.Fetch(ctx, source, fetch.Options{})
	elapsed := time.Since(start)
	res.ResponseTimeMs = elapsed.Milliseconds()

	if err != nil {
		res.Error = err.Error()
		var fetchErr *fetch.FetchError
		if errors.As(err, &fetchErr) {
			res.StatusCode = fetchErr.StatusCode
		}
		e.metrics.FetchObserved("failure", elapsed)
		e.recordAttempt(ctx, source, health.Outcome{
			Duration: elapsed,
			Error:    err.Error(),
		})
		return res
	}

	rules := parseRules(content)
	res.Healthy = true
	res.StatusCode = 200
	res.RuleCount = len(rules)
	e.metrics.FetchObserved("success", elapsed)
	e.recordAttempt(ctx, source, health.Outcome{
		Success:   true,
		Duration:  elapsed,
		RuleCount: len(rules),
	})
	return res
}

// invokeAlert calls the alert hook, shielding the workflow from panics in
// the external channel.
func (e *Engine) invokeAlert(failing []*SourceHealthResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Alert hook panicked", slog.Any("panic", r))
		}
	}()
	e.alert(failing)
}
