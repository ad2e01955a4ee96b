package workflow

import (
	"context"
	"fmt"
	"time"
)

// CompileBatch runs the single-compilation workflow once per request. Each
// request is isolated: one request's failure never aborts the others.
func (e *Engine) CompileBatch(ctx context.Context, requests []BatchRequest) *BatchResult {
	started := time.Now()

	inst := e.newInstance(TypeBatchCompile, map[string]any{"requests": len(requests)})
	if err := e.transition(inst, StatusRunning); err != nil {
		return &BatchResult{TotalRequests: len(requests)}
	}

	e.metrics.WorkflowStarted(string(TypeBatchCompile))
	e.emit(Event{
		Type: EventStarted, WorkflowID: inst.ID, WorkflowType: TypeBatchCompile,
		Message: fmt.Sprintf("batch of %d requests", len(requests)),
	})

	batch := &BatchResult{
		TotalRequests: len(requests),
		Results:       make([]*CompilationResult, 0, len(requests)),
	}

	for i, req := range requests {
		result := e.Compile(ctx, req.RequestID, req.Config)
		batch.Results = append(batch.Results, result)
		if result.Success {
			batch.Successful++
		} else {
			batch.Failed++
		}

		e.emit(Event{
			Type: EventProgress, WorkflowID: inst.ID, WorkflowType: TypeBatchCompile,
			Progress: (i + 1) * 100 / len(requests),
			Data:     map[string]any{"completed": i + 1, "total": len(requests)},
		})
	}

	batch.TotalDurationMs = time.Since(started).Milliseconds()
	e.complete(inst, batch)
	e.emit(Event{
		Type: EventCompleted, WorkflowID: inst.ID, WorkflowType: TypeBatchCompile,
		Progress: 100,
		Message:  fmt.Sprintf("batch finished: %d succeeded, %d failed", batch.Successful, batch.Failed),
	})
	e.metrics.WorkflowFinished(string(TypeBatchCompile), batch.Failed == 0, time.Since(started))

	return batch
}

// WarmCache runs the single-compilation workflow per configuration purely to
// populate the cache.
func (e *Engine) WarmCache(ctx context.Context, configs []CompileConfig) []*WarmResult {
	started := time.Now()

	inst := e.newInstance(TypeCacheWarm, map[string]any{"configs": len(configs)})
	if err := e.transition(inst, StatusRunning); err != nil {
		return nil
	}

	e.metrics.WorkflowStarted(string(TypeCacheWarm))
	e.emit(Event{
		Type: EventStarted, WorkflowID: inst.ID, WorkflowType: TypeCacheWarm,
		Message: fmt.Sprintf("warming %d configurations", len(configs)),
	})

	results := make([]*WarmResult, 0, len(configs))
	failed := 0
	for _, cfg := range configs {
		compiled := e.Compile(ctx, "warm-"+nameSlug(cfg.Name), cfg)
		warm := &WarmResult{ConfigName: cfg.Name, Success: compiled.Success}
		if compiled.Success {
			warm.CacheKey = compiled.CacheKey
		} else {
			warm.Error = compiled.Error
			failed++
		}
		results = append(results, warm)
	}

	e.complete(inst, results)
	e.emit(Event{
		Type: EventCompleted, WorkflowID: inst.ID, WorkflowType: TypeCacheWarm,
		Progress: 100,
		Message:  fmt.Sprintf("cache warm finished: %d of %d succeeded", len(configs)-failed, len(configs)),
	})
	e.metrics.WorkflowFinished(string(TypeCacheWarm), failed == 0, time.Since(started))

	return results
}
