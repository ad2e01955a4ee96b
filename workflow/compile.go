package workflow

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/listforge/listforge/fetch"
	"github.com/listforge/listforge/health"
	"github.com/listforge/listforge/pattern"
	"github.com/listforge/listforge/storage"
)

// Compile runs the single-compilation workflow: validate the configuration,
// fetch every source (cache first, network second), transform the unioned
// rule set, generate the output header, and cache the compiled artifact.
//
// The returned result always carries Success and, on failure, a stable Error
// string; per-source failures are represented in Steps.SourceFetch rather
// than collapsed into the top-level boolean.
func (e *Engine) Compile(ctx context.Context, requestID string, cfg CompileConfig) *CompilationResult {
	started := time.Now()
	result := &CompilationResult{
		RequestID:  requestID,
		ConfigName: cfg.Name,
		CompiledAt: started,
	}

	inst := e.newInstance(TypeCompile, map[string]any{
		"request_id": requestID,
		"config":     cfg.Name,
	})
	if err := e.transition(inst, StatusRunning); err != nil {
		result.Error = err.Error()
		return result
	}

	e.metrics.WorkflowStarted(string(TypeCompile))
	e.emit(Event{
		Type: EventStarted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Message: fmt.Sprintf("compiling %s", cfg.Name),
	})

	finish := func() {
		result.TotalDurationMs = time.Since(started).Milliseconds()
		e.metrics.WorkflowFinished(string(TypeCompile), result.Success, time.Since(started))
	}

	// Step 1: validation. A failure here is fatal: no further steps run.
	if !e.runValidation(inst, &cfg, result) {
		finish()
		return result
	}

	// Step 2: source fetch. Sources fetch concurrently and fail
	// independently; outcomes are recorded in health metrics either way.
	rules, ok := e.runSourceFetch(ctx, inst, &cfg, result)
	if !ok {
		finish()
		return result
	}

	// Step 3: transformation pipeline.
	rules, ok = e.runTransformation(inst, &cfg, rules, result)
	if !ok {
		finish()
		return result
	}

	// Step 4: header generation. Non-fatal: valid rules survive a header
	// failure, but the failure is reported.
	header := e.runHeaderGeneration(inst, &cfg, rules, result)

	// Step 5: caching. Also non-fatal; the compiled rules are still
	// returned when persistence fails.
	e.runCaching(ctx, inst, &cfg, header, rules, result)

	result.Success = true
	result.Rules = rules
	result.RuleCount = len(rules)

	e.complete(inst, result)
	e.emit(Event{
		Type: EventCompleted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Progress: 100,
		Message:  fmt.Sprintf("compiled %s: %d rules", cfg.Name, len(rules)),
	})

	finish()
	return result
}

func (e *Engine) runValidation(inst *Instance, cfg *CompileConfig, result *CompilationResult) bool {
	stepStart := time.Now()
	e.emit(Event{
		Type: EventStepStarted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Step: "validation", Progress: 5,
	})

	err := cfg.Validate()
	step := &ValidationStep{
		DurationMs: time.Since(stepStart).Milliseconds(),
		Valid:      err == nil,
	}
	result.Steps.Validation = step

	if err != nil {
		step.Error = err.Error()
		result.Error = err.Error()
		e.failWorkflow(inst, TypeCompile, "validation", err.Error())
		return false
	}

	e.emit(Event{
		Type: EventStepCompleted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Step: "validation", Progress: 10,
	})
	return true
}

func (e *Engine) runSourceFetch(ctx context.Context, inst *Instance, cfg *CompileConfig, result *CompilationResult) ([]string, bool) {
	stepStart := time.Now()
	e.emit(Event{
		Type: EventStepStarted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Step: "source_fetch", Progress: 15,
	})

	outcomes := make([]SourceFetchResult, len(cfg.Sources))
	ruleSets := make([][]string, len(cfg.Sources))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.fetchConcurrency)
	for i, src := range cfg.Sources {
		i, src := i, src
		group.Go(func() error {
			outcomes[i], ruleSets[i] = e.fetchSource(groupCtx, cfg, src)
			// One source's failure must not abort the others.
			return nil
		})
	}
	_ = group.Wait()

	step := &SourceFetchStep{
		DurationMs: time.Since(stepStart).Milliseconds(),
		Sources:    outcomes,
	}
	result.Steps.SourceFetch = step

	var rules []string
	failed := 0
	for i, outcome := range outcomes {
		if outcome.Success {
			rules = append(rules, ruleSets[i]...)
		} else {
			failed++
		}
	}

	if len(rules) == 0 {
		result.Error = fmt.Sprintf("no usable rules: all %d sources failed or were empty", len(cfg.Sources))
		e.failWorkflow(inst, TypeCompile, "source_fetch", result.Error)
		return nil, false
	}
	if cfg.RequireAllSources && failed > 0 {
		result.Error = fmt.Sprintf("%d of %d sources failed and all sources are required", failed, len(cfg.Sources))
		e.failWorkflow(inst, TypeCompile, "source_fetch", result.Error)
		return nil, false
	}

	e.emit(Event{
		Type: EventStepCompleted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Step: "source_fetch", Progress: 40,
		Data: map[string]any{"sources": len(cfg.Sources), "failed": failed},
	})
	return rules, true
}

// fetchSource resolves one source: a valid unexpired cache entry
// short-circuits the network fetch; otherwise the source is fetched through
// the SSRF guard and the outcome is recorded in health metrics regardless of
// whether the workflow ultimately succeeds.
func (e *Engine) fetchSource(ctx context.Context, cfg *CompileConfig, src SourceConfig) (SourceFetchResult, []string) {
	res := SourceFetchResult{Name: src.Name, URL: src.URL}
	start := time.Now()

	if entry, err := e.cache.GetCachedFilterList(ctx, src.URL); err == nil {
		rules := parseRules(entry.Content)
		res.Success = true
		res.Cached = true
		res.RuleCount = len(rules)
		res.DurationMs = time.Since(start).Milliseconds()
		e.metrics.FetchObserved("cached", 0)
		return res, rules
	}

	content, err := e.fetcher.Fetch(ctx, src.URL, fetch.Options{
		Timeout:            cfg.FetchTimeout,
		UserAgent:          cfg.UserAgent,
		AllowEmptyResponse: src.AllowEmpty,
	})
	elapsed := time.Since(start)
	res.DurationMs = elapsed.Milliseconds()

	if err != nil {
		res.Error = err.Error()
		e.metrics.FetchObserved("failure", elapsed)
		e.recordAttempt(ctx, src.URL, health.Outcome{
			Duration: elapsed,
			Error:    err.Error(),
		})
		return res, nil
	}

	rules := parseRules(content)
	res.Success = true
	res.RuleCount = len(rules)
	e.metrics.FetchObserved("success", elapsed)
	e.recordAttempt(ctx, src.URL, health.Outcome{
		Success:   true,
		Duration:  elapsed,
		RuleCount: len(rules),
	})

	if err := e.cache.CacheFilterList(ctx, src.URL, content, RulesChecksum(rules), "", 0); err != nil {
		e.logger.Warn("Failed to cache source content",
			slog.String("source", src.URL),
			slog.String("error", err.Error()))
	}
	return res, rules
}

func (e *Engine) recordAttempt(ctx context.Context, source string, outcome health.Outcome) {
	if err := e.monitor.RecordAttempt(ctx, source, outcome); err != nil {
		e.logger.Warn("Failed to record fetch attempt",
			slog.String("source", source),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) runTransformation(inst *Instance, cfg *CompileConfig, rules []string, result *CompilationResult) ([]string, bool) {
	stepStart := time.Now()
	e.emit(Event{
		Type: EventStepStarted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Step: "transformation", Progress: 45,
	})

	step := &TransformationStep{}
	result.Steps.Transformation = step

	for _, transform := range e.pipeline {
		tStart := time.Now()
		out, err := transform.Apply(rules, cfg)
		record := TransformRecord{
			Name:       transform.Name(),
			InputCount: len(rules),
			DurationMs: time.Since(tStart).Milliseconds(),
		}
		if err != nil {
			step.Transforms = append(step.Transforms, record)
			step.DurationMs = time.Since(stepStart).Milliseconds()
			terr := &TransformationError{Transform: transform.Name(), Err: err}
			step.Error = terr.Error()
			result.Error = terr.Error()
			e.failWorkflow(inst, TypeCompile, "transformation", terr.Error())
			return nil, false
		}
		record.OutputCount = len(out)
		step.Transforms = append(step.Transforms, record)
		rules = out
	}
	step.DurationMs = time.Since(stepStart).Milliseconds()

	e.emit(Event{
		Type: EventStepCompleted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Step: "transformation", Progress: 65,
		Data: map[string]any{"rules": len(rules)},
	})
	return rules, true
}

func (e *Engine) runHeaderGeneration(inst *Instance, cfg *CompileConfig, rules []string, result *CompilationResult) []string {
	stepStart := time.Now()
	e.emit(Event{
		Type: EventStepStarted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Step: "header_generation", Progress: 70,
	})

	step := &HeaderStep{}
	result.Steps.HeaderGeneration = step

	var header []string
	func() {
		defer func() {
			if r := recover(); r != nil {
				step.Error = fmt.Sprintf("header generation panicked: %v", r)
			}
		}()
		header = GenerateHeader(cfg, rules, result.CompiledAt)
	}()
	step.DurationMs = time.Since(stepStart).Milliseconds()
	step.Lines = len(header)

	if step.Error != "" {
		e.logger.Warn("Header generation failed",
			slog.String("config", cfg.Name),
			slog.String("error", step.Error))
		e.emit(Event{
			Type: EventStepFailed, WorkflowID: inst.ID, WorkflowType: TypeCompile,
			Step: "header_generation", Progress: 80, Message: step.Error,
		})
		return nil
	}

	e.emit(Event{
		Type: EventStepCompleted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Step: "header_generation", Progress: 80,
	})
	return header
}

func (e *Engine) runCaching(ctx context.Context, inst *Instance, cfg *CompileConfig, header, rules []string, result *CompilationResult) {
	stepStart := time.Now()
	e.emit(Event{
		Type: EventStepStarted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Step: "caching", Progress: 85,
	})

	step := &CachingStep{}
	result.Steps.Caching = step

	checksum := RulesChecksum(rules)
	key := artifactKey(cfg, checksum)

	content := strings.Join(append(append([]string{}, header...), rules...), "\n") + "\n"
	compressed, err := gzipBytes([]byte(content))
	if err != nil {
		step.Error = fmt.Sprintf("compress artifact: %v", err)
	} else {
		artifact := &storage.Artifact{
			Key:             key,
			ContentEncoding: "gzip",
			Data:            compressed,
			RuleCount:       len(rules),
			Checksum:        checksum,
			CompiledAt:      result.CompiledAt,
		}
		if err := e.cache.CacheArtifact(ctx, artifact, cfg.CacheTTL); err != nil {
			step.Error = fmt.Sprintf("cache artifact: %v", err)
		} else {
			step.CacheKey = key
			step.CompressedSize = len(compressed)
			result.CacheKey = key
		}
	}
	step.DurationMs = time.Since(stepStart).Milliseconds()

	if step.Error != "" {
		e.logger.Warn("Failed to cache compiled artifact",
			slog.String("config", cfg.Name),
			slog.String("error", step.Error))
		e.emit(Event{
			Type: EventStepFailed, WorkflowID: inst.ID, WorkflowType: TypeCompile,
			Step: "caching", Progress: 95, Message: step.Error,
		})
		return
	}

	e.emit(Event{
		Type: EventStepCompleted, WorkflowID: inst.ID, WorkflowType: TypeCompile,
		Step: "caching", Progress: 95,
		Data: map[string]any{"cache_key": key, "compressed_size": step.CompressedSize},
	})
}

// failWorkflow marks the instance failed and emits the step and workflow
// failure events.
func (e *Engine) failWorkflow(inst *Instance, workflowType Type, step, errMsg string) {
	e.fail(inst, errMsg)
	e.emit(Event{
		Type: EventStepFailed, WorkflowID: inst.ID, WorkflowType: workflowType,
		Step: step, Message: errMsg,
	})
	e.emit(Event{
		Type: EventFailed, WorkflowID: inst.ID, WorkflowType: workflowType,
		Message: errMsg,
	})
	e.logger.Error("Workflow failed",
		slog.String("workflow_id", inst.ID),
		slog.String("workflow_type", string(workflowType)),
		slog.String("step", step),
		slog.String("error", errMsg))
}

// artifactKey derives the content-addressed cache key for a compiled list.
func artifactKey(cfg *CompileConfig, checksum string) string {
	urls := make([]string, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		urls = append(urls, src.URL)
	}
	seed := cfg.Name + "|" + strings.Join(urls, "|") + "|" + checksum
	return fmt.Sprintf("%s-%08x", nameSlug(cfg.Name), pattern.Hash(seed))
}

// nameSlug lowercases a config name into a key-safe slug.
func nameSlug(name string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, name)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

// parseRules extracts rule lines from raw list content, skipping blanks,
// comments, and the [Adblock ...] preamble.
func parseRules(content string) []string {
	lines := strings.Split(content, "\n")
	rules := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "[") {
			continue
		}
		rules = append(rules, line)
	}
	return rules
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
