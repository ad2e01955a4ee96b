// Package workflow executes the filter list compilation pipeline and its
// batch, cache-warming, and health-monitoring variants. Workflows are
// multi-step jobs: each step is independently timed, partial failure is
// represented rather than collapsed, and progress events are emitted to an
// external sink that can never fail the workflow itself.
package workflow

import (
	"fmt"
	"time"
)

// Type names a workflow variant.
type Type string

const (
	TypeCompile      Type = "compile"
	TypeBatchCompile Type = "batch-compile"
	TypeCacheWarm    Type = "cache-warm"
	TypeHealthCheck  Type = "health-check"
)

// Status represents the current state of a workflow instance.
type Status string

const (
	// StatusQueued indicates the workflow has been created but not started.
	StatusQueued Status = "queued"
	// StatusRunning indicates the workflow is executing.
	StatusRunning Status = "running"
	// StatusPaused indicates a running workflow has been suspended.
	StatusPaused Status = "paused"
	// StatusCompleted indicates the workflow finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the workflow finished with an error.
	StatusFailed Status = "failed"
	// StatusTerminated indicates the workflow was stopped externally.
	StatusTerminated Status = "terminated"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether the status is a terminal state. Terminal
// instances are immutable.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the status can transition to the target.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusQueued:
		return target == StatusRunning || target == StatusTerminated
	case StatusRunning:
		return target == StatusPaused || target == StatusCompleted ||
			target == StatusFailed || target == StatusTerminated
	case StatusPaused:
		return target == StatusRunning || target == StatusTerminated
	default:
		return false // Terminal states
	}
}

// Instance is one workflow run. It is owned by the Engine for its duration;
// once the status is terminal the instance no longer changes.
type Instance struct {
	ID        string         `json:"id"`
	Type      Type           `json:"workflow_type"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	Params    map[string]any `json:"params,omitempty"`
	Output    any            `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// SourceConfig declares one rule source within a compile configuration.
type SourceConfig struct {
	// Name is a human-readable label for the source.
	Name string `json:"name" yaml:"name"`
	// URL is the network location of the source.
	URL string `json:"url" yaml:"url"`
	// AllowEmpty accepts a source that returns an empty body.
	AllowEmpty bool `json:"allow_empty,omitempty" yaml:"allow_empty,omitempty"`
}

// CompileConfig describes one filter list compilation.
type CompileConfig struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Homepage    string         `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Version     string         `json:"version,omitempty" yaml:"version,omitempty"`
	Sources     []SourceConfig `json:"sources" yaml:"sources"`

	// RequireAllSources fails the compilation when any source fails, even
	// if other sources produced usable rules.
	RequireAllSources bool `json:"require_all_sources,omitempty" yaml:"require_all_sources,omitempty"`

	// SuppressPatterns are wildcard patterns; rules matching any of them
	// are dropped during deduplication.
	SuppressPatterns []string `json:"suppress_patterns,omitempty" yaml:"suppress_patterns,omitempty"`

	// FetchTimeout bounds each source fetch. Zero uses the fetcher default.
	FetchTimeout time.Duration `json:"fetch_timeout,omitempty" yaml:"fetch_timeout,omitempty"`
	// UserAgent overrides the fetcher's User-Agent for this compilation.
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	// CacheTTL bounds how long the compiled artifact stays cached.
	CacheTTL time.Duration `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`
}

// Validate checks the configuration shape. A validation failure is fatal for
// the request that carries the config: no further workflow steps run.
func (c *CompileConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config name is required")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("config %q: at least one source is required", c.Name)
	}
	for i, src := range c.Sources {
		if src.URL == "" {
			return fmt.Errorf("config %q: source %d has no URL", c.Name, i)
		}
	}
	return nil
}

// BatchRequest is one item of a batch compilation.
type BatchRequest struct {
	RequestID string        `json:"request_id"`
	Config    CompileConfig `json:"config"`
}

// ValidationStep records the configuration check.
type ValidationStep struct {
	DurationMs int64  `json:"duration_ms"`
	Valid      bool   `json:"valid"`
	Error      string `json:"error,omitempty"`
}

// SourceFetchResult records the outcome of one source within a fetch step.
type SourceFetchResult struct {
	Name       string `json:"name,omitempty"`
	URL        string `json:"url"`
	Success    bool   `json:"success"`
	Cached     bool   `json:"cached"`
	RuleCount  int    `json:"rule_count"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// SourceFetchStep records the fetch step across all sources.
type SourceFetchStep struct {
	DurationMs int64               `json:"duration_ms"`
	Sources    []SourceFetchResult `json:"sources"`
}

// TransformRecord records one transformation of the pipeline.
type TransformRecord struct {
	Name        string `json:"name"`
	InputCount  int    `json:"input_count"`
	OutputCount int    `json:"output_count"`
	DurationMs  int64  `json:"duration_ms"`
}

// TransformationStep records the whole transformation pipeline.
type TransformationStep struct {
	DurationMs int64             `json:"duration_ms"`
	Transforms []TransformRecord `json:"transforms"`
	Error      string            `json:"error,omitempty"`
}

// HeaderStep records header generation. A header failure is reported but does
// not invalidate the compiled rules.
type HeaderStep struct {
	DurationMs int64  `json:"duration_ms"`
	Lines      int    `json:"lines"`
	Error      string `json:"error,omitempty"`
}

// CachingStep records artifact persistence.
type CachingStep struct {
	DurationMs     int64  `json:"duration_ms"`
	CacheKey       string `json:"cache_key,omitempty"`
	CompressedSize int    `json:"compressed_size"`
	Error          string `json:"error,omitempty"`
}

// StepRecords holds the per-step results of a compilation. A nil step was
// skipped.
type StepRecords struct {
	Validation       *ValidationStep     `json:"validation,omitempty"`
	SourceFetch      *SourceFetchStep    `json:"source_fetch,omitempty"`
	Transformation   *TransformationStep `json:"transformation,omitempty"`
	HeaderGeneration *HeaderStep         `json:"header_generation,omitempty"`
	Caching          *CachingStep        `json:"caching,omitempty"`
}

// CompilationResult is the structured outcome of a single compilation.
type CompilationResult struct {
	Success         bool        `json:"success"`
	RequestID       string      `json:"request_id"`
	ConfigName      string      `json:"config_name"`
	Rules           []string    `json:"rules,omitempty"`
	RuleCount       int         `json:"rule_count"`
	CacheKey        string      `json:"cache_key,omitempty"`
	CompiledAt      time.Time   `json:"compiled_at"`
	TotalDurationMs int64       `json:"total_duration_ms"`
	Steps           StepRecords `json:"steps"`
	Error           string      `json:"error,omitempty"`
}

// BatchResult aggregates a batch compilation. Each request is isolated: one
// request's failure never aborts the others.
type BatchResult struct {
	TotalRequests   int                  `json:"total_requests"`
	Successful      int                  `json:"successful"`
	Failed          int                  `json:"failed"`
	Results         []*CompilationResult `json:"results"`
	TotalDurationMs int64                `json:"total_duration_ms"`
}

// WarmResult reports one configuration of a cache-warming run.
type WarmResult struct {
	ConfigName string `json:"config_name"`
	Success    bool   `json:"success"`
	CacheKey   string `json:"cache_key,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SourceHealthResult reports one source of a health-monitoring run.
type SourceHealthResult struct {
	Source         string `json:"source"`
	Healthy        bool   `json:"healthy"`
	StatusCode     int    `json:"status_code,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	RuleCount      int    `json:"rule_count,omitempty"`
	Error          string `json:"error,omitempty"`
}

// HealthCheckResult aggregates a health-monitoring run.
type HealthCheckResult struct {
	SourcesChecked   int                   `json:"sources_checked"`
	HealthySources   int                   `json:"healthy_sources"`
	UnhealthySources int                   `json:"unhealthy_sources"`
	Results          []*SourceHealthResult `json:"results"`
}
