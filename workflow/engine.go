package workflow

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/listforge/listforge/fetch"
	"github.com/listforge/listforge/health"
	"github.com/listforge/listforge/metric"
	"github.com/listforge/listforge/storage"
)

// DefaultFetchConcurrency bounds parallel source fetches within one
// compilation's fetch step.
const DefaultFetchConcurrency = 8

// AlertFunc is an optional hook invoked when a health-monitoring workflow
// detects failing sources. It must not block the workflow; errors are logged
// and discarded.
type AlertFunc func(results []*SourceHealthResult)

// Engine executes compilation workflows. All collaborators are injected;
// the only one that may be nil besides the sink and metrics is the alert hook.
type Engine struct {
	fetcher *fetch.Fetcher
	monitor *health.Monitor
	cache   *storage.Cache

	pipeline []Transform
	sink     EventSink
	alert    AlertFunc
	metrics  *metric.Metrics
	logger   *slog.Logger

	fetchConcurrency int

	mu        sync.RWMutex
	instances map[string]*Instance
}

// Option configures an Engine.
type Option func(*Engine)

// WithPipeline replaces the default transformation pipeline.
func WithPipeline(pipeline []Transform) Option {
	return func(e *Engine) { e.pipeline = pipeline }
}

// WithEventSink sets the progress event sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithAlertFunc sets the health-check alert hook.
func WithAlertFunc(alert AlertFunc) Option {
	return func(e *Engine) { e.alert = alert }
}

// WithMetrics sets the Prometheus metrics collector.
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFetchConcurrency bounds parallel source fetches per compilation.
func WithFetchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fetchConcurrency = n
		}
	}
}

// NewEngine creates a workflow engine.
func NewEngine(fetcher *fetch.Fetcher, monitor *health.Monitor, cache *storage.Cache, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		fetcher:          fetcher,
		monitor:          monitor,
		cache:            cache,
		pipeline:         DefaultPipeline(),
		logger:           logger,
		fetchConcurrency: DefaultFetchConcurrency,
		instances:        make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Instance returns a snapshot of a workflow instance by ID.
func (e *Engine) Instance(id string) (*Instance, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	inst, ok := e.instances[id]
	if !ok {
		return nil, false
	}
	cp := *inst
	return &cp, true
}

// Instances returns snapshots of all tracked workflow instances.
func (e *Engine) Instances() []*Instance {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Instance, 0, len(e.instances))
	for _, inst := range e.instances {
		cp := *inst
		out = append(out, &cp)
	}
	return out
}

// newInstance registers a new queued workflow instance.
func (e *Engine) newInstance(workflowType Type, params map[string]any) *Instance {
	inst := &Instance{
		ID:        uuid.New().String(),
		Type:      workflowType,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		Params:    params,
	}

	e.mu.Lock()
	e.instances[inst.ID] = inst
	e.mu.Unlock()
	return inst
}

// transition moves an instance to the target status, enforcing the state
// machine. Terminal instances reject all further transitions.
func (e *Engine) transition(inst *Instance, target Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !inst.Status.CanTransitionTo(target) {
		return fmt.Errorf("invalid workflow transition %s -> %s", inst.Status, target)
	}
	inst.Status = target
	return nil
}

// Pause suspends a running workflow instance.
func (e *Engine) Pause(id string) error {
	return e.transitionByID(id, StatusPaused)
}

// Resume continues a paused workflow instance.
func (e *Engine) Resume(id string) error {
	return e.transitionByID(id, StatusRunning)
}

// Terminate stops a non-terminal workflow instance.
func (e *Engine) Terminate(id string) error {
	return e.transitionByID(id, StatusTerminated)
}

func (e *Engine) transitionByID(id string, target Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[id]
	if !ok {
		return fmt.Errorf("unknown workflow instance %s", id)
	}
	if !inst.Status.CanTransitionTo(target) {
		return fmt.Errorf("invalid workflow transition %s -> %s", inst.Status, target)
	}
	inst.Status = target
	return nil
}

// complete marks an instance completed and attaches its output.
func (e *Engine) complete(inst *Instance, output any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if inst.Status.IsTerminal() {
		return
	}
	inst.Status = StatusCompleted
	inst.Output = output
}

// fail marks an instance failed and records the error.
func (e *Engine) fail(inst *Instance, errMsg string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if inst.Status.IsTerminal() {
		return
	}
	inst.Status = StatusFailed
	inst.Error = errMsg
}
