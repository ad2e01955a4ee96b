// Package schedule runs recurring compilation jobs on cron schedules:
// cache-warming runs are enqueued through the queue provider so they flow
// through the normal job pipeline, while health checks run directly against
// the workflow engine.
package schedule

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/listforge/listforge/queue"
	"github.com/listforge/listforge/workflow"
)

// Scheduler drives cron-triggered jobs.
type Scheduler struct {
	cron     *cron.Cron
	provider *queue.Provider
	engine   *workflow.Engine
	logger   *slog.Logger
}

// New creates a Scheduler. The provider is used by cache-warm jobs and the
// engine by health-check jobs.
func New(provider *queue.Provider, engine *workflow.Engine, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:     cron.New(),
		provider: provider,
		engine:   engine,
		logger:   logger,
	}
}

// AddCacheWarm schedules a recurring cache-warm job that enqueues a
// cache-warm message on each tick.
func (s *Scheduler) AddCacheWarm(spec string, configs []workflow.CompileConfig) error {
	_, err := s.cron.AddFunc(spec, func() {
		result := s.provider.Send(context.Background(), queue.NewCacheWarmMessage(configs))
		if !result.Success {
			s.logger.Error("Failed to enqueue scheduled cache warm",
				slog.String("error", result.Error))
			return
		}
		s.logger.Info("Enqueued scheduled cache warm", slog.Int("configs", len(configs)))
	})
	return err
}

// AddHealthCheck schedules a recurring source health check executed directly
// by the workflow engine.
func (s *Scheduler) AddHealthCheck(spec string, sources []string) error {
	_, err := s.cron.AddFunc(spec, func() {
		report := s.engine.CheckSourceHealth(context.Background(), sources)
		s.logger.Info("Scheduled health check finished",
			slog.Int("checked", report.SourcesChecked),
			slog.Int("healthy", report.HealthySources),
			slog.Int("unhealthy", report.UnhealthySources))
	})
	return err
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start begins dispatching scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
