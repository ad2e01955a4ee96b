package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/listforge/listforge/workflow"
)

// Dispatcher decodes inbound deliveries and routes them to the workflow
// engine. Workflow-level failures are isolated per message: a failed
// compilation surfaces as a handler error so the platform can redeliver,
// while decode failures fail the same way and become terminal once retries
// are exhausted.
type Dispatcher struct {
	engine *workflow.Engine
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher for the given engine.
func NewDispatcher(engine *workflow.Engine, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{engine: engine, logger: logger}
}

// Handle implements Handler.
func (d *Dispatcher) Handle(ctx context.Context, delivery *Delivery) error {
	msg, err := Decode(delivery.Body)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *CompileMessage:
		result := d.engine.Compile(ctx, m.RequestID, m.Config)
		if !result.Success {
			return fmt.Errorf("compile %s (request %s): %s", m.Config.Name, m.RequestID, result.Error)
		}
		d.logger.Info("Compiled filter list",
			slog.String("config", m.Config.Name),
			slog.String("request_id", m.RequestID),
			slog.Int("rules", result.RuleCount))
		return nil

	case *BatchCompileMessage:
		batch := d.engine.CompileBatch(ctx, m.Requests)
		d.logger.Info("Batch compile finished",
			slog.Int("total", batch.TotalRequests),
			slog.Int("successful", batch.Successful),
			slog.Int("failed", batch.Failed))
		// Partial failure is represented in the batch result; the message
		// itself was processed, so it is acknowledged.
		return nil

	case *CacheWarmMessage:
		results := d.engine.WarmCache(ctx, m.Configs)
		warmed := 0
		for _, res := range results {
			if res.Success {
				warmed++
			}
		}
		d.logger.Info("Cache warm finished",
			slog.Int("warmed", warmed),
			slog.Int("total", len(results)))
		return nil

	default:
		return fmt.Errorf("unhandled message type %q", msg.MessageType())
	}
}
