package workflow

import (
	"log/slog"
	"time"
)

// EventType names a progress event.
type EventType string

const (
	EventStarted       EventType = "workflow:started"
	EventStepStarted   EventType = "workflow:step:started"
	EventStepCompleted EventType = "workflow:step:completed"
	EventStepFailed    EventType = "workflow:step:failed"
	EventProgress      EventType = "workflow:progress"
	EventCompleted     EventType = "workflow:completed"
	EventFailed        EventType = "workflow:failed"
)

// Event is a fire-and-forget progress notification for external
// observability. Delivery failure never fails the workflow that emitted it.
type Event struct {
	Type         EventType      `json:"type"`
	WorkflowID   string         `json:"workflow_id"`
	WorkflowType Type           `json:"workflow_type"`
	Timestamp    time.Time      `json:"timestamp"`
	Step         string         `json:"step,omitempty"`
	Progress     int            `json:"progress"`
	Message      string         `json:"message,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// EventSink consumes progress events. Implementations must not block for
// long; the engine calls Emit synchronously but shields itself from panics.
type EventSink interface {
	Emit(event Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event)

// Emit calls f(event).
func (f EventSinkFunc) Emit(event Event) {
	f(event)
}

// emit delivers an event to the sink, clamping progress to 0-100 and
// swallowing sink panics so observability can never break a workflow.
func (e *Engine) emit(event Event) {
	if e.sink == nil {
		return
	}
	if event.Progress < 0 {
		event.Progress = 0
	}
	if event.Progress > 100 {
		event.Progress = 100
	}
	event.Timestamp = time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Event sink panicked",
				slog.String("event_type", string(event.Type)),
				slog.String("workflow_id", event.WorkflowID),
				slog.Any("panic", r))
		}
	}()
	e.sink.Emit(event)
}
