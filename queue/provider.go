package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/listforge/listforge/metric"
)

// DefaultMaxRetries bounds handler retries per message before the failure
// becomes terminal.
const DefaultMaxRetries = 3

// TransportError reports an operation attempted while no transport binding
// is attached. It is surfaced in SendResult rather than thrown.
type TransportError struct {
	Op string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("queue transport not bound: %s", e.Op)
}

// Transport is the platform queue binding consumed by the Provider.
type Transport interface {
	// Publish sends an encoded message on the given subject.
	Publish(ctx context.Context, subject string, data []byte) error
}

// SendResult is the structured outcome of a send.
type SendResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RawMessage is one inbound message as delivered by the platform transport.
type RawMessage interface {
	ID() string
	Body() []byte
	// Attempts is the delivery count including the current delivery.
	Attempts() int
	Ack() error
	Retry() error
	// Term signals the transport's native terminal-failure path: the
	// message will not be redelivered.
	Term() error
}

// Delivery adapts a raw platform message into acknowledge/retry/fail
// primitives.
type Delivery struct {
	ID       string
	Body     []byte
	Attempts int

	ack   func() error
	retry func() error
	fail  func(reason string)
}

// Ack acknowledges successful processing.
func (d *Delivery) Ack() error { return d.ack() }

// Retry requests redelivery.
func (d *Delivery) Retry() error { return d.retry() }

// Fail logs the message id and reason, then delegates to the transport's
// native terminal-failure path.
func (d *Delivery) Fail(reason string) { d.fail(reason) }

// Handler processes one delivery. A nil return acknowledges the message.
type Handler func(ctx context.Context, d *Delivery) error

// Provider sends and receives queue messages. The transport binding is
// attached post-construction: every operation fails fast with a
// TransportError while unbound.
type Provider struct {
	mu        sync.RWMutex
	transport Transport

	subjectPrefix string
	maxRetries    int
	logger        *slog.Logger
	metrics       *metric.Metrics
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithSubjectPrefix overrides the default message subject prefix.
func WithSubjectPrefix(prefix string) ProviderOption {
	return func(p *Provider) { p.subjectPrefix = prefix }
}

// WithMaxRetries bounds handler retries per message.
func WithMaxRetries(n int) ProviderOption {
	return func(p *Provider) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// WithProviderMetrics sets the Prometheus metrics collector.
func WithProviderMetrics(m *metric.Metrics) ProviderOption {
	return func(p *Provider) { p.metrics = m }
}

// NewProvider creates an unbound Provider. Attach a transport with Bind
// before sending.
func NewProvider(logger *slog.Logger, opts ...ProviderOption) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		subjectPrefix: "listforge.jobs",
		maxRetries:    DefaultMaxRetries,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bind attaches the transport. The unbound state transitions exactly once;
// rebinding is an error.
func (p *Provider) Bind(transport Transport) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transport != nil {
		return fmt.Errorf("queue transport already bound")
	}
	if transport == nil {
		return fmt.Errorf("queue transport is nil")
	}
	p.transport = transport
	return nil
}

// HealthCheck reports whether a transport binding is currently attached.
func (p *Provider) HealthCheck() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.transport != nil
}

// Send publishes one message. The failure is surfaced in the result, never
// thrown.
func (p *Provider) Send(ctx context.Context, msg Message) SendResult {
	p.mu.RLock()
	transport := p.transport
	p.mu.RUnlock()

	if transport == nil {
		return SendResult{Error: (&TransportError{Op: "send"}).Error()}
	}

	data, err := Encode(msg)
	if err != nil {
		return SendResult{Error: fmt.Sprintf("encode message: %v", err)}
	}

	subject := p.subjectFor(msg)
	if err := transport.Publish(ctx, subject, data); err != nil {
		return SendResult{Error: fmt.Sprintf("publish to %s: %v", subject, err)}
	}
	return SendResult{Success: true}
}

// SendBatch publishes messages individually, returning one result per
// message in order.
func (p *Provider) SendBatch(ctx context.Context, msgs []Message) []SendResult {
	results := make([]SendResult, 0, len(msgs))
	for _, msg := range msgs {
		results = append(results, p.Send(ctx, msg))
	}
	return results
}

// WrapBatch adapts a raw platform batch into Deliveries.
func (p *Provider) WrapBatch(raw []RawMessage) []*Delivery {
	deliveries := make([]*Delivery, 0, len(raw))
	for _, rm := range raw {
		deliveries = append(deliveries, &Delivery{
			ID:       rm.ID(),
			Body:     rm.Body(),
			Attempts: rm.Attempts(),
			ack:      rm.Ack,
			retry:    rm.Retry,
			fail: func(reason string) {
				p.logger.Error("Message failed terminally",
					slog.String("message_id", rm.ID()),
					slog.String("reason", reason))
				if err := rm.Term(); err != nil {
					p.logger.Warn("Failed to terminate message",
						slog.String("message_id", rm.ID()),
						slog.String("error", err.Error()))
				}
			},
		})
	}
	return deliveries
}

// ProcessBatch invokes handler once per delivery. Each message's outcome is
// independent: a handler failure (or panic) for one message never crashes
// batch processing. Failed messages are retried until their attempt count
// exceeds maxRetries, at which point the failure is terminal and logged with
// the message id — the message is neither silently dropped nor requeued
// further by this component.
func (p *Provider) ProcessBatch(ctx context.Context, batch []*Delivery, handler Handler) {
	for _, d := range batch {
		err := p.invoke(ctx, handler, d)
		if err == nil {
			if ackErr := d.Ack(); ackErr != nil {
				p.logger.Warn("Failed to ack message",
					slog.String("message_id", d.ID),
					slog.String("error", ackErr.Error()))
			}
			p.metrics.QueueMessage("acked")
			continue
		}

		if d.Attempts > p.maxRetries {
			d.Fail(err.Error())
			p.metrics.QueueMessage("failed")
			continue
		}

		p.logger.Warn("Message handler failed, retrying",
			slog.String("message_id", d.ID),
			slog.Int("attempt", d.Attempts),
			slog.Int("max_retries", p.maxRetries),
			slog.String("error", err.Error()))
		if retryErr := d.Retry(); retryErr != nil {
			p.logger.Warn("Failed to schedule retry",
				slog.String("message_id", d.ID),
				slog.String("error", retryErr.Error()))
		}
		p.metrics.QueueMessage("retried")
	}
}

// invoke runs the handler with panic isolation.
func (p *Provider) invoke(ctx context.Context, handler Handler, d *Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, d)
}

func (p *Provider) subjectFor(msg Message) string {
	subject := p.subjectPrefix + "." + string(msg.MessageType())
	if msg.header().Priority == PriorityHigh {
		subject += ".high"
	}
	return subject
}
