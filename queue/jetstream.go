package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go/jetstream"
)

// Stream and consumer defaults for the job queue.
const (
	DefaultStreamName   = "LISTFORGE_JOBS"
	DefaultConsumerName = "listforge-worker"
	DefaultBatchSize    = 16
	fetchMaxWait        = 5 * time.Second
)

// JetStreamTransport publishes messages onto a JetStream stream.
type JetStreamTransport struct {
	js jetstream.JetStream
}

// NewJetStreamTransport creates a Transport over js.
func NewJetStreamTransport(js jetstream.JetStream) *JetStreamTransport {
	return &JetStreamTransport{js: js}
}

// Publish implements Transport.
func (t *JetStreamTransport) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := t.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// EnsureStream creates or updates the job stream covering the provider's
// message subjects.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name, subjectPrefix string) (jetstream.Stream, error) {
	if name == "" {
		name = DefaultStreamName
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        name,
		Description: "listforge compilation job queue",
		Subjects:    []string{subjectPrefix + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", name, err)
	}
	return stream, nil
}

// Listener fetches message batches from a durable consumer and feeds them
// through the provider's batch processing.
type Listener struct {
	provider  *Provider
	consumer  jetstream.Consumer
	handler   Handler
	batchSize int
	logger    *slog.Logger
}

// NewListener creates (or updates) the durable consumer and returns a
// Listener. maxDeliver on the consumer is aligned with the provider's retry
// bound so the platform stops redelivering once failures are terminal.
func NewListener(ctx context.Context, stream jetstream.Stream, provider *Provider, handler Handler, consumerName string, maxRetries, batchSize int, logger *slog.Logger) (*Listener, error) {
	if consumerName == "" {
		consumerName = DefaultConsumerName
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:    consumerName,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    180 * time.Second,
		MaxDeliver: maxRetries + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	return &Listener{
		provider:  provider,
		consumer:  consumer,
		handler:   handler,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Run fetches and processes batches until ctx is cancelled. Fetch failures
// back off exponentially so a dead NATS connection does not spin the loop.
func (l *Listener) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := l.consumer.Fetch(l.batchSize, jetstream.FetchMaxWait(fetchMaxWait))
		if err != nil {
			l.logger.Warn("Fetch from consumer failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.NextBackOff()):
			}
			continue
		}
		policy.Reset()

		var raw []RawMessage
		for msg := range batch.Messages() {
			raw = append(raw, &jsRawMessage{msg: msg})
		}
		if err := batch.Error(); err != nil {
			l.logger.Warn("Consumer batch error", slog.String("error", err.Error()))
		}
		if len(raw) == 0 {
			continue
		}

		l.provider.ProcessBatch(ctx, l.provider.WrapBatch(raw), l.handler)
	}
}

// jsRawMessage adapts a jetstream.Msg to the RawMessage contract.
type jsRawMessage struct {
	msg jetstream.Msg
}

func (m *jsRawMessage) ID() string {
	meta, err := m.msg.Metadata()
	if err != nil {
		return "unknown"
	}
	return strconv.FormatUint(meta.Sequence.Stream, 10)
}

func (m *jsRawMessage) Body() []byte { return m.msg.Data() }

func (m *jsRawMessage) Attempts() int {
	meta, err := m.msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

func (m *jsRawMessage) Ack() error   { return m.msg.Ack() }
func (m *jsRawMessage) Retry() error { return m.msg.Nak() }
func (m *jsRawMessage) Term() error  { return m.msg.Term() }
