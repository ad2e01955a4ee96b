package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listforge/listforge/fetch"
	"github.com/listforge/listforge/health"
	"github.com/listforge/listforge/storage"
	"github.com/listforge/listforge/workflow"
)

// newTestDispatcher builds a dispatcher over an engine without a reachable
// network: every compile config used here fails validation or fetching, which
// is enough to exercise the routing and error contract.
func newTestDispatcher() *Dispatcher {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(
		fetch.New(nil),
		health.NewMonitor(store, 0, nil),
		storage.NewCache(store, nil),
		nil,
	)
	return NewDispatcher(engine, nil)
}

func delivery(t *testing.T, msg Message) *Delivery {
	t.Helper()
	data, err := Encode(msg)
	require.NoError(t, err)
	return &Delivery{ID: "1", Body: data, Attempts: 1}
}

func TestHandleDecodeFailure(t *testing.T) {
	d := newTestDispatcher()

	err := d.Handle(context.Background(), &Delivery{ID: "1", Body: []byte(`{"type":"bogus"}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown message type")
}

func TestHandleCompileFailureSurfacesError(t *testing.T) {
	d := newTestDispatcher()

	// An invalid config fails the workflow's validation step; the dispatcher
	// turns that into a handler error so the platform can redeliver.
	msg := NewCompileMessage("req-1", workflow.CompileConfig{Name: "no-sources"})
	err := d.Handle(context.Background(), delivery(t, msg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "req-1")
}

func TestHandleBatchPartialFailureAcks(t *testing.T) {
	d := newTestDispatcher()

	// Batch messages are acknowledged even when requests inside fail: the
	// partial failure is represented in the batch result, not the queue.
	msg := NewBatchCompileMessage([]workflow.BatchRequest{
		{RequestID: "req-1", Config: workflow.CompileConfig{Name: "no-sources"}},
	})
	assert.NoError(t, d.Handle(context.Background(), delivery(t, msg)))
}

func TestHandleCacheWarmAcks(t *testing.T) {
	d := newTestDispatcher()

	msg := NewCacheWarmMessage([]workflow.CompileConfig{{Name: "no-sources"}})
	assert.NoError(t, d.Handle(context.Background(), delivery(t, msg)))
}
