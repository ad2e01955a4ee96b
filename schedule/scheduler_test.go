package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listforge/listforge/fetch"
	"github.com/listforge/listforge/health"
	"github.com/listforge/listforge/queue"
	"github.com/listforge/listforge/storage"
	"github.com/listforge/listforge/workflow"
)

func newTestScheduler() *Scheduler {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(
		fetch.New(nil),
		health.NewMonitor(store, 0, nil),
		storage.NewCache(store, nil),
		nil,
	)
	return New(queue.NewProvider(nil), engine, nil)
}

func TestAddJobs(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddCacheWarm("@hourly", []workflow.CompileConfig{{Name: "ads"}}))
	require.NoError(t, s.AddHealthCheck("0 3 * * *", []string{"https://a.example.com/list.txt"}))
	assert.Equal(t, 2, s.Entries())
}

func TestAddJobRejectsBadCron(t *testing.T) {
	s := newTestScheduler()

	assert.Error(t, s.AddCacheWarm("not a cron spec", nil))
	assert.Error(t, s.AddHealthCheck("61 * * * *", nil))
	assert.Equal(t, 0, s.Entries())
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddHealthCheck("@daily", []string{"https://a.example.com/list.txt"}))

	s.Start()
	s.Stop()
}
