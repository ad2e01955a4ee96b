package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusTerminated.IsTerminal())
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"queued to running", StatusQueued, StatusRunning, true},
		{"queued to terminated", StatusQueued, StatusTerminated, true},
		{"queued to completed", StatusQueued, StatusCompleted, false},
		{"queued to paused", StatusQueued, StatusPaused, false},
		{"running to paused", StatusRunning, StatusPaused, true},
		{"running to completed", StatusRunning, StatusCompleted, true},
		{"running to failed", StatusRunning, StatusFailed, true},
		{"running to terminated", StatusRunning, StatusTerminated, true},
		{"running to queued", StatusRunning, StatusQueued, false},
		{"paused to running", StatusPaused, StatusRunning, true},
		{"paused to terminated", StatusPaused, StatusTerminated, true},
		{"paused to completed", StatusPaused, StatusCompleted, false},
		{"completed is immutable", StatusCompleted, StatusRunning, false},
		{"failed is immutable", StatusFailed, StatusRunning, false},
		{"terminated is immutable", StatusTerminated, StatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestCompileConfigValidate(t *testing.T) {
	valid := CompileConfig{
		Name: "ads-basic",
		Sources: []SourceConfig{
			{Name: "upstream", URL: "https://filters.example.com/ads.txt"},
		},
	}
	assert.NoError(t, valid.Validate())

	t.Run("missing name", func(t *testing.T) {
		cfg := valid
		cfg.Name = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("no sources", func(t *testing.T) {
		cfg := valid
		cfg.Sources = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("source without url", func(t *testing.T) {
		cfg := valid
		cfg.Sources = []SourceConfig{{Name: "broken"}}
		assert.Error(t, cfg.Validate())
	})
}
