package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listforge/listforge/workflow"
)

func testCompileConfig(name string) workflow.CompileConfig {
	return workflow.CompileConfig{
		Name: name,
		Sources: []workflow.SourceConfig{
			{Name: "upstream", URL: "https://filters.example.com/ads.txt"},
		},
	}
}

func TestEncodeDecodeCompile(t *testing.T) {
	msg := NewCompileMessage("req-1", testCompileConfig("ads-basic"))

	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	compile, ok := decoded.(*CompileMessage)
	require.True(t, ok, "decode dispatches on the type discriminator")
	assert.Equal(t, TypeCompile, compile.MessageType())
	assert.Equal(t, "req-1", compile.RequestID)
	assert.Equal(t, "ads-basic", compile.Config.Name)
	assert.False(t, compile.Timestamp.IsZero())
}

func TestEncodeDecodeBatchCompile(t *testing.T) {
	msg := NewBatchCompileMessage([]workflow.BatchRequest{
		{RequestID: "req-1", Config: testCompileConfig("ads-basic")},
		{RequestID: "req-2", Config: testCompileConfig("ads-strict")},
	})

	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	batch, ok := decoded.(*BatchCompileMessage)
	require.True(t, ok)
	require.Len(t, batch.Requests, 2)
	assert.Equal(t, "req-2", batch.Requests[1].RequestID)
}

func TestEncodeDecodeCacheWarm(t *testing.T) {
	msg := NewCacheWarmMessage([]workflow.CompileConfig{
		testCompileConfig("ads-basic"),
	})

	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	warm, ok := decoded.(*CacheWarmMessage)
	require.True(t, ok)
	require.Len(t, warm.Configs, 1)
	assert.Equal(t, "ads-basic", warm.Configs[0].Name)
}

func TestEncodeStampsHeader(t *testing.T) {
	// A hand-built struct without header fields still encodes with the
	// correct discriminator and a timestamp.
	msg := &CompileMessage{RequestID: "req-1", Config: testCompileConfig("ads")}

	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeCompile, decoded.MessageType())
	assert.False(t, decoded.(*CompileMessage).Timestamp.IsZero())
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"no-such-job"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown message type")
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte(`{{{`))
	assert.Error(t, err)
}

func TestDecodeRejectsEmptyLists(t *testing.T) {
	t.Run("batch-compile with no requests", func(t *testing.T) {
		_, err := Decode([]byte(`{"type":"batch-compile","requests":[]}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one request")
	})

	t.Run("cache-warm with no configs", func(t *testing.T) {
		_, err := Decode([]byte(`{"type":"cache-warm","configs":[]}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one config")
	})
}

func TestEncodeRejectsInvalid(t *testing.T) {
	_, err := Encode(&BatchCompileMessage{})
	assert.Error(t, err, "validation runs before send")
}

func TestCompileValidateDefersConfigCheck(t *testing.T) {
	// A compile message with a malformed config still decodes: the workflow's
	// validation step owns config-shape failures so they surface as structured
	// compilation results instead of poisoning the queue.
	msg := NewCompileMessage("req-1", workflow.CompileConfig{})
	data, err := Encode(msg)
	require.NoError(t, err)

	_, err = Decode(data)
	assert.NoError(t, err)
}
