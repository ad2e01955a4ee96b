package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.Set(ctx, "cache.filter.example", []byte("||example.com^"), 0)
	require.NoError(t, err)

	entry, err := store.Get(ctx, "cache.filter.example")
	require.NoError(t, err)
	assert.Equal(t, "cache.filter.example", entry.Key)
	assert.Equal(t, []byte("||example.com^"), entry.Data)
	assert.True(t, entry.ExpiresAt.IsZero(), "no TTL means no expiry")
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	// Still fresh just before the deadline.
	now = now.Add(59 * time.Second)
	_, err := store.Get(ctx, "k")
	require.NoError(t, err)

	// Expired entries read as absent.
	now = now.Add(2 * time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "k"), ErrNotFound)
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "health.a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "health.b", []byte("2"), 0))
	require.NoError(t, store.Set(ctx, "health.c", []byte("3"), 0))
	require.NoError(t, store.Set(ctx, "cache.filter.x", []byte("4"), 0))

	t.Run("prefix filter in key order", func(t *testing.T) {
		entries, err := store.List(ctx, "health.", 0, false)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "health.a", entries[0].Key)
		assert.Equal(t, "health.c", entries[2].Key)
	})

	t.Run("limit", func(t *testing.T) {
		entries, err := store.List(ctx, "health.", 2, false)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("reverse", func(t *testing.T) {
		entries, err := store.List(ctx, "health.", 0, true)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "health.c", entries[0].Key)
	})

	t.Run("no matches", func(t *testing.T) {
		entries, err := store.List(ctx, "missing.", 0, false)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestMemoryStoreListSkipsExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "health.fresh", []byte("1"), time.Hour))
	require.NoError(t, store.Set(ctx, "health.stale", []byte("2"), time.Minute))

	now = now.Add(30 * time.Minute)
	entries, err := store.List(ctx, "health.", 0, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "health.fresh", entries[0].Key)
}

func TestMemoryStoreClearExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, store.Set(ctx, "c", []byte("3"), 0))

	now = now.Add(10 * time.Minute)
	removed, err := store.ClearExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 0, stats.ExpiredEntries)
}

func TestMemoryStoreStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "a", []byte("xx"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("yyyy"), 0))

	now = now.Add(2 * time.Minute)
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.ExpiredEntries)
	assert.Equal(t, int64(len("a")+2+len("b")+4), stats.StorageSize)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", []byte("abc"), 0))

	entry, err := store.Get(ctx, "k")
	require.NoError(t, err)
	entry.Data[0] = 'z'

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again.Data, "mutating a returned entry must not affect the store")
}
