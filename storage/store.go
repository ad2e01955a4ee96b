// Package storage provides TTL-keyed storage for fetched filter lists,
// compiled artifacts, and source health records. The Store interface is the
// key/value/TTL contract every binding must satisfy; the NATS JetStream KV
// binding is the production implementation and MemoryStore backs tests and
// one-shot compiles.
package storage

import (
	"context"
	"time"
)

// Entry is a stored value with its expiry metadata. An Entry whose ExpiresAt
// has passed is treated as absent by every Store implementation and is never
// returned to callers.
type Entry struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is zero for entries that never expire.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the entry is past its expiry at time now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Stats summarizes the state of a store.
type Stats struct {
	TotalEntries   int   `json:"total_entries"`
	ExpiredEntries int   `json:"expired_entries"`
	StorageSize    int64 `json:"storage_size"`
}

// Store is the key/value/TTL contract consumed by the cache, the health
// monitor, and the workflow engine. Implementations must provide at least
// read-your-writes consistency per key.
type Store interface {
	// Get returns the entry for key, or ErrNotFound when absent or expired.
	Get(ctx context.Context, key string) (*Entry, error)
	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key returns ErrNotFound.
	Delete(ctx context.Context, key string) error
	// List returns non-expired entries whose key starts with prefix, in key
	// order (reversed when reverse is set), up to limit (0 = no limit).
	List(ctx context.Context, prefix string, limit int, reverse bool) ([]*Entry, error)
	// ClearExpired sweeps expired entries and returns how many were removed.
	ClearExpired(ctx context.Context) (int, error)
	// Stats returns entry counts and approximate storage size.
	Stats(ctx context.Context) (*Stats, error)
}
