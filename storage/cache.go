package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Key prefixes for the two cached artifact families.
const (
	filterListPrefix = "cache.filter."
	artifactPrefix   = "cache.artifact."
)

// DefaultFilterListTTL is how long fetched source content stays fresh.
const DefaultFilterListTTL = time.Hour

// FilterListEntry is a cached copy of one source's raw content.
type FilterListEntry struct {
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Hash      string    `json:"hash"`
	ETag      string    `json:"etag,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Artifact is a cached compiled output.
type Artifact struct {
	Key             string    `json:"key"`
	ContentEncoding string    `json:"content_encoding,omitempty"`
	Data            []byte    `json:"data"`
	RuleCount       int       `json:"rule_count"`
	Checksum        string    `json:"checksum"`
	CompiledAt      time.Time `json:"compiled_at"`
}

// Cache is the read-through TTL cache for fetched content and compiled
// artifacts. Expired entries are treated as absent; callers recompute.
type Cache struct {
	store  Store
	logger *slog.Logger
}

// NewCache creates a Cache over the given store.
func NewCache(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, logger: logger}
}

// CacheFilterList stores fetched source content under the source's key.
// A ttl of zero uses DefaultFilterListTTL.
func (c *Cache) CacheFilterList(ctx context.Context, source, content, hash, etag string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultFilterListTTL
	}

	entry := FilterListEntry{
		Source:    source,
		Content:   content,
		Hash:      hash,
		ETag:      etag,
		FetchedAt: time.Now(),
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal filter list %s: %w", source, err)
	}

	return c.store.Set(ctx, filterListPrefix+SourceKey(source), data, ttl)
}

// GetCachedFilterList returns the cached content for a source, or ErrNotFound
// when the source was never cached or its entry has expired.
func (c *Cache) GetCachedFilterList(ctx context.Context, source string) (*FilterListEntry, error) {
	raw, err := c.store.Get(ctx, filterListPrefix+SourceKey(source))
	if err != nil {
		return nil, err
	}

	var entry FilterListEntry
	if err := json.Unmarshal(raw.Data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal filter list %s: %w", source, err)
	}
	return &entry, nil
}

// CacheArtifact stores a compiled artifact under its content-derived key.
func (c *Cache) CacheArtifact(ctx context.Context, artifact *Artifact, ttl time.Duration) error {
	if artifact.Key == "" {
		return fmt.Errorf("artifact key is required")
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", artifact.Key, err)
	}

	return c.store.Set(ctx, artifactPrefix+artifact.Key, data, ttl)
}

// GetArtifact returns a cached compiled artifact, or ErrNotFound when absent
// or expired.
func (c *Cache) GetArtifact(ctx context.Context, key string) (*Artifact, error) {
	raw, err := c.store.Get(ctx, artifactPrefix+key)
	if err != nil {
		return nil, err
	}

	var artifact Artifact
	if err := json.Unmarshal(raw.Data, &artifact); err != nil {
		return nil, fmt.Errorf("unmarshal artifact %s: %w", key, err)
	}
	return &artifact, nil
}

// InvalidateFilterList drops a source's cached content, if present.
func (c *Cache) InvalidateFilterList(ctx context.Context, source string) error {
	err := c.store.Delete(ctx, filterListPrefix+SourceKey(source))
	if err != nil && err != ErrNotFound {
		return err
	}
	return nil
}
