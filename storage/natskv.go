package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the KV bucket holding all listforge entries.
const DefaultBucket = "LISTFORGE_STORE"

// KVStore is a Store backed by a NATS JetStream key-value bucket.
//
// JetStream KV only supports bucket-wide TTLs, so per-entry expiry is carried
// in the stored Entry envelope: expired entries are treated as absent on read
// and purged lazily or by ClearExpired.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore opens (or creates) the KV bucket and returns a Store over it.
func NewKVStore(ctx context.Context, js jetstream.JetStream, bucket string) (*KVStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		// Bucket doesn't exist, create it
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "listforge filter list and health storage",
			History:     1,
		})
		if err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &KVStore{kv: kv}, nil
}

// Get returns the entry for key, or ErrNotFound when absent or expired.
// Expired entries are purged on read.
func (s *KVStore) Get(ctx context.Context, key string) (*Entry, error) {
	kve, err := s.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(kve.Value(), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}

	if entry.Expired(time.Now()) {
		_ = s.kv.Delete(ctx, encodeKey(key))
		return nil, ErrNotFound
	}

	return &entry, nil
}

// Set stores data under key with an optional TTL.
func (s *KVStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now()
	entry := Entry{
		Key:       key,
		Data:      data,
		CreatedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	payload, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	if _, err := s.kv.Put(ctx, encodeKey(key), payload); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes key, returning ErrNotFound when it is absent.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.kv.Get(ctx, encodeKey(key)); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := s.kv.Delete(ctx, encodeKey(key)); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List returns non-expired entries matching prefix in key order.
func (s *KVStore) List(ctx context.Context, prefix string, limit int, reverse bool) ([]*Entry, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}

	encodedPrefix := encodeKey(prefix)
	matched := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, encodedPrefix) {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)
	if reverse {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	now := time.Now()
	entries := make([]*Entry, 0, len(matched))
	for _, key := range matched {
		kve, err := s.kv.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var entry Entry
		if err := json.Unmarshal(kve.Value(), &entry); err != nil {
			continue
		}
		if entry.Expired(now) {
			continue
		}
		entries = append(entries, &entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

// ClearExpired purges expired entries from the bucket.
func (s *KVStore) ClearExpired(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("list keys: %w", err)
	}

	now := time.Now()
	removed := 0
	for _, key := range keys {
		kve, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(kve.Value(), &entry); err != nil {
			continue
		}
		if entry.Expired(now) {
			if err := s.kv.Delete(ctx, key); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Stats reports counts and approximate stored size.
func (s *KVStore) Stats(ctx context.Context) (*Stats, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return &Stats{}, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}

	now := time.Now()
	stats := &Stats{}
	for _, key := range keys {
		kve, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		stats.TotalEntries++
		stats.StorageSize += int64(len(kve.Value()))

		var entry Entry
		if err := json.Unmarshal(kve.Value(), &entry); err != nil {
			continue
		}
		if entry.Expired(now) {
			stats.ExpiredEntries++
		}
	}
	return stats, nil
}

// encodeKey maps a logical key onto the character set JetStream KV accepts.
func encodeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_' || r == '=' || r == '/':
			return r
		default:
			return '_'
		}
	}, key)
}
