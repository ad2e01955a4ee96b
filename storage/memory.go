package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and one-shot compiles.
// Expired entries are treated as absent on read and reaped by ClearExpired.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// now is overridable in tests to exercise expiry without sleeping.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Get returns the entry for key, or ErrNotFound when absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.Expired(s.now()) {
		return nil, ErrNotFound
	}

	cp := *entry
	cp.Data = append([]byte(nil), entry.Data...)
	return &cp, nil
}

// Set stores data under key with an optional TTL.
func (s *MemoryStore) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	now := s.now()
	entry := &Entry{
		Key:       key,
		Data:      append([]byte(nil), data...),
		CreatedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes key, returning ErrNotFound when it is absent.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

// List returns non-expired entries matching prefix in key order.
func (s *MemoryStore) List(_ context.Context, prefix string, limit int, reverse bool) ([]*Entry, error) {
	now := s.now()

	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for key, entry := range s.entries {
		if strings.HasPrefix(key, prefix) && !entry.Expired(now) {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	entries := make([]*Entry, 0, len(keys))
	s.mu.RLock()
	for _, key := range keys {
		if entry, ok := s.entries[key]; ok {
			cp := *entry
			cp.Data = append([]byte(nil), entry.Data...)
			entries = append(entries, &cp)
		}
	}
	s.mu.RUnlock()
	return entries, nil
}

// ClearExpired sweeps expired entries and returns the count removed.
func (s *MemoryStore) ClearExpired(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Stats reports counts and approximate size in bytes.
func (s *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}
	for _, entry := range s.entries {
		stats.TotalEntries++
		if entry.Expired(now) {
			stats.ExpiredEntries++
		}
		stats.StorageSize += int64(len(entry.Key) + len(entry.Data))
	}
	return stats, nil
}
