package statscache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
)

// MemoryBackend is a process-local expirable LRU. Once MaxEntries is
// reached the least recently used entry is evicted.
type MemoryBackend struct {
	cache *lru.LRU[string, domain.ProjectStats]
}

// NewMemoryBackend creates a MemoryBackend holding at most maxEntries
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	if maxEntries < 10 {
		maxEntries = 10 // Minimum 10 entries
	}
	return &MemoryBackend{
		cache: lru.NewLRU[string, domain.ProjectStats](maxEntries, nil, TTL),
	}
}

// Get returns the entry or ErrMiss
func (m *MemoryBackend) Get(ctx context.Context, key string) (domain.ProjectStats, error) {
	stats, ok := m.cache.Get(key)
	if !ok {
		return domain.ProjectStats{}, ErrMiss
	}
	return stats, nil
}

// Set adds an entry. The LRU applies its own TTL, fixed at construction.
func (m *MemoryBackend) Set(ctx context.Context, key string, stats domain.ProjectStats, ttl time.Duration) error {
	m.cache.Add(key, stats)
	return nil
}

// Len returns the number of live entries
func (m *MemoryBackend) Len() int {
	return m.cache.Len()
}

// Close drops every entry
func (m *MemoryBackend) Close() error {
	m.cache.Purge()
	return nil
}
