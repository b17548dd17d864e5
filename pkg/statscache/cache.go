// Package statscache caches dashboard aggregates for a short, fixed TTL.
//
// The cache is advisory. A backend failure is logged and treated as a miss,
// never as a request failure. Writes to projects do not invalidate entries:
// a dashboard may lag the store by up to TTL (60s). This trade-off is
// accepted; entries simply age out.
//
// Keys have the form org_stats:{orgId}:{role}:{userId}, so two callers share
// an entry only when organization, level and user all match.
package statscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
)

// TTL is the fixed lifetime of an entry
const TTL = 60 * time.Second

// ErrMiss is returned by backends when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// Key identifies a cached aggregate
type Key struct {
	OrganizationID int64
	Level          domain.Level
	UserID         int64
}

func (k Key) String() string {
	return fmt.Sprintf("org_stats:%d:%s:%d", k.OrganizationID, k.Level, k.UserID)
}

// Backend stores aggregates
type Backend interface {
	Get(ctx context.Context, key string) (domain.ProjectStats, error)
	Set(ctx context.Context, key string, stats domain.ProjectStats, ttl time.Duration) error
	Close() error
}

// Cache events reported to the Observer
const (
	EventHit   = "hit"
	EventMiss  = "miss"
	EventError = "error"
)

// Observer is told about each lookup outcome
type Observer func(event string)

// Cache wraps a Backend with miss collapsing and fail-open behavior
type Cache struct {
	backend  Backend
	ttl      time.Duration
	logger   *logrus.Logger
	group    singleflight.Group
	observer Observer
}

// New creates a Cache over backend
func New(backend Backend, logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Cache{backend: backend, ttl: TTL, logger: logger}
}

// SetObserver registers a callback for lookup outcomes
func (c *Cache) SetObserver(o Observer) {
	c.observer = o
}

func (c *Cache) observe(event string) {
	if c.observer != nil {
		c.observer(event)
	}
}

// Get returns the cached aggregate for key. Backend errors are a miss.
func (c *Cache) Get(ctx context.Context, key Key) (domain.ProjectStats, bool) {
	stats, err := c.backend.Get(ctx, key.String())
	switch {
	case err == nil:
		c.observe(EventHit)
		return stats, true
	case errors.Is(err, ErrMiss):
		c.observe(EventMiss)
	default:
		c.observe(EventError)
		c.logger.WithFields(logrus.Fields{"key": key.String(), "error": err}).Warn("Stats cache read failed")
	}
	return domain.ProjectStats{}, false
}

// Set stores stats under key for the fixed TTL. Failures are logged only.
func (c *Cache) Set(ctx context.Context, key Key, stats domain.ProjectStats) {
	if err := c.backend.Set(ctx, key.String(), stats, c.ttl); err != nil {
		c.observe(EventError)
		c.logger.WithFields(logrus.Fields{"key": key.String(), "error": err}).Warn("Stats cache write failed")
	}
}

// GetOrCompute returns the cached aggregate or computes and stores it.
// Concurrent misses on the same key share one computation. The bool is true
// when the value came from the cache.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute func(ctx context.Context) (domain.ProjectStats, error)) (domain.ProjectStats, bool, error) {
	if stats, ok := c.Get(ctx, key); ok {
		return stats, true, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		stats, err := compute(ctx)
		if err != nil {
			return domain.ProjectStats{}, err
		}
		c.Set(ctx, key, stats)
		return stats, nil
	})
	if err != nil {
		return domain.ProjectStats{}, false, err
	}
	return v.(domain.ProjectStats), false, nil
}

// Close releases the backend
func (c *Cache) Close() error {
	return c.backend.Close()
}
