package statscache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
)

// setupRedisBackendTest creates a miniredis instance and a backend over it
func setupRedisBackendTest(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client, err := NewRedisClient(RedisConfig{URL: "redis://" + mr.Addr(), MaxRetries: 1, PoolSize: 4})
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis client: %v", err)
	}

	backend := NewRedisBackend(client)
	t.Cleanup(func() {
		backend.Close()
		mr.Close()
	})
	return backend, mr
}

func TestKeyFormat(t *testing.T) {
	k := Key{OrganizationID: 7, Level: domain.LevelExpert, UserID: 42}
	assert.Equal(t, "org_stats:7:expert:42", k.String())
}

func TestMemoryBackend_HitMissAndEviction(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	backend := NewMemoryBackend(10)
	c := New(backend, logger)

	var events []string
	c.SetObserver(func(e string) { events = append(events, e) })

	key := Key{OrganizationID: 1, Level: domain.LevelAdmin, UserID: 1}
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, domain.ProjectStats{Total: 3, Pending: 3})
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Total)
	assert.Equal(t, []string{EventMiss, EventHit}, events)

	for i := int64(2); i <= 20; i++ {
		c.Set(ctx, Key{OrganizationID: 1, Level: domain.LevelMember, UserID: i}, domain.ProjectStats{Total: i})
	}
	assert.Equal(t, 10, backend.Len(), "size threshold bounds the cache")
	_, ok = c.Get(ctx, key)
	assert.False(t, ok, "oldest entry was evicted")
}

func TestRedisBackend_RoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	backend, mr := setupRedisBackendTest(t)
	c := New(backend, logger)

	key := Key{OrganizationID: 2, Level: domain.LevelExpert, UserID: 5}
	c.Set(ctx, key, domain.ProjectStats{Total: 4, Accepted: 1, Pending: 3})

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, domain.ProjectStats{Total: 4, Accepted: 1, Pending: 3}, got)
	assert.Equal(t, TTL, mr.TTL(key.String()))

	mr.FastForward(TTL + time.Second)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok, "entries age out after the TTL")
}

func TestRedisBackend_CorruptEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	backend, mr := setupRedisBackendTest(t)

	require.NoError(t, mr.Set("org_stats:1:admin:1", "not json"))
	_, err := backend.Get(ctx, "org_stats:1:admin:1")
	assert.Error(t, err)
	assert.False(t, mr.Exists("org_stats:1:admin:1"))
}

func TestCache_BackendFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	logger, hook := test.NewNullLogger()
	backend, mr := setupRedisBackendTest(t)
	c := New(backend, logger)

	mr.Close()

	key := Key{OrganizationID: 1, Level: domain.LevelAdmin, UserID: 1}
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, domain.ProjectStats{Total: 1})

	stats, cached, err := c.GetOrCompute(ctx, key, func(context.Context) (domain.ProjectStats, error) {
		return domain.ProjectStats{Total: 9}, nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int64(9), stats.Total)
	assert.NotEmpty(t, hook.AllEntries())
}

func TestGetOrCompute(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	c := New(NewMemoryBackend(100), logger)
	key := Key{OrganizationID: 3, Level: domain.LevelMember, UserID: 8}

	calls := 0
	compute := func(context.Context) (domain.ProjectStats, error) {
		calls++
		return domain.ProjectStats{Total: 2, Rejected: 2}, nil
	}

	stats, cached, err := c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int64(2), stats.Rejected)

	stats, cached, err = c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, 1, calls)

	boom := errors.New("store down")
	_, _, err = c.GetOrCompute(ctx, Key{OrganizationID: 4}, func(context.Context) (domain.ProjectStats, error) {
		return domain.ProjectStats{}, boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(ctx, Key{OrganizationID: 4})
	assert.False(t, ok, "failures are not cached")
}

func TestGetOrCompute_CollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	c := New(NewMemoryBackend(100), logger)
	key := Key{OrganizationID: 5, Level: domain.LevelAdmin, UserID: 1}

	var calls int32
	release := make(chan struct{})
	compute := func(context.Context) (domain.ProjectStats, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return domain.ProjectStats{Total: 1, Pending: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, _, err := c.GetOrCompute(ctx, key, compute)
			assert.NoError(t, err)
			assert.Equal(t, int64(1), stats.Total)
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
