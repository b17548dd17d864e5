package statscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
)

// RedisConfig configures the shared backend
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// RedisBackend shares entries between instances
type RedisBackend struct {
	client *redis.Client
}

// NewRedisClient creates and pings a Redis client
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	// The cache is advisory, so keep timeouts short
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 500 * time.Millisecond
	opts.WriteTimeout = 500 * time.Millisecond
	opts.PoolTimeout = time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewRedisBackend wraps an existing client
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Get returns the entry or ErrMiss
func (r *RedisBackend) Get(ctx context.Context, key string) (domain.ProjectStats, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return domain.ProjectStats{}, ErrMiss
	} else if err != nil {
		return domain.ProjectStats{}, fmt.Errorf("redis get failed: %w", err)
	}

	var stats domain.ProjectStats
	if err := json.Unmarshal(data, &stats); err != nil {
		// If unmarshal fails, delete corrupt data
		r.client.Del(ctx, key)
		return domain.ProjectStats{}, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return stats, nil
}

// Set stores an entry with ttl
func (r *RedisBackend) Set(ctx context.Context, key string, stats domain.ProjectStats, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Close closes the client
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
