package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_DefaultsNeedSecret(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("PITCHDESK_SESSION_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session secret")
}

func TestLoad_Env(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("PITCHDESK_SESSION_SECRET", testSecret)
	t.Setenv("PITCHDESK_PORT", "9000")
	t.Setenv("PITCHDESK_DB_DRIVER", "postgres")
	t.Setenv("PITCHDESK_DB_DSN", "postgres://localhost/pitchdesk")
	t.Setenv("PITCHDESK_SESSION_TTL", "2h")
	t.Setenv("PITCHDESK_CACHE_BACKEND", "REDIS")
	t.Setenv("PITCHDESK_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PITCHDESK_MAIL_RECEIPTS", "true")
	t.Setenv("PITCHDESK_OTEL_SAMPLE_RATIO", "0.25")
	t.Setenv("PITCHDESK_RATE_LIMIT_BURST", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, BackendRedis, cfg.Cache.Backend)
	assert.True(t, cfg.Mail.Receipts)
	assert.Equal(t, 0.25, cfg.Observability.OTelSampleRatio)
	assert.Equal(t, 5, cfg.RateLimit.Burst, "unparseable values keep the default")
}

func TestLoad_FileUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pitchdesk.yaml")
	writeFile(t, path, `
server:
  port: "7000"
  read_timeout: 5s
session:
  secret: `+testSecret+`
storage:
  driver: sqlite3
  dsn: "file::memory:?cache=shared"
object_store:
  enabled: true
  s3:
    bucket: decks
    use_path_style: true
observability:
  log_level: debug
`)
	t.Setenv(EnvConfigFile, path)
	t.Setenv("PITCHDESK_SESSION_SECRET", "")
	t.Setenv("PITCHDESK_PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7001", cfg.Server.Port, "env wins over file")
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "absent keys keep defaults")
	assert.Equal(t, "decks", cfg.ObjectStore.S3.Bucket)
	assert.True(t, cfg.ObjectStore.S3.UsePathStyle)
	assert.Equal(t, "us-east-1", cfg.ObjectStore.S3.Region)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoad_BadFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "server: [")
	t.Setenv(EnvConfigFile, path)
	_, err = Load()
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Session.Secret = testSecret
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mysql" }, "invalid database driver"},
		{"no dsn", func(c *Config) { c.Storage.DSN = "" }, "database DSN is required"},
		{"short secret", func(c *Config) { c.Session.Secret = "short" }, "session secret"},
		{"redis cache without url", func(c *Config) { c.Cache.Backend = BackendRedis }, "redis cache backend"},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }, "invalid cache backend"},
		{"s3 without bucket", func(c *Config) { c.ObjectStore.Enabled = true }, "S3 bucket is required"},
		{"redis limiter without url", func(c *Config) { c.RateLimit.Backend = BackendRedis }, "redis rate limit backend"},
		{"zero rate", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }, "requests per minute"},
		{"no retention", func(c *Config) { c.Janitor.Retention = 0 }, "janitor retention"},
		{"otel ratio", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelSampleRatio = 2
		}, "sample ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server port")
	assert.Contains(t, err.Error(), "session secret")
}

func TestRateLimitDisabledSkipsChecks(t *testing.T) {
	cfg := Default()
	cfg.Session.Secret = testSecret
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.Backend = "nonsense"
	assert.NoError(t, cfg.Validate())
}

func TestWatchLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pitchdesk.yaml")
	writeFile(t, path, "observability:\n  log_level: info\n")

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, WatchLogLevel(ctx, path, logger))

	writeFile(t, filepath.Join(dir, "other.yaml"), "observability:\n  log_level: error\n")
	writeFile(t, path, "observability:\n  log_level: debug\n")

	assert.Eventually(t, func() bool {
		return logger.GetLevel() == logrus.DebugLevel
	}, 2*time.Second, 10*time.Millisecond)

	writeFile(t, path, "observability:\n  log_level: shouting\n")
	assert.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "Ignoring unknown log level" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestWatchLogLevel_MissingDirectory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	err := WatchLogLevel(context.Background(), filepath.Join(t.TempDir(), "nope", "cfg.yaml"), logger)
	assert.Error(t, err)
}
