package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/pitchdesk/pkg/objectstore"
	"github.com/platinummonkey/pitchdesk/pkg/statscache"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
)

// EnvConfigFile names the optional YAML file layered under the environment
const EnvConfigFile = "PITCHDESK_CONFIG_FILE"

// Cache and rate limit backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig           `yaml:"server"`
	Storage       storage.Config         `yaml:"storage"`
	Session       SessionConfig          `yaml:"session"`
	Redis         statscache.RedisConfig `yaml:"redis"`
	Cache         CacheConfig            `yaml:"cache"`
	ObjectStore   ObjectStoreConfig      `yaml:"object_store"`
	RateLimit     RateLimitConfig        `yaml:"rate_limit"`
	Mail          MailConfig             `yaml:"mail"`
	Janitor       JanitorConfig          `yaml:"janitor"`
	Observability ObservabilityConfig    `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxUploadSize caps a multipart submission, file included
	MaxUploadSize int64 `yaml:"max_upload_size"`
	// TrustProxy makes X-Forwarded-For the client address for rate limiting
	TrustProxy bool `yaml:"trust_proxy"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// SessionConfig configures session tokens and the cookie carrying them
type SessionConfig struct {
	Secret       string        `yaml:"secret"`
	Issuer       string        `yaml:"issuer"`
	TTL          time.Duration `yaml:"ttl"`
	CookieName   string        `yaml:"cookie_name"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

// CacheConfig selects the dashboard stats cache backend
type CacheConfig struct {
	Backend    string `yaml:"backend"`
	MaxEntries int    `yaml:"max_entries"`
}

// ObjectStoreConfig configures attachment uploads. Disabled drops files.
type ObjectStoreConfig struct {
	Enabled bool                 `yaml:"enabled"`
	S3      objectstore.S3Config `yaml:"s3"`
}

// RateLimitConfig limits login and registration attempts per client
type RateLimitConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Backend           string `yaml:"backend"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	Burst             int    `yaml:"burst"`
}

// MailConfig controls outbound email
type MailConfig struct {
	Receipts bool `yaml:"receipts"`
}

// JanitorConfig drives the notification retention job
type JanitorConfig struct {
	Schedule  string        `yaml:"schedule"`
	Retention time.Duration `yaml:"retention"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the local development configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadSize:   25 << 20,
		},
		Storage: storage.DefaultConfig(),
		Session: SessionConfig{
			Issuer:     "pitchdesk",
			TTL:        7 * 24 * time.Hour,
			CookieName: "pitchdesk_session",
		},
		Cache: CacheConfig{
			Backend:    BackendMemory,
			MaxEntries: 1024,
		},
		ObjectStore: ObjectStoreConfig{
			S3: objectstore.S3Config{
				Region:  "us-east-1",
				MaxSize: 20 << 20,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			Backend:           BackendMemory,
			RequestsPerMinute: 10,
			Burst:             5,
		},
		Janitor: JanitorConfig{
			Schedule:  "@daily",
			Retention: 30 * 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "json",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "pitchdesk",
			OTelServiceVersion: "dev",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by PITCHDESK_CONFIG_FILE, and PITCHDESK_* environment variables, in that
// order of precedence from lowest to highest.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("PITCHDESK_HOST", s.Host)
	s.Port = getEnv("PITCHDESK_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("PITCHDESK_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("PITCHDESK_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("PITCHDESK_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("PITCHDESK_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxUploadSize = getEnvInt64("PITCHDESK_MAX_UPLOAD_SIZE", s.MaxUploadSize)
	s.TrustProxy = getEnvBool("PITCHDESK_TRUST_PROXY", s.TrustProxy)

	db := &c.Storage
	db.Driver = getEnv("PITCHDESK_DB_DRIVER", db.Driver)
	db.DSN = getEnv("PITCHDESK_DB_DSN", db.DSN)
	db.MaxConns = getEnvInt("PITCHDESK_DB_MAX_CONNS", db.MaxConns)
	db.MinConns = getEnvInt("PITCHDESK_DB_MIN_CONNS", db.MinConns)
	db.Timeout = getEnvDuration("PITCHDESK_DB_TIMEOUT", db.Timeout)
	db.TxAttempts = getEnvInt("PITCHDESK_DB_TX_ATTEMPTS", db.TxAttempts)

	sess := &c.Session
	sess.Secret = getEnv("PITCHDESK_SESSION_SECRET", sess.Secret)
	sess.Issuer = getEnv("PITCHDESK_SESSION_ISSUER", sess.Issuer)
	sess.TTL = getEnvDuration("PITCHDESK_SESSION_TTL", sess.TTL)
	sess.CookieName = getEnv("PITCHDESK_SESSION_COOKIE", sess.CookieName)
	sess.CookieSecure = getEnvBool("PITCHDESK_SESSION_COOKIE_SECURE", sess.CookieSecure)

	r := &c.Redis
	r.URL = getEnv("PITCHDESK_REDIS_URL", r.URL)
	r.Password = getEnv("PITCHDESK_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("PITCHDESK_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("PITCHDESK_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("PITCHDESK_REDIS_POOL_SIZE", r.PoolSize)

	c.Cache.Backend = strings.ToLower(getEnv("PITCHDESK_CACHE_BACKEND", c.Cache.Backend))
	c.Cache.MaxEntries = getEnvInt("PITCHDESK_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)

	o := &c.ObjectStore
	o.Enabled = getEnvBool("PITCHDESK_S3_ENABLED", o.Enabled)
	o.S3.Endpoint = getEnv("PITCHDESK_S3_ENDPOINT", o.S3.Endpoint)
	o.S3.Region = getEnv("PITCHDESK_S3_REGION", o.S3.Region)
	o.S3.Bucket = getEnv("PITCHDESK_S3_BUCKET", o.S3.Bucket)
	o.S3.AccessKey = getEnv("PITCHDESK_S3_ACCESS_KEY", o.S3.AccessKey)
	o.S3.SecretKey = getEnv("PITCHDESK_S3_SECRET_KEY", o.S3.SecretKey)
	o.S3.UsePathStyle = getEnvBool("PITCHDESK_S3_USE_PATH_STYLE", o.S3.UsePathStyle)
	o.S3.PublicBaseURL = getEnv("PITCHDESK_S3_PUBLIC_BASE_URL", o.S3.PublicBaseURL)
	o.S3.MaxSize = getEnvInt64("PITCHDESK_S3_MAX_SIZE", o.S3.MaxSize)

	rl := &c.RateLimit
	rl.Enabled = getEnvBool("PITCHDESK_RATE_LIMIT_ENABLED", rl.Enabled)
	rl.Backend = strings.ToLower(getEnv("PITCHDESK_RATE_LIMIT_BACKEND", rl.Backend))
	rl.RequestsPerMinute = getEnvInt("PITCHDESK_RATE_LIMIT_PER_MINUTE", rl.RequestsPerMinute)
	rl.Burst = getEnvInt("PITCHDESK_RATE_LIMIT_BURST", rl.Burst)

	c.Mail.Receipts = getEnvBool("PITCHDESK_MAIL_RECEIPTS", c.Mail.Receipts)

	c.Janitor.Schedule = getEnv("PITCHDESK_JANITOR_SCHEDULE", c.Janitor.Schedule)
	c.Janitor.Retention = getEnvDuration("PITCHDESK_JANITOR_RETENTION", c.Janitor.Retention)

	obs := &c.Observability
	obs.LogLevel = getEnv("PITCHDESK_LOG_LEVEL", obs.LogLevel)
	obs.LogFormat = getEnv("PITCHDESK_LOG_FORMAT", obs.LogFormat)
	obs.MetricsEnabled = getEnvBool("PITCHDESK_METRICS_ENABLED", obs.MetricsEnabled)
	obs.OTelEnabled = getEnvBool("PITCHDESK_OTEL_ENABLED", obs.OTelEnabled)
	obs.OTelEndpoint = getEnv("PITCHDESK_OTEL_ENDPOINT", obs.OTelEndpoint)
	obs.OTelServiceName = getEnv("PITCHDESK_OTEL_SERVICE_NAME", obs.OTelServiceName)
	obs.OTelServiceVersion = getEnv("PITCHDESK_OTEL_SERVICE_VERSION", obs.OTelServiceVersion)
	obs.OTelInsecure = getEnvBool("PITCHDESK_OTEL_INSECURE", obs.OTelInsecure)
	obs.OTelSampleRatio = getEnvFloat("PITCHDESK_OTEL_SAMPLE_RATIO", obs.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("max upload size must be positive"))
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "postgres", "postgresql", "pq", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("invalid database driver: %q (must be postgres or sqlite3)", c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}

	if len(c.Session.Secret) < 32 {
		errs = append(errs, errors.New("session secret must be at least 32 bytes"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session TTL must be positive"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session cookie name is required"))
	}

	switch c.Cache.Backend {
	case BackendMemory:
		if c.Cache.MaxEntries <= 0 {
			errs = append(errs, errors.New("cache max entries must be positive"))
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis URL is required for the redis cache backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid cache backend: %q (must be memory or redis)", c.Cache.Backend))
	}

	if c.ObjectStore.Enabled && c.ObjectStore.S3.Bucket == "" {
		errs = append(errs, errors.New("S3 bucket is required when object storage is enabled"))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, errors.New("rate limit requests per minute must be positive"))
		}
		switch c.RateLimit.Backend {
		case BackendMemory:
		case BackendRedis:
			if c.Redis.URL == "" {
				errs = append(errs, errors.New("redis URL is required for the redis rate limit backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("invalid rate limit backend: %q (must be memory or redis)", c.RateLimit.Backend))
		}
	}

	if c.Janitor.Retention <= 0 {
		errs = append(errs, errors.New("janitor retention must be positive"))
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			errs = append(errs, errors.New("OpenTelemetry endpoint is required when OTel is enabled"))
		}
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			errs = append(errs, errors.New("OpenTelemetry sample ratio must be between 0 and 1"))
		}
	}

	return errors.Join(errs...)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
