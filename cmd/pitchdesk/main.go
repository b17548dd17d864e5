package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pitchdesk/pkg/api"
	"github.com/platinummonkey/pitchdesk/pkg/auth"
	"github.com/platinummonkey/pitchdesk/pkg/config"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/middleware"
	"github.com/platinummonkey/pitchdesk/pkg/notify"
	"github.com/platinummonkey/pitchdesk/pkg/objectstore"
	"github.com/platinummonkey/pitchdesk/pkg/observability"
	"github.com/platinummonkey/pitchdesk/pkg/orgs"
	"github.com/platinummonkey/pitchdesk/pkg/policy"
	"github.com/platinummonkey/pitchdesk/pkg/projects"
	"github.com/platinummonkey/pitchdesk/pkg/review"
	"github.com/platinummonkey/pitchdesk/pkg/session"
	"github.com/platinummonkey/pitchdesk/pkg/statscache"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
	"github.com/platinummonkey/pitchdesk/pkg/storage/postgres"
)

var (
	migrateOnly = flag.Bool("migrate-only", false, "Apply database migrations and exit")
	skipMigrate = flag.Bool("skip-migrations", false, "Do not apply migrations on startup")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	obs := cfg.Observability
	logger := observability.NewLogger(obs.LogLevel, obs.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if path := os.Getenv(config.EnvConfigFile); path != "" {
		go func() {
			if err := config.WatchLogLevel(ctx, path, logger); err != nil {
				logger.WithError(err).Warn("Log level hot reload disabled")
			}
		}()
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if obs.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        obs.OTelEnabled,
		Endpoint:       obs.OTelEndpoint,
		ServiceName:    obs.OTelServiceName,
		ServiceVersion: obs.OTelServiceVersion,
		Insecure:       obs.OTelInsecure,
		SampleRatio:    obs.OTelSampleRatio,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}

	db, dialect, err := postgres.Open(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	if !*skipMigrate {
		if err := postgres.RunMigrations(ctx, db, dialect, logger); err != nil {
			logger.WithError(err).Fatal("Failed to run migrations")
		}
	}
	if *migrateOnly {
		logger.Info("Migrations applied")
		db.Close()
		return
	}

	storeOpts := []postgres.Option{
		postgres.WithLogger(logger),
		postgres.WithTxAttempts(cfg.Storage.TxAttempts),
	}
	if metrics != nil {
		storeOpts = append(storeOpts, postgres.WithFaultHook(func(op string, f storage.Fault) {
			metrics.ObserveStoreFault(op, f.String())
		}))
	}
	store := postgres.New(db, dialect, storeOpts...)

	otelMetrics, err := observability.NewOTelMetrics(db.Stats)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create OpenTelemetry instruments")
	}

	var redisClient *redis.Client
	if cfg.Cache.Backend == config.BackendRedis || (cfg.RateLimit.Enabled && cfg.RateLimit.Backend == config.BackendRedis) {
		redisClient, err = statscache.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
	}

	var backend statscache.Backend
	if cfg.Cache.Backend == config.BackendRedis {
		backend = statscache.NewRedisBackend(redisClient)
	} else {
		backend = statscache.NewMemoryBackend(cfg.Cache.MaxEntries)
	}
	stats := statscache.New(backend, logger)
	if metrics != nil {
		stats.SetObserver(metrics.ObserveCacheEvent)
	}

	var objects objectstore.Store = objectstore.Disabled{}
	if cfg.ObjectStore.Enabled {
		s3Store, err := objectstore.NewS3(ctx, cfg.ObjectStore.S3)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize object storage")
		}
		objects = s3Store
	}
	objects = objectstore.Instrument(objects, otelMetrics.RecordObjectOperation)

	sessions, err := session.NewManager(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.TTL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create session manager")
	}

	var (
		engineOpts   []policy.Option
		dispatchOpts []notify.Option
	)
	if metrics != nil {
		engineOpts = append(engineOpts, policy.WithObserver(func(action policy.Action, d policy.Decision) {
			metrics.ObservePolicyDecision(string(action), d.Allowed, string(d.Reason))
		}))
		dispatchOpts = append(dispatchOpts, notify.WithObserver(metrics.ObserveNotification))
	}
	engine := policy.NewEngine(engineOpts...)
	dispatcher := notify.NewDispatcher(store, logger, dispatchOpts...)

	machine := review.NewMachine(store, engine, logger)
	if metrics != nil {
		machine.SetObserver(func(from, to domain.Status) {
			metrics.ObserveTransition(string(from), string(to))
		})
	}

	projectOpts := []projects.Option{
		projects.WithObjectStore(objects),
		projects.WithStatsCache(stats),
	}
	if cfg.Mail.Receipts {
		projectOpts = append(projectOpts, projects.WithReceipts(notify.NewLogMailer(logger)))
	}

	services := api.Services{
		Auth:          auth.NewService(store, sessions, logger, auth.WithAuditLogger(auth.NewAuditLogger(logger))),
		Sessions:      sessions,
		Users:         store,
		Projects:      projects.NewService(store, engine, dispatcher, logger, projectOpts...),
		Review:        machine,
		Notifications: dispatcher,
		Orgs:          orgs.NewService(store, engine, logger),
	}

	health := observability.NewHealthChecker(db, redisClient, obs.OTelServiceVersion)
	if cfg.ObjectStore.Enabled {
		health.AddCheck("object_store", objects.HealthCheck)
	}

	serverOpts := []api.Option{
		api.WithHealth(health),
		api.WithTracing(obs.OTelEnabled),
	}
	if metrics != nil {
		serverOpts = append(serverOpts, api.WithMetrics(metrics, registry))
	}
	if cfg.RateLimit.Enabled {
		rl := middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
			MaxKeys:           middleware.DefaultRateLimitConfig().MaxKeys,
		}
		var limiter middleware.Limiter
		if cfg.RateLimit.Backend == config.BackendRedis {
			limiter = middleware.NewRedisLimiter(redisClient, rl, "")
		} else {
			limiter = middleware.NewMemoryLimiter(rl)
		}
		serverOpts = append(serverOpts, api.WithLoginLimiter(limiter))
	}

	handler := api.NewServer(api.Config{
		MaxUploadSize: cfg.Server.MaxUploadSize,
		TrustProxy:    cfg.Server.TrustProxy,
		CookieName:    cfg.Session.CookieName,
		CookieSecure:  cfg.Session.CookieSecure,
	}, services, logger, serverOpts...)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, srv, cfg.Server.ShutdownTimeout)
	shutdown.Register("otel metrics", func(context.Context) error { return otelMetrics.Close() })
	shutdown.Register("stats cache", func(context.Context) error { return stats.Close() })
	if redisClient != nil && cfg.Cache.Backend != config.BackendRedis {
		// the redis backend closes the client itself
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("database", func(context.Context) error { return store.Close() })
	shutdown.Register("otel", func(ctx context.Context) error { return observability.ShutdownOTel(ctx, providers, logger) })

	if metrics != nil {
		go reportDBStats(ctx, db.Stats, metrics)
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"driver":  string(dialect),
			"cache":   cfg.Cache.Backend,
			"uploads": cfg.ObjectStore.Enabled,
		}).Info("Starting pitchdesk server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server failed")
			stop()
		}
	}()

	if err := shutdown.Wait(ctx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}

func reportDBStats(ctx context.Context, stats func() sql.DBStats, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBStats(stats())
		}
	}
}
