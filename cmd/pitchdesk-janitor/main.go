package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pitchdesk/pkg/config"
	"github.com/platinummonkey/pitchdesk/pkg/observability"
	"github.com/platinummonkey/pitchdesk/pkg/storage/postgres"
)

var (
	runOnce     = flag.Bool("run-once", false, "Purge once and exit")
	schedule    = flag.String("schedule", "", "Cron schedule for the purge (default: janitor.schedule from config)")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address when set")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := postgres.Open(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	store := postgres.New(db, dialect, postgres.WithLogger(logger))
	defer store.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	purge := func() error {
		cutoff := time.Now().UTC().Add(-cfg.Janitor.Retention)
		n, err := store.PurgeReadNotifications(ctx, cutoff)
		if err != nil {
			return err
		}
		metrics.NotificationsPurgedTotal.Add(float64(n))
		logger.WithFields(logrus.Fields{
			"purged": n,
			"cutoff": cutoff.Format(time.RFC3339),
		}).Info("Purged read notifications")
		return nil
	}

	if *runOnce {
		if err := purge(); err != nil {
			logger.WithError(err).Fatal("Purge failed")
		}
		return
	}

	spec := cfg.Janitor.Schedule
	if *schedule != "" {
		spec = *schedule
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := purge(); err != nil {
			logger.WithError(err).Error("Purge failed")
		}
	}); err != nil {
		logger.WithError(err).Fatal("Failed to schedule purge")
	}

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: observability.MetricsHandler(registry), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
		defer srv.Close()
	}

	c.Start()
	logger.WithFields(logrus.Fields{
		"schedule":  spec,
		"retention": cfg.Janitor.Retention.String(),
	}).Info("pitchdesk janitor started")

	<-ctx.Done()
	logger.Info("Shutting down janitor")
	<-c.Stop().Done()
}
