// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry export, health probes and shutdown coordination.
//
// # Logging
//
// The process logger is a logrus logger:
//
//	logger := observability.NewLogger("info", observability.FormatJSON, os.Stdout)
//
// Request handlers log through FromContext, which adds request_id, user_id
// and the active trace ids:
//
//	observability.FromContext(r.Context()).WithField("project_id", id).Info("Project reviewed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	engine := policy.NewEngine(policy.WithObserver(func(a policy.Action, d policy.Decision) {
//		metrics.ObservePolicyDecision(string(a), d.Allowed, string(d.Reason))
//	}))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	checker.AddCheck("objectstore", objects.HealthCheck)
//	observability.RegisterHealthRoutes(router, checker)
//
// /readyz fails only when the database does. Redis and optional checks
// degrade it.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "pitchdesk",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
