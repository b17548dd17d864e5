package observability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds the OpenTelemetry instruments exported over OTLP. HTTP
// server metrics come from otelhttp; these cover what it cannot see.
type OTelMetrics struct {
	objectOps      metric.Int64Counter
	objectDuration metric.Float64Histogram

	dbConnectionsOpen metric.Int64ObservableGauge
	dbConnectionsIdle metric.Int64ObservableGauge
	dbConnectionsMax  metric.Int64ObservableGauge
	registration      metric.Registration
}

// NewOTelMetrics creates the instruments on the global meter provider. When
// stats is non-nil the connection pool gauges are observed on every collection.
func NewOTelMetrics(stats func() sql.DBStats) (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/pitchdesk")

	m := &OTelMetrics{}
	var err error

	m.objectOps, err = meter.Int64Counter(
		"objectstore.operations",
		metric.WithDescription("Object store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create objectstore.operations counter: %w", err)
	}

	m.objectDuration, err = meter.Float64Histogram(
		"objectstore.operation.duration",
		metric.WithDescription("Object store operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create objectstore.operation.duration histogram: %w", err)
	}

	if stats == nil {
		return m, nil
	}

	m.dbConnectionsOpen, err = meter.Int64ObservableGauge(
		"db.connections.open",
		metric.WithDescription("Open database connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create db.connections.open gauge: %w", err)
	}

	m.dbConnectionsIdle, err = meter.Int64ObservableGauge(
		"db.connections.idle",
		metric.WithDescription("Idle database connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create db.connections.idle gauge: %w", err)
	}

	m.dbConnectionsMax, err = meter.Int64ObservableGauge(
		"db.connections.max",
		metric.WithDescription("Maximum open database connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create db.connections.max gauge: %w", err)
	}

	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(m.dbConnectionsOpen, int64(s.OpenConnections))
		o.ObserveInt64(m.dbConnectionsIdle, int64(s.Idle))
		o.ObserveInt64(m.dbConnectionsMax, int64(s.MaxOpenConnections))
		return nil
	}, m.dbConnectionsOpen, m.dbConnectionsIdle, m.dbConnectionsMax)
	if err != nil {
		return nil, fmt.Errorf("failed to register db pool callback: %w", err)
	}

	return m, nil
}

// RecordObjectOperation records one object store call
func (m *OTelMetrics) RecordObjectOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("objectstore.operation", operation),
		attribute.Bool("error", err != nil),
	)
	m.objectOps.Add(ctx, 1, attrs)
	m.objectDuration.Record(ctx, duration.Seconds(), attrs)
}

// Close stops observing the connection pool
func (m *OTelMetrics) Close() error {
	if m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
