package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/dirtytables/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter initializes the OpenTelemetry meter provider and installs it globally.
func InitMeter(ctx context.Context, config MeterConfig, log *logger.Logger) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	if log != nil {
		log.Debug("meter initialized", logger.Fields(
			"endpoint", config.Endpoint,
			"interval", config.Interval.String(),
		))
	}
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the instruments recorded around dirty-table cleanup.
// A nil *Metrics records nothing.
type Metrics struct {
	truncations     metric.Int64Counter
	tablesTruncated metric.Int64Counter
	truncateTime    metric.Float64Histogram
	restarts        metric.Int64Counter
	errors          metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	truncations, err := meter.Int64Counter("dirtytables.truncations",
		metric.WithDescription("Number of dirty-table truncation runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dirtytables.truncations counter: %w", err)
	}

	tablesTruncated, err := meter.Int64Counter("dirtytables.tables_truncated",
		metric.WithDescription("Number of dirty tables emptied"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dirtytables.tables_truncated counter: %w", err)
	}

	truncateTime, err := meter.Float64Histogram("dirtytables.truncate.duration",
		metric.WithDescription("Duration of truncation runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dirtytables.truncate.duration histogram: %w", err)
	}

	restarts, err := meter.Int64Counter("dirtytables.restarts",
		metric.WithDescription("Tracker restarts, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dirtytables.restarts counter: %w", err)
	}

	errorTotal, err := meter.Int64Counter("dirtytables.errors",
		metric.WithDescription("Failed operations, by error code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dirtytables.errors counter: %w", err)
	}

	return &Metrics{
		truncations:     truncations,
		tablesTruncated: tablesTruncated,
		truncateTime:    truncateTime,
		restarts:        restarts,
		errors:          errorTotal,
	}, nil
}

// RecordTruncation records one truncation run on a connection.
func (m *Metrics) RecordTruncation(ctx context.Context, connection string, tables int, duration time.Duration, status string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrConnection, connection),
		attribute.String(AttrStatus, status),
	)
	m.truncations.Add(ctx, 1, attrs)
	m.tablesTruncated.Add(ctx, int64(tables), metric.WithAttributes(attribute.String(AttrConnection, connection)))
	m.truncateTime.Record(ctx, duration.Seconds(), attrs)
}

// RecordRestart records a tracker restart.
func (m *Metrics) RecordRestart(ctx context.Context, connection, reason string) {
	if m == nil {
		return
	}
	m.restarts.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrConnection, connection),
		attribute.String("reason", reason),
	))
}

// RecordError records a failed operation by error code.
func (m *Metrics) RecordError(ctx context.Context, connection, operation, code string) {
	if m == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrConnection, connection),
		attribute.String("operation", operation),
		attribute.String(AttrErrorCode, code),
	))
}
