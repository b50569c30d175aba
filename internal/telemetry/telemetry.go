package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Image outcomes as recorded on comic_images_total.
const (
	OutcomeSaved   = "saved"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Telemetry holds all telemetry instruments and providers. A zero Telemetry
// (telemetry disabled) and a nil *Telemetry are both valid and record nothing.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	registry       *prom.Registry

	// Pipeline metrics
	imagesTotal    metric.Int64Counter
	chaptersTotal  metric.Int64Counter
	chaptersActive metric.Int64UpDownCounter
	fetchDuration  metric.Float64Histogram
	runsTotal      metric.Int64Counter
	runDuration    metric.Float64Histogram

	dbOperationsTotal   metric.Int64Counter
	dbOperationDuration metric.Float64Histogram

	// System health
	systemErrors metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint, when set, additionally pushes metrics over OTLP/gRPC.
	OTLPEndpoint string
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	// A dedicated registry keeps several instances (tests, commands) from
	// colliding on the global Prometheus registerer.
	registry := prom.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		registry:       registry,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime metrics: %w", err)
	}

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer("comic_downloader")
	}

	return t.tracer
}

// Meter returns the OpenTelemetry meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// TracerProvider returns the provider spans are created from, or nil when disabled.
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t == nil || t.tracerProvider == nil {
		return nil
	}

	return t.tracerProvider
}

// RecordImage counts one image by outcome.
func (t *Telemetry) RecordImage(ctx context.Context, outcome string) {
	if t == nil || t.imagesTotal == nil {
		return
	}

	t.imagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordFetch records how long a page or image fetch took.
func (t *Telemetry) RecordFetch(ctx context.Context, kind, status string, duration time.Duration) {
	if t == nil || t.fetchDuration == nil {
		return
	}

	t.fetchDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordChapter counts one finished chapter.
func (t *Telemetry) RecordChapter(ctx context.Context, status string) {
	if t == nil || t.chaptersTotal == nil {
		return
	}

	t.chaptersTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// IncrementActiveChapters increments the chapters currently being downloaded.
func (t *Telemetry) IncrementActiveChapters(ctx context.Context) {
	if t == nil || t.chaptersActive == nil {
		return
	}

	t.chaptersActive.Add(ctx, 1)
}

// DecrementActiveChapters decrements the chapters currently being downloaded.
func (t *Telemetry) DecrementActiveChapters(ctx context.Context) {
	if t == nil || t.chaptersActive == nil {
		return
	}

	t.chaptersActive.Add(ctx, -1)
}

// RecordRun records a finished crawl.
func (t *Telemetry) RecordRun(ctx context.Context, mode, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	)

	if t.runsTotal != nil {
		t.runsTotal.Add(ctx, 1, attrs)
	}

	if t.runDuration != nil {
		t.runDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordDBOperation records database operation metrics.
func (t *Telemetry) RecordDBOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	if t.dbOperationsTotal != nil {
		t.dbOperationsTotal.Add(ctx, 1, attrs)
	}

	if t.dbOperationDuration != nil {
		t.dbOperationDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(ctx context.Context, component, errorType string) {
	if t == nil || t.systemErrors == nil {
		return
	}

	t.systemErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("error_type", errorType),
		),
	)
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.registry == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter and tracer providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}

	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	if err := t.initializePipelineMetrics(); err != nil {
		return err
	}

	if err := t.initializeDBMetrics(); err != nil {
		return err
	}

	return t.initializeSystemMetrics()
}

func (t *Telemetry) initializePipelineMetrics() error {
	var err error

	t.imagesTotal, err = t.meter.Int64Counter(
		"comic_images",
		metric.WithDescription("Images processed, by outcome"),
		metric.WithUnit("{image}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create comic_images counter: %w", err)
	}

	t.chaptersTotal, err = t.meter.Int64Counter(
		"comic_chapters",
		metric.WithDescription("Chapters processed, by status"),
		metric.WithUnit("{chapter}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create comic_chapters counter: %w", err)
	}

	t.chaptersActive, err = t.meter.Int64UpDownCounter(
		"comic_chapters_active",
		metric.WithDescription("Chapters currently being downloaded"),
		metric.WithUnit("{chapter}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create comic_chapters_active counter: %w", err)
	}

	t.fetchDuration, err = t.meter.Float64Histogram(
		"comic_fetch_duration",
		metric.WithDescription("Duration of page and image fetches"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create comic_fetch_duration histogram: %w", err)
	}

	t.runsTotal, err = t.meter.Int64Counter(
		"comic_runs",
		metric.WithDescription("Gallery crawls, by mode and status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create comic_runs counter: %w", err)
	}

	t.runDuration, err = t.meter.Float64Histogram(
		"comic_run_duration",
		metric.WithDescription("Duration of a gallery crawl"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create comic_run_duration histogram: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeDBMetrics() error {
	var err error

	t.dbOperationsTotal, err = t.meter.Int64Counter(
		"db_operations",
		metric.WithDescription("Total number of database operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operations counter: %w", err)
	}

	t.dbOperationDuration, err = t.meter.Float64Histogram(
		"db_operation_duration",
		metric.WithDescription("Database operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operation_duration histogram: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeSystemMetrics() error {
	var err error

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	return nil
}
