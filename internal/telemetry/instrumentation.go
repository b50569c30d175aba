package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes must stay low cardinality. Chapter titles, image URLs,
// file paths and run ids belong in log lines, which carry the trace id.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", statusOf(err)),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.RecordDBOperation(ctx, operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentFetch instruments a single HTTP fetch. kind is "page" for index and
// chapter pages or "image".
func (t *Telemetry) InstrumentFetch(ctx context.Context, kind string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "fetch_"+kind, "fetch", fn)

	t.RecordFetch(ctx, kind, statusOf(err), time.Since(start))

	return err
}

// InstrumentChapter instruments the download of one chapter unit. The
// chapter is reported as an error when fn returns one.
func (t *Telemetry) InstrumentChapter(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	t.IncrementActiveChapters(ctx)
	defer t.DecrementActiveChapters(ctx)

	err := t.InstrumentOperation(ctx, "download_chapter", "downloader", fn)

	t.RecordChapter(ctx, statusOf(err))

	return err
}

// InstrumentRun instruments a whole gallery crawl.
func (t *Telemetry) InstrumentRun(ctx context.Context, mode string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "crawl", "crawler", func(ctx context.Context) error {
		ctx, span := t.Tracer().Start(ctx, "crawl_"+mode)
		defer span.End()

		span.SetAttributes(attribute.String("crawl.mode", mode))

		return fn(ctx)
	})

	t.RecordRun(ctx, mode, statusOf(err), time.Since(start))

	return err
}
