package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/comic_downloader/internal/storage"
	"github.com/italolelis/comic_downloader/internal/telemetry"
)

// InstrumentedRunRepository wraps RunRepository with telemetry.
type InstrumentedRunRepository struct {
	repo      *RunRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedRunRepository creates a new instrumented run repository.
func NewInstrumentedRunRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedRunRepository {
	return &InstrumentedRunRepository{
		repo:      NewRunRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedRunRepository) StartRun(ctx context.Context, galleryID, mode string) (string, error) {
	var id string

	err := r.telemetry.InstrumentDBOperation(ctx, "start_run", func(ctx context.Context) error {
		var err error

		id, err = r.repo.StartRun(ctx, galleryID, mode)

		return err
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

func (r *InstrumentedRunRepository) RecordChapter(ctx context.Context, runID string, rec storage.ChapterRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_chapter", func(ctx context.Context) error {
		return r.repo.RecordChapter(ctx, runID, rec)
	})
}

func (r *InstrumentedRunRepository) FinishRun(ctx context.Context, runID string, summary storage.RunSummary) error {
	return r.telemetry.InstrumentDBOperation(ctx, "finish_run", func(ctx context.Context) error {
		return r.repo.FinishRun(ctx, runID, summary)
	})
}

func (r *InstrumentedRunRepository) ListRuns(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	var result []storage.RunRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_runs", func(ctx context.Context) error {
		var err error

		result, err = r.repo.ListRuns(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedRunRepository) GetChapters(ctx context.Context, runID string) ([]storage.ChapterRecord, error) {
	var result []storage.ChapterRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_chapters", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetChapters(ctx, runID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
