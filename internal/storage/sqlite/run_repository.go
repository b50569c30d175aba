package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/comic_downloader/internal/storage"
)

// RunRepository implements storage.RunReadRepository and
// storage.RunWriteRepository on top of SQLite.
type RunRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db, now: time.Now}
}

// StartRun inserts a running entry and returns its generated id.
func (r *RunRepository) StartRun(ctx context.Context, galleryID, mode string) (string, error) {
	id := uuid.NewString()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, gallery_id, mode, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, galleryID, mode, storage.RunStatusRunning, r.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", err
	}

	return id, nil
}

func (r *RunRepository) RecordChapter(ctx context.Context, runID string, rec storage.ChapterRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chapter_results (run_id, title, images, success, failure, skipped, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Title, rec.Images, rec.Success, rec.Failure, rec.Skipped, nullString(rec.Error),
	)

	return err
}

// FinishRun stores the final totals and status of a run.
func (r *RunRepository) FinishRun(ctx context.Context, runID string, summary storage.RunSummary) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, chapters = ?, success = ?, failure = ?, skipped = ?, error = ? WHERE id = ?`,
		summary.Status, r.now().UTC().Format(time.RFC3339), summary.Chapters,
		summary.Success, summary.Failure, summary.Skipped, nullString(summary.Error), runID,
	)

	return err
}

// ListRuns returns the most recent runs first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT
			id,
			gallery_id,
			mode,
			status,
			started_at,
			finished_at,
			chapters,
			success,
			failure,
			skipped,
			error
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []storage.RunRecord

	for rows.Next() {
		var (
			record     storage.RunRecord
			finishedAt sql.NullString
			runErr     sql.NullString
		)

		err := rows.Scan(
			&record.ID, &record.GalleryID, &record.Mode, &record.Status, &record.StartedAt, &finishedAt,
			&record.Chapters, &record.Success, &record.Failure, &record.Skipped, &runErr,
		)
		if err != nil {
			return nil, err
		}

		record.FinishedAt = finishedAt.String
		record.Error = runErr.String

		runs = append(runs, record)
	}

	return runs, rows.Err()
}

// GetChapters returns the chapter outcomes of a run in the order they were recorded.
func (r *RunRepository) GetChapters(ctx context.Context, runID string) ([]storage.ChapterRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT title, images, success, failure, skipped, error FROM chapter_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []storage.ChapterRecord

	for rows.Next() {
		var (
			record storage.ChapterRecord
			recErr sql.NullString
		)

		if err := rows.Scan(&record.Title, &record.Images, &record.Success, &record.Failure, &record.Skipped, &recErr); err != nil {
			return nil, err
		}

		record.Error = recErr.String

		chapters = append(chapters, record)
	}

	return chapters, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
