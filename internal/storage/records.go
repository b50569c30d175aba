package storage

import "context"

// Run statuses stored in the run journal.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRecord is one crawl of a gallery as kept by the run journal. The journal
// is for reporting only and is never consulted to decide what to download.
type RunRecord struct {
	ID         string
	GalleryID  string
	Mode       string
	Status     string
	StartedAt  string
	FinishedAt string
	Chapters   int
	Success    int
	Failure    int
	Skipped    int
	Error      string
}

// ChapterRecord is the outcome of one chapter within a run.
type ChapterRecord struct {
	Title   string
	Images  int
	Success int
	Failure int
	Skipped int
	Error   string
}

// RunSummary is what a finished run reports back to the journal.
type RunSummary struct {
	Status   string
	Chapters int
	Success  int
	Failure  int
	Skipped  int
	Error    string
}

type RunReadRepository interface {
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	GetChapters(ctx context.Context, runID string) ([]ChapterRecord, error)
}

type RunWriteRepository interface {
	StartRun(ctx context.Context, galleryID, mode string) (string, error)
	RecordChapter(ctx context.Context, runID string, rec ChapterRecord) error
	FinishRun(ctx context.Context, runID string, summary RunSummary) error
}
