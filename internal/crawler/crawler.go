// Package crawler mirrors one gallery: it discovers chapters and their images
// from the site and hands them to the downloader.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/comic_downloader/internal/downloader"
	"github.com/italolelis/comic_downloader/internal/fetch"
	"github.com/italolelis/comic_downloader/internal/gallery"
	"github.com/italolelis/comic_downloader/internal/logctx"
	"github.com/italolelis/comic_downloader/internal/manifest"
	"github.com/italolelis/comic_downloader/internal/notifier"
	"github.com/italolelis/comic_downloader/internal/storage"
	"github.com/italolelis/comic_downloader/internal/telemetry"
)

// ChapterFailure is a chapter whose page could not be fetched or parsed. It
// contributes no images to the run.
type ChapterFailure struct {
	Chapter manifest.Chapter
	Err     error
}

// Discovery is everything found on the site for one gallery.
type Discovery struct {
	Units  []downloader.Unit
	Failed []ChapterFailure
}

// Images returns the number of images across all discovered units.
func (d Discovery) Images() int {
	n := 0
	for _, u := range d.Units {
		n += len(u.Images)
	}

	return n
}

// Report summarizes a finished run.
type Report struct {
	RunID          string
	GalleryID      gallery.ID
	Mode           Mode
	Chapters       []downloader.ChapterResult
	FailedChapters []ChapterFailure
	Totals         downloader.Totals
	Duration       time.Duration
}

// Summary is the completion line of a run.
func (r Report) Summary() string {
	return fmt.Sprintf("%s has completed! %d successes, %d failures", r.GalleryID, r.Totals.Success, r.Totals.Failure)
}

type Crawler struct {
	resolver  *gallery.Resolver
	pages     fetch.Fetcher
	images    fetch.Fetcher
	store     *storage.Index
	history   storage.RunWriteRepository
	notifier  notifier.Notifier
	telemetry *telemetry.Telemetry
}

type Option func(*Crawler)

// WithHistory records every run in the given journal.
func WithHistory(repo storage.RunWriteRepository) Option {
	return func(c *Crawler) {
		c.history = repo
	}
}

// WithNotifier sends the run summary once a run completes.
func WithNotifier(n notifier.Notifier) Option {
	return func(c *Crawler) {
		c.notifier = n
	}
}

func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(c *Crawler) {
		c.telemetry = tel
	}
}

func New(resolver *gallery.Resolver, fetcher fetch.Fetcher, store *storage.Index, opts ...Option) *Crawler {
	c := &Crawler{
		resolver: resolver,
		store:    store,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.pages = fetch.NewInstrumentedFetcher(fetcher, c.telemetry, "page")
	c.images = fetch.NewInstrumentedFetcher(fetcher, c.telemetry, "image")

	return c
}

// Discover reads the chapter index of a gallery and the image manifest of
// every chapter. An index that cannot be fetched or parsed is returned as an
// error. A chapter that cannot be fetched or parsed is logged once and listed
// in Discovery.Failed.
func (c *Crawler) Discover(ctx context.Context, id gallery.ID) (Discovery, error) {
	logger := logctx.LoggerFromContext(ctx)

	indexURL := c.resolver.ChapterIndexURL(id)

	content, err := c.fetchContent(ctx, indexURL)
	if err != nil {
		return Discovery{}, fmt.Errorf("failed to fetch chapter index %s: %w", indexURL, err)
	}

	chapters, err := manifest.ExtractChapterList(content)
	if err != nil {
		return Discovery{}, fmt.Errorf("failed to read chapter index %s: %w", indexURL, err)
	}

	original := make([]string, len(chapters))
	for i, chapter := range chapters {
		original[i] = chapter.Title
	}

	logger.DebugContext(ctx, "chapter index read", "url", indexURL, "chapters", len(chapters))

	chapters = uniqueDirectories(chapters)
	for i, chapter := range chapters {
		if chapter.Title != original[i] {
			logger.WarnContext(ctx, "chapter directory name already taken, storing under a suffixed title",
				"chapter", original[i], "stored_as", chapter.Title)
		}
	}

	var discovery Discovery

	for _, chapter := range chapters {
		if ctx.Err() != nil {
			return Discovery{}, ctx.Err()
		}

		images, err := c.discoverChapter(ctx, chapter)
		if err != nil {
			logger.ErrorContext(ctx, fmt.Sprintf("%s: chapter not available", chapter.Title),
				"chapter", chapter.Title, "source_ref", chapter.SourceRef, "err", err)

			discovery.Failed = append(discovery.Failed, ChapterFailure{Chapter: chapter, Err: err})

			continue
		}

		discovery.Units = append(discovery.Units, downloader.Unit{Chapter: chapter, Images: images})
	}

	return discovery, nil
}

// uniqueDirectories gives every chapter its own storage directory. A title
// whose sanitized form is already taken by an earlier chapter gets " (2)",
// " (3)" and so on appended. Names are reserved for every listed chapter, not
// only the ones that turn out to be available, so they stay stable between runs.
func uniqueDirectories(chapters manifest.ChapterList) manifest.ChapterList {
	taken := make(map[string]bool, len(chapters))
	out := make(manifest.ChapterList, 0, len(chapters))

	for _, chapter := range chapters {
		title := chapter.Title
		for n := 2; taken[storage.SanitizeSegment(title)]; n++ {
			title = fmt.Sprintf("%s (%d)", chapter.Title, n)
		}

		taken[storage.SanitizeSegment(title)] = true
		out = append(out, manifest.Chapter{Title: title, SourceRef: chapter.SourceRef})
	}

	return out
}

func (c *Crawler) discoverChapter(ctx context.Context, chapter manifest.Chapter) ([]gallery.Image, error) {
	content, err := c.fetchContent(ctx, c.resolver.ChapterURL(chapter.SourceRef))
	if err != nil {
		return nil, err
	}

	m, err := manifest.ExtractImageManifest(content)
	if err != nil {
		return nil, err
	}

	return c.resolver.Images(m), nil
}

func (c *Crawler) fetchContent(ctx context.Context, url string) (manifest.Content, error) {
	body, err := c.pages.Fetch(ctx, url)
	if err != nil {
		return manifest.Content{}, err
	}

	return manifest.FromBytes(body)
}

// Run mirrors a gallery. The returned error is non-nil only when the chapter
// index could not be read or ctx was canceled; image and chapter failures are
// counted in the report.
func (c *Crawler) Run(ctx context.Context, id gallery.ID, mode Mode) (Report, error) {
	ctx, logger := logctx.With(ctx, "gallery", string(id))

	report := Report{GalleryID: id, Mode: mode}
	start := time.Now()

	report.RunID = c.startRun(ctx, id, mode)

	err := c.telemetry.InstrumentRun(ctx, mode.String(), func(ctx context.Context) error {
		discovery, err := c.Discover(ctx, id)
		if err != nil {
			return err
		}

		report.FailedChapters = discovery.Failed

		logger.InfoContext(ctx, "chapters discovered",
			"chapters", len(discovery.Units),
			"failed_chapters", len(discovery.Failed),
			"images", discovery.Images(),
			"mode", mode.String(),
		)

		d := downloader.NewDownloader(id, c.store, c.images, c.telemetry)

		if mode.Parallel {
			report.Chapters = d.RunParallel(ctx, discovery.Units, mode.Workers)
		} else {
			report.Chapters = d.RunSequential(ctx, discovery.Units)
		}

		report.Totals = downloader.Summarize(report.Chapters)

		return ctx.Err()
	})

	report.Duration = time.Since(start)

	if err != nil {
		logger.ErrorContext(ctx, "run failed", "err", err, "duration", report.Duration.String())
		c.telemetry.RecordSystemError(ctx, "crawler", "run")
		c.finishRun(ctx, report, err)

		return report, err
	}

	logger.InfoContext(ctx, report.Summary(),
		"skipped", report.Totals.Skipped,
		"failed_chapters", len(report.FailedChapters),
		"duration", report.Duration.Round(time.Millisecond).String(),
	)

	c.finishRun(ctx, report, nil)
	c.notify(ctx, report)

	return report, nil
}

func (c *Crawler) startRun(ctx context.Context, id gallery.ID, mode Mode) string {
	if c.history == nil {
		return ""
	}

	runID, err := c.history.StartRun(ctx, string(id), mode.String())
	if err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to record run start", "err", err)

		return ""
	}

	return runID
}

// finishRun writes the chapter outcomes and totals to the journal. It uses a
// context detached from cancellation so an interrupted run is still recorded.
func (c *Crawler) finishRun(ctx context.Context, report Report, runErr error) {
	if c.history == nil || report.RunID == "" {
		return
	}

	logger := logctx.LoggerFromContext(ctx)
	ctx = context.WithoutCancel(ctx)

	var errs []error

	for _, ch := range report.Chapters {
		rec := storage.ChapterRecord{
			Title:   ch.Chapter,
			Images:  len(ch.Images),
			Success: ch.Totals.Success,
			Failure: ch.Totals.Failure,
			Skipped: ch.Totals.Skipped,
		}
		if ch.Err != nil {
			rec.Error = ch.Err.Error()
		}

		errs = append(errs, c.history.RecordChapter(ctx, report.RunID, rec))
	}

	for _, f := range report.FailedChapters {
		errs = append(errs, c.history.RecordChapter(ctx, report.RunID, storage.ChapterRecord{
			Title: f.Chapter.Title,
			Error: f.Err.Error(),
		}))
	}

	summary := storage.RunSummary{
		Status:   storage.RunStatusCompleted,
		Chapters: len(report.Chapters) + len(report.FailedChapters),
		Success:  report.Totals.Success,
		Failure:  report.Totals.Failure,
		Skipped:  report.Totals.Skipped,
	}

	if runErr != nil {
		summary.Status = storage.RunStatusFailed
		summary.Error = runErr.Error()
	}

	errs = append(errs, c.history.FinishRun(ctx, report.RunID, summary))

	if err := errors.Join(errs...); err != nil {
		logger.WarnContext(ctx, "failed to record run", "run_id", report.RunID, "err", err)
	}
}

func (c *Crawler) notify(ctx context.Context, report Report) {
	if c.notifier == nil {
		return
	}

	icon := "✅"
	if report.Totals.Failure > 0 || len(report.FailedChapters) > 0 {
		icon = "⚠️"
	}

	if err := c.notifier.Notify(ctx, icon+" "+report.Summary()); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to send notification", "err", err)
	}
}
