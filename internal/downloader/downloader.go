// Package downloader saves the images of chapter units into storage, one
// chapter per worker, skipping every image that is already on disk.
package downloader

import (
	"cmp"
	"context"
	"fmt"
	"runtime/debug"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/comic_downloader/internal/fetch"
	"github.com/italolelis/comic_downloader/internal/gallery"
	"github.com/italolelis/comic_downloader/internal/logctx"
	"github.com/italolelis/comic_downloader/internal/manifest"
	"github.com/italolelis/comic_downloader/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the worker cap of parallel mode when none is given.
const DefaultWorkers = 10

// Store is the part of storage.Index the downloader writes through.
type Store interface {
	EnsureChapterDirectory(galleryID, chapterTitle string) (string, error)
	ArtifactPath(galleryID, chapterTitle string, ordinal int) (path string, exists bool, err error)
	SaveArtifact(data []byte, path string) error
}

// Unit is one chapter together with its resolved images. A worker owns a
// unit from directory creation to its last image.
type Unit struct {
	Chapter manifest.Chapter
	Images  []gallery.Image
}

type Outcome int

const (
	Saved Outcome = iota + 1
	SkippedExisting
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Saved:
		return telemetry.OutcomeSaved
	case SkippedExisting:
		return telemetry.OutcomeSkipped
	case Failed:
		return telemetry.OutcomeFailed
	default:
		return "unknown"
	}
}

type ImageResult struct {
	Ordinal int
	Outcome Outcome
	Path    string
	Err     error
}

// Totals counts image outcomes. Skipped images count as neither success nor failure.
type Totals struct {
	Success int
	Failure int
	Skipped int
}

func (t *Totals) Add(other Totals) {
	t.Success += other.Success
	t.Failure += other.Failure
	t.Skipped += other.Skipped
}

func (t *Totals) record(o Outcome) {
	switch o {
	case Saved:
		t.Success++
	case SkippedExisting:
		t.Skipped++
	case Failed:
		t.Failure++
	}
}

// ChapterResult is what one unit produced. Err is set when the chapter could
// not be processed to its end: its directory could not be created, the
// context was canceled, or the worker panicked.
type ChapterResult struct {
	Chapter string
	Images  []ImageResult
	Totals  Totals
	Err     error
}

// Summarize adds up the totals of every chapter.
func Summarize(results []ChapterResult) Totals {
	var totals Totals
	for _, r := range results {
		totals.Add(r.Totals)
	}

	return totals
}

type Downloader struct {
	galleryID gallery.ID
	store     Store
	fetcher   fetch.Fetcher
	telemetry *telemetry.Telemetry
}

func NewDownloader(galleryID gallery.ID, store Store, fetcher fetch.Fetcher, tel *telemetry.Telemetry) *Downloader {
	return &Downloader{
		galleryID: galleryID,
		store:     store,
		fetcher:   fetcher,
		telemetry: tel,
	}
}

// RunSequential processes units one after the other in the given order.
func (d *Downloader) RunSequential(ctx context.Context, units []Unit) []ChapterResult {
	results := make([]ChapterResult, 0, len(units))

	for _, unit := range units {
		if ctx.Err() != nil {
			break
		}

		results = append(results, d.DownloadChapter(ctx, unit))
	}

	return results
}

// RunParallel processes units on at most workers goroutines and returns once
// every unit is done. Results keep the order of units. A unit that fails, or
// panics, never stops the others.
func (d *Downloader) RunParallel(ctx context.Context, units []Unit, workers int) []ChapterResult {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	logger := logctx.LoggerFromContext(ctx)
	results := make([]ChapterResult, len(units))

	var g errgroup.Group

	g.SetLimit(workers)

	for i, unit := range units {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "chapter worker panicked",
						"chapter", unit.Chapter.Title,
						"panic", r,
						"stack", string(debug.Stack()))
					d.telemetry.RecordSystemError(ctx, "downloader", "panic")

					results[i] = ChapterResult{
						Chapter: unit.Chapter.Title,
						Err:     fmt.Errorf("chapter worker panicked: %v", r),
					}
				}
			}()

			results[i] = d.DownloadChapter(ctx, unit)

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// DownloadChapter ensures the chapter directory exists and then handles every
// image in ascending ordinal order. An image failure is logged and counted
// and the next ordinal is tried.
func (d *Downloader) DownloadChapter(ctx context.Context, unit Unit) ChapterResult {
	title := unit.Chapter.Title
	res := ChapterResult{Chapter: title}

	_ = d.telemetry.InstrumentChapter(ctx, func(ctx context.Context) error {
		ctx, logger := logctx.With(ctx, "chapter", title)

		if _, err := d.store.EnsureChapterDirectory(string(d.galleryID), title); err != nil {
			logger.ErrorContext(ctx, fmt.Sprintf("%s: chapter directory not created", title), "err", err)

			for _, img := range unit.Images {
				res.Images = append(res.Images, ImageResult{Ordinal: img.Ordinal, Outcome: Failed, Err: err})
				res.Totals.record(Failed)
				d.telemetry.RecordImage(ctx, telemetry.OutcomeFailed)
			}

			res.Err = err

			return err
		}

		images := slices.SortedStableFunc(slices.Values(unit.Images), func(a, b gallery.Image) int {
			return cmp.Compare(a.Ordinal, b.Ordinal)
		})

		for i, img := range images {
			if err := ctx.Err(); err != nil {
				logger.WarnContext(ctx, "chapter interrupted", "remaining", len(images)-i, "err", err)
				res.Err = err

				break
			}

			r, ok := d.downloadImage(ctx, title, img)
			if !ok {
				logger.WarnContext(ctx, "chapter interrupted", "remaining", len(images)-i, "err", r.Err)
				res.Err = r.Err

				break
			}

			res.Images = append(res.Images, r)
			res.Totals.record(r.Outcome)
			d.telemetry.RecordImage(ctx, r.Outcome.String())
		}

		logger.InfoContext(ctx, "chapter finished",
			"images", len(images),
			"saved", res.Totals.Success,
			"failed", res.Totals.Failure,
			"skipped", res.Totals.Skipped,
		)

		if res.Err != nil {
			return res.Err
		}

		if res.Totals.Failure > 0 {
			return fmt.Errorf("%d of %d pages failed", res.Totals.Failure, len(images))
		}

		return nil
	})

	return res
}

// downloadImage returns ok == false only when ctx was canceled while the
// image was being fetched. Such an image is neither saved nor failed.
func (d *Downloader) downloadImage(ctx context.Context, title string, img gallery.Image) (ImageResult, bool) {
	logger := logctx.LoggerFromContext(ctx)
	res := ImageResult{Ordinal: img.Ordinal}

	path, exists, err := d.store.ArtifactPath(string(d.galleryID), title, img.Ordinal)
	if err != nil {
		logger.ErrorContext(ctx, fmt.Sprintf("%s: page %d not saved", title, img.Ordinal), "ordinal", img.Ordinal, "err", err)

		res.Outcome, res.Err = Failed, err

		return res, true
	}

	res.Path = path

	if exists {
		logger.DebugContext(ctx, "page already downloaded", "ordinal", img.Ordinal, "path", path)

		res.Outcome = SkippedExisting

		return res, true
	}

	data, err := d.fetcher.Fetch(ctx, img.URL)
	if err != nil {
		if ctx.Err() != nil {
			res.Err = ctx.Err()

			return res, false
		}

		logger.ErrorContext(ctx, fmt.Sprintf("%s: page %d not found", title, img.Ordinal),
			"ordinal", img.Ordinal, "url", img.URL, "err", err)

		res.Outcome, res.Err = Failed, err

		return res, true
	}

	if err := d.store.SaveArtifact(data, path); err != nil {
		logger.ErrorContext(ctx, fmt.Sprintf("%s: page %d not saved", title, img.Ordinal), "ordinal", img.Ordinal, "err", err)

		res.Outcome, res.Err = Failed, err

		return res, true
	}

	logger.InfoContext(ctx, "page saved", "ordinal", img.Ordinal, "path", path, "size", humanize.Bytes(uint64(len(data))))

	res.Outcome = Saved

	return res, true
}
