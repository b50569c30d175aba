package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/italolelis/comic_downloader/internal/fetch"
	"github.com/italolelis/comic_downloader/internal/gallery"
	"github.com/italolelis/comic_downloader/internal/logctx"
	"github.com/italolelis/comic_downloader/internal/manifest"
	"github.com/italolelis/comic_downloader/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string][]byte
	calls    map[string]int
	delay    time.Duration
	panicOn  string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeFetcher(pages map[string][]byte) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if url == f.panicOn {
		panic("fetcher exploded")
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &fetch.TransportError{URL: url, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[url]++

	data, ok := f.pages[url]
	if !ok {
		return nil, &fetch.TransportError{URL: url, StatusCode: 404}
	}

	return data, nil
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for _, n := range f.calls {
		total += n
	}

	return total
}

func testContext(buf *bytes.Buffer) context.Context {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return logctx.WithLogger(context.Background(), logger)
}

func unit(title string, urls ...string) Unit {
	images := make([]gallery.Image, len(urls))
	for i, u := range urls {
		images[i] = gallery.Image{Ordinal: i + 1, URL: u}
	}

	return Unit{Chapter: manifest.Chapter{Title: title, SourceRef: "/" + title}, Images: images}
}

func TestDownloadChapter_SavesImagesInOrdinalOrder(t *testing.T) {
	var logs bytes.Buffer

	root := t.TempDir()
	fetcher := newFakeFetcher(map[string][]byte{
		"https://res/p1/1.jpg": []byte("one"),
		"https://res/p1/2.jpg": []byte("two"),
	})

	d := NewDownloader("g", storage.NewIndex(root), fetcher, nil)

	res := d.DownloadChapter(testContext(&logs), unit("Chapter 1", "https://res/p1/1.jpg", "https://res/p1/2.jpg"))

	require.NoError(t, res.Err)
	assert.Equal(t, "Chapter 1", res.Chapter)
	assert.Equal(t, Totals{Success: 2}, res.Totals)
	require.Len(t, res.Images, 2)
	assert.Equal(t, 1, res.Images[0].Ordinal)
	assert.Equal(t, Saved, res.Images[0].Outcome)

	data, err := os.ReadFile(filepath.Join(root, "g", "Chapter 1", "1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	data, err = os.ReadFile(filepath.Join(root, "g", "Chapter 1", "2.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestDownloadChapter_SortsUnorderedImages(t *testing.T) {
	var logs bytes.Buffer

	fetcher := newFakeFetcher(map[string][]byte{"a": []byte("a"), "b": []byte("b")})
	d := NewDownloader("g", storage.NewIndex(t.TempDir()), fetcher, nil)

	u := Unit{
		Chapter: manifest.Chapter{Title: "c"},
		Images:  []gallery.Image{{Ordinal: 2, URL: "b"}, {Ordinal: 1, URL: "a"}},
	}

	res := d.DownloadChapter(testContext(&logs), u)
	require.Len(t, res.Images, 2)
	assert.Equal(t, 1, res.Images[0].Ordinal)
	assert.Equal(t, 2, res.Images[1].Ordinal)
}

func TestDownloadChapter_FailureDoesNotAbortChapter(t *testing.T) {
	var logs bytes.Buffer

	root := t.TempDir()
	fetcher := newFakeFetcher(map[string][]byte{
		"u1": []byte("1"),
		"u3": []byte("3"),
	})

	d := NewDownloader("g", storage.NewIndex(root), fetcher, nil)

	res := d.DownloadChapter(testContext(&logs), unit("Chapter 1", "u1", "u2", "u3"))

	require.NoError(t, res.Err)
	assert.Equal(t, Totals{Success: 2, Failure: 1}, res.Totals)
	assert.Equal(t, Failed, res.Images[1].Outcome)
	assert.ErrorIs(t, res.Images[1].Err, fetch.ErrNotFound)

	assert.FileExists(t, filepath.Join(root, "g", "Chapter 1", "3.jpg"))
	assert.NoFileExists(t, filepath.Join(root, "g", "Chapter 1", "2.jpg"))

	assert.Contains(t, logs.String(), `msg="Chapter 1: page 2 not found"`)
	assert.Equal(t, 1, strings.Count(logs.String(), "not found"))
}

func TestDownloadChapter_SkipsExistingWithoutFetching(t *testing.T) {
	var logs bytes.Buffer

	root := t.TempDir()
	idx := storage.NewIndex(root)

	dir, err := idx.EnsureChapterDirectory("g", "c")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.jpg"), []byte("old"), 0o644))

	fetcher := newFakeFetcher(map[string][]byte{"u1": []byte("new"), "u2": []byte("2")})
	d := NewDownloader("g", idx, fetcher, nil)

	res := d.DownloadChapter(testContext(&logs), unit("c", "u1", "u2"))

	assert.Equal(t, Totals{Success: 1, Skipped: 1}, res.Totals)
	assert.Equal(t, SkippedExisting, res.Images[0].Outcome)
	assert.Equal(t, 0, fetcher.calls["u1"])

	data, err := os.ReadFile(filepath.Join(dir, "1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data), "existing pages are never overwritten")
}

func TestDownloadChapter_DirectoryFailureFailsEveryImage(t *testing.T) {
	var logs bytes.Buffer

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "g"), []byte("not a dir"), 0o644))

	fetcher := newFakeFetcher(nil)
	d := NewDownloader("g", storage.NewIndex(root), fetcher, nil)

	res := d.DownloadChapter(testContext(&logs), unit("c", "u1", "u2"))

	var ioErr *storage.IOError
	require.True(t, errors.As(res.Err, &ioErr))
	assert.Equal(t, Totals{Failure: 2}, res.Totals)
	assert.Zero(t, fetcher.totalCalls())
	assert.Equal(t, 1, strings.Count(logs.String(), "chapter directory not created"))
}

func TestDownloadChapter_CanceledContextStopsChapter(t *testing.T) {
	var logs bytes.Buffer

	ctx, cancel := context.WithCancel(testContext(&logs))
	cancel()

	fetcher := newFakeFetcher(map[string][]byte{"u1": []byte("1")})
	d := NewDownloader("g", storage.NewIndex(t.TempDir()), fetcher, nil)

	res := d.DownloadChapter(ctx, unit("c", "u1"))

	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, Totals{}, res.Totals)
	assert.Zero(t, fetcher.totalCalls())
}

func TestRunSequential(t *testing.T) {
	var logs bytes.Buffer

	fetcher := newFakeFetcher(map[string][]byte{"a1": []byte("x"), "b1": []byte("y")})
	d := NewDownloader("g", storage.NewIndex(t.TempDir()), fetcher, nil)

	results := d.RunSequential(testContext(&logs), []Unit{unit("A", "a1", "a2"), unit("B", "b1")})

	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Chapter)
	assert.Equal(t, "B", results[1].Chapter)
	assert.Equal(t, Totals{Success: 2, Failure: 1}, Summarize(results))

	aDone := strings.Index(logs.String(), `chapter=A`)
	bDone := strings.Index(logs.String(), `chapter=B`)
	assert.Less(t, aDone, bDone, "sequential mode handles chapters in discovery order")
}

func TestRunParallel(t *testing.T) {
	var logs bytes.Buffer

	pages := map[string][]byte{}

	var units []Unit

	for c := 1; c <= 6; c++ {
		var urls []string

		for p := 1; p <= 3; p++ {
			u := fmt.Sprintf("c%d/p%d", c, p)
			urls = append(urls, u)

			if !(c == 2 && p == 2) {
				pages[u] = []byte(u)
			}
		}

		units = append(units, unit(fmt.Sprintf("Chapter %d", c), urls...))
	}

	root := t.TempDir()
	fetcher := newFakeFetcher(pages)
	fetcher.delay = 5 * time.Millisecond

	d := NewDownloader("g", storage.NewIndex(root), fetcher, nil)

	results := d.RunParallel(testContext(&logs), units, 2)

	require.Len(t, results, 6)

	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("Chapter %d", i+1), r.Chapter, "results keep unit order")
	}

	assert.Equal(t, Totals{Success: 17, Failure: 1}, Summarize(results))
	assert.LessOrEqual(t, fetcher.maxSeen.Load(), int32(2))
	assert.Equal(t, 18, fetcher.totalCalls(), "every ordinal fetched exactly once")
	assert.Contains(t, logs.String(), "Chapter 2: page 2 not found")

	counts, err := storage.NewIndex(root).CountArtifacts("g")
	require.NoError(t, err)
	assert.Len(t, counts, 6)
}

func TestRunParallel_PanickingChapterDoesNotStopSiblings(t *testing.T) {
	var logs bytes.Buffer

	fetcher := newFakeFetcher(map[string][]byte{"ok1": []byte("1"), "ok2": []byte("2")})
	fetcher.panicOn = "boom"

	d := NewDownloader("g", storage.NewIndex(t.TempDir()), fetcher, nil)

	results := d.RunParallel(testContext(&logs), []Unit{unit("A", "ok1"), unit("B", "boom"), unit("C", "ok2")}, 0)

	require.Len(t, results, 3)
	assert.Equal(t, Totals{Success: 1}, results[0].Totals)
	assert.Error(t, results[1].Err)
	assert.Equal(t, "B", results[1].Chapter)
	assert.Equal(t, Totals{Success: 1}, results[2].Totals)
	assert.Contains(t, logs.String(), "chapter worker panicked")
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	var logs bytes.Buffer

	root := t.TempDir()
	fetcher := newFakeFetcher(map[string][]byte{"1": []byte("1"), "2": []byte("2")})
	d := NewDownloader("g", storage.NewIndex(root), fetcher, nil)
	units := []Unit{unit("c", "1", "2")}

	first := Summarize(d.RunParallel(testContext(&logs), units, 4))
	assert.Equal(t, Totals{Success: 2}, first)

	calls := fetcher.totalCalls()

	second := Summarize(d.RunSequential(testContext(&logs), units))
	assert.Equal(t, Totals{Skipped: 2}, second)
	assert.Equal(t, calls, fetcher.totalCalls(), "second run performs no fetches")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "saved", Saved.String())
	assert.Equal(t, "skipped", SkippedExisting.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
