package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/comic_downloader/internal/logctx"
	"github.com/italolelis/comic_downloader/internal/storage"
)

// DeleteStalePartials removes temporary page files under the gallery directory
// that are older than maxAge. A process killed in the middle of a save leaves
// them behind; finished pages are never touched.
func DeleteStalePartials(ctx context.Context, index *storage.Index, galleryID string, maxAge time.Duration) (int, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()
	root := index.GalleryDir(galleryID)
	deleted := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil // gallery not downloaded yet
			}

			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.IsDir() || !storage.IsPartial(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			logger.Error("Failed to stat partial file", "file", path, "err", err)

			return err
		}

		if now.Sub(info.ModTime()) <= maxAge {
			return nil
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Error("Failed to delete partial file", "file", path, "err", err)

			return err
		}

		logger.Debug("Deleted partial file", "file", path)

		deleted++

		return nil
	})

	return deleted, err
}
