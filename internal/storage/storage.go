// Package storage lays out downloaded pages on disk and answers whether a page
// has already been saved. A file at <root>/<gallery>/<chapter>/<ordinal>.jpg is
// the only record that a page was downloaded.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	dirPerm     = 0o755
	filePerm    = 0o644
	artifactExt = ".jpg"
	partialExt  = ".part"
)

// IOError reports a failed filesystem operation on the storage tree.
type IOError struct {
	Op   string // The operation that failed (e.g., "mkdir", "stat", "write")
	Path string // The path the operation was applied to
	Err  error  // Underlying error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Index maps (gallery, chapter, ordinal) to paths under root. It keeps no
// state of its own besides the root path.
//
// ArtifactPath followed by SaveArtifact is not atomic against other writers.
// Within one run only the worker owning a chapter writes into its directory
// and ordinals are unique per chapter, so no locking is done.
type Index struct {
	root string
}

func NewIndex(root string) *Index {
	if root == "" {
		root = "."
	}

	return &Index{root: root}
}

// Root returns the directory galleries are stored under.
func (i *Index) Root() string {
	return i.root
}

// ChapterDir returns the directory of a chapter without touching the filesystem.
func (i *Index) ChapterDir(galleryID, chapterTitle string) string {
	return filepath.Join(i.root, SanitizeSegment(galleryID), SanitizeSegment(chapterTitle))
}

// EnsureChapterDirectory creates the chapter directory and its parents if missing.
func (i *Index) EnsureChapterDirectory(galleryID, chapterTitle string) (string, error) {
	dir := i.ChapterDir(galleryID, chapterTitle)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	return dir, nil
}

// ArtifactPath returns where the page with the given ordinal is stored and
// whether a file is already there. Callers skip the page when exists is true.
func (i *Index) ArtifactPath(galleryID, chapterTitle string, ordinal int) (path string, exists bool, err error) {
	path = filepath.Join(i.ChapterDir(galleryID, chapterTitle), strconv.Itoa(ordinal)+artifactExt)

	_, err = os.Stat(path)

	switch {
	case err == nil:
		return path, true, nil
	case errors.Is(err, fs.ErrNotExist):
		return path, false, nil
	default:
		return path, false, &IOError{Op: "stat", Path: path, Err: err}
	}
}

// SaveArtifact writes data to path, replacing any existing file. The payload
// goes to a temporary sibling first so an interrupted write never leaves a
// partial file at path.
func (i *Index) SaveArtifact(data []byte, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*"+partialExt)
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return &IOError{Op: "write", Path: path, Err: err}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return &IOError{Op: "write", Path: path, Err: err}
	}

	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)

		return &IOError{Op: "chmod", Path: path, Err: err}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)

		return &IOError{Op: "rename", Path: path, Err: err}
	}

	return nil
}

// IsPartial reports whether name is a temporary file left by SaveArtifact.
func IsPartial(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, partialExt)
}

// GalleryDir returns the directory holding every chapter of a gallery.
func (i *Index) GalleryDir(galleryID string) string {
	return filepath.Join(i.root, SanitizeSegment(galleryID))
}

// ChapterCount is the number of stored pages of one chapter directory.
type ChapterCount struct {
	Chapter string
	Pages   int
}

// CountArtifacts counts stored pages per chapter directory of a gallery, in
// directory name order. A gallery that was never downloaded has no chapters.
func (i *Index) CountArtifacts(galleryID string) ([]ChapterCount, error) {
	galleryDir := i.GalleryDir(galleryID)

	entries, err := os.ReadDir(galleryDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, &IOError{Op: "readdir", Path: galleryDir, Err: err}
	}

	var counts []ChapterCount

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		chapterDir := filepath.Join(galleryDir, entry.Name())

		files, err := os.ReadDir(chapterDir)
		if err != nil {
			return nil, &IOError{Op: "readdir", Path: chapterDir, Err: err}
		}

		pages := 0

		for _, f := range files {
			if f.Type().IsRegular() && strings.HasSuffix(f.Name(), artifactExt) && !strings.HasPrefix(f.Name(), ".") {
				pages++
			}
		}

		counts = append(counts, ChapterCount{Chapter: entry.Name(), Pages: pages})
	}

	return counts, nil
}
