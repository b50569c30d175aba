// Package manifest extracts the chapter list of a gallery and the image
// manifest of a chapter from fetched page content.
package manifest

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidEncoding is returned by FromBytes when the payload is not UTF-8.
var ErrInvalidEncoding = errors.New("manifest: content is not valid UTF-8")

// Reasons carried by ExtractionError.
const (
	ReasonChapterListNotFound = "chapter list not found"
	ReasonImageListNotFound   = "image list not found"
	ReasonImagePathNotFound   = "image path not found"
)

// ExtractionError reports page content that lacks an expected marker.
type ExtractionError struct {
	Reason string // One of the Reason* constants
	Err    error  // Underlying error, if any
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("manifest extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Content is decoded page text. Build it with FromText or FromBytes.
type Content struct {
	text string
}

func FromText(text string) Content {
	return Content{text: text}
}

// FromBytes decodes a raw response body as UTF-8.
func FromBytes(raw []byte) (Content, error) {
	if !utf8.Valid(raw) {
		return Content{}, ErrInvalidEncoding
	}

	return Content{text: string(raw)}, nil
}

func (c Content) String() string {
	return c.text
}
