package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound matches, through errors.Is, a TransportError caused by a 404 response.
var ErrNotFound = errors.New("not found")

// TransportError represents a failed fetch: either the server answered with a
// non-2xx status or the request never got a response (timeout, reset, DNS).
type TransportError struct {
	URL        string // The URL that was requested
	StatusCode int    // HTTP status code, 0 when no response was received
	Err        error  // Underlying error, if any
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}

	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports 404 responses as ErrNotFound.
func (e *TransportError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}
