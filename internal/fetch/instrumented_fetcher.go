package fetch

import (
	"context"

	"github.com/italolelis/comic_downloader/internal/telemetry"
)

// InstrumentedFetcher wraps a Fetcher with telemetry.
type InstrumentedFetcher struct {
	fetcher   Fetcher
	telemetry *telemetry.Telemetry
	kind      string
}

// NewInstrumentedFetcher creates a fetcher that records every request under kind
// ("page" or "image").
func NewInstrumentedFetcher(fetcher Fetcher, tel *telemetry.Telemetry, kind string) *InstrumentedFetcher {
	return &InstrumentedFetcher{
		fetcher:   fetcher,
		telemetry: tel,
		kind:      kind,
	}
}

func (f *InstrumentedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var result []byte

	err := f.telemetry.InstrumentFetch(ctx, f.kind, func(ctx context.Context) error {
		var err error

		result, err = f.fetcher.Fetch(ctx, url)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
