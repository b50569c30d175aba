package crawler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/italolelis/comic_downloader/internal/downloader"
)

const (
	modeSequential = "sequential"
	modeParallel   = "parallel"
)

// Mode selects how chapter units are scheduled. Workers is only meaningful
// when Parallel is set.
type Mode struct {
	Parallel bool
	Workers  int
}

// ParseMode reads "sequential", "parallel" or "parallel:N". A bare "parallel"
// uses defaultWorkers, or downloader.DefaultWorkers when that is not positive.
func ParseMode(s string, defaultWorkers int) (Mode, error) {
	name, count, hasCount := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")

	switch name {
	case modeSequential:
		if hasCount {
			return Mode{}, fmt.Errorf("invalid mode %q: sequential takes no worker count", s)
		}

		return Mode{}, nil
	case modeParallel:
		workers := defaultWorkers
		if workers <= 0 {
			workers = downloader.DefaultWorkers
		}

		if hasCount {
			n, err := strconv.Atoi(count)
			if err != nil || n <= 0 {
				return Mode{}, fmt.Errorf("invalid mode %q: worker count must be a positive integer", s)
			}

			workers = n
		}

		return Mode{Parallel: true, Workers: workers}, nil
	default:
		return Mode{}, fmt.Errorf("invalid mode %q: expected sequential, parallel or parallel:N", s)
	}
}

func (m Mode) String() string {
	if !m.Parallel {
		return modeSequential
	}

	return fmt.Sprintf("%s:%d", modeParallel, m.Workers)
}
