package tilepack

import (
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb/maptile"
)

// ErrRateLimited is returned when the tile server answers 429 Too Many Requests.
var ErrRateLimited = errors.New("rate limited by tile server")

// StatusError is returned for any response status other than 200 and 429.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

type Outcome int

const (
	// OutcomeFetched means the tile was downloaded and saved.
	OutcomeFetched Outcome = iota
	// OutcomeCached means the tile was already present; no request was made.
	OutcomeCached
	OutcomeRateLimited
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFetched:
		return "fetched"
	case OutcomeCached:
		return "cached"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type TileResult struct {
	Tile    maptile.Tile
	URL     string
	Outcome Outcome
	Err     error
	Bytes   int
	Elapsed time.Duration
}

// OK reports whether the tile is present in the output after this attempt.
func (r *TileResult) OK() bool {
	return r.Outcome == OutcomeFetched || r.Outcome == OutcomeCached
}

// Summary aggregates the results of a run.
type Summary struct {
	Total       uint64
	Attempted   uint64
	Fetched     uint64
	Cached      uint64
	RateLimited uint64
	Failed      uint64
	Bytes       uint64
	Elapsed     time.Duration

	// Skipped holds every tile that is missing from the output after the run.
	Skipped []*TileResult
}

func (s *Summary) Add(r *TileResult) {
	s.Attempted++
	s.Bytes += uint64(r.Bytes)

	switch r.Outcome {
	case OutcomeFetched:
		s.Fetched++
	case OutcomeCached:
		s.Cached++
	case OutcomeRateLimited:
		s.RateLimited++
	case OutcomeFailed:
		s.Failed++
	}

	if !r.OK() {
		s.Skipped = append(s.Skipped, r)
	}
}

func (s *Summary) Succeeded() uint64 {
	return s.Fetched + s.Cached
}
