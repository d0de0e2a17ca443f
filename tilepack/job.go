package tilepack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/schollz/progressbar/v3"

	"github.com/nidhoggr/tilefetch/logger"
	"github.com/nidhoggr/tilefetch/metrics"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type JobOptions struct {
	Fetcher *Fetcher
	Bounds  BoundingBox
	Zoom    maptile.Zoom

	// Delay is waited after every tile. Cooldown is waited in addition after
	// the server answered 429.
	Delay    time.Duration
	Cooldown time.Duration
	// ThrottleCached applies Delay to tiles that were already present too.
	ThrottleCached bool

	// ProgressEvery logs a progress line every n tiles. Zero disables it.
	ProgressEvery int
	// ProgressWriter receives a progress bar when set.
	ProgressWriter io.Writer

	Metrics *metrics.Fetch
	Logger  logger.Logger
	Sleep   SleepFunc
}

// Job fetches every tile of a bounding box at one zoom level, one at a time.
type Job struct {
	fetcher        *Fetcher
	grid           TileGridRange
	delay          time.Duration
	cooldown       time.Duration
	throttleCached bool
	progressEvery  int
	progressWriter io.Writer
	metrics        *metrics.Fetch
	logger         logger.Logger
	sleep          SleepFunc
}

func NewJob(opts *JobOptions) (*Job, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if err := opts.Bounds.Validate(); err != nil {
		return nil, err
	}
	if opts.Delay < 0 || opts.Cooldown < 0 {
		return nil, fmt.Errorf("delay (%s) and cooldown (%s) must not be negative", opts.Delay, opts.Cooldown)
	}

	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Job{
		fetcher:        opts.Fetcher,
		grid:           ComputeGridRange(opts.Bounds, opts.Zoom),
		delay:          opts.Delay,
		cooldown:       opts.Cooldown,
		throttleCached: opts.ThrottleCached,
		progressEvery:  opts.ProgressEvery,
		progressWriter: opts.ProgressWriter,
		metrics:        opts.Metrics,
		logger:         l,
		sleep:          sleep,
	}, nil
}

func (j *Job) Grid() TileGridRange {
	return j.grid
}

// Run processes the grid x outer, y inner. Per-tile failures are collected in
// the summary and never stop the run; only ctx cancellation does, in which
// case the partial summary is returned with ctx's error.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{Total: j.grid.Count()}
	start := time.Now()

	j.logger.Info("starting tile fetch", "range", j.grid.String(), "tiles", summary.Total)

	var bar *progressbar.ProgressBar
	if j.progressWriter != nil {
		bar = progressbar.NewOptions64(int64(summary.Total),
			progressbar.OptionSetWriter(j.progressWriter),
			progressbar.OptionSetDescription(fmt.Sprintf("z%d", j.grid.Zoom)),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("tiles"),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetPredictTime(true),
		)
	}

	var runErr error
	j.grid.Each(func(tile maptile.Tile) bool {
		if err := ctx.Err(); err != nil {
			runErr = err
			return false
		}

		result := j.fetcher.FetchTile(ctx, tile)
		summary.Add(result)
		j.metrics.ObserveTile(result.Outcome.String(), result.Elapsed, result.Bytes)
		j.logResult(result)

		if bar != nil {
			bar.Add(1)
		}

		if j.progressEvery > 0 && summary.Attempted%uint64(j.progressEvery) == 0 {
			j.logger.Info("progress", "done", summary.Attempted, "total", summary.Total)
		}

		if result.Outcome == OutcomeRateLimited {
			j.logger.Warn("rate limit reached, pausing", "cooldown", j.cooldown.String())
			if err := j.sleep(ctx, j.cooldown); err != nil {
				runErr = err
				return false
			}
		}

		if result.Outcome != OutcomeCached || j.throttleCached {
			if err := j.sleep(ctx, j.delay); err != nil {
				runErr = err
				return false
			}
		}

		return true
	})

	if bar != nil {
		bar.Finish()
		fmt.Fprintln(j.progressWriter)
	}

	summary.Elapsed = time.Since(start)

	j.logger.Info("finished tile fetch",
		"attempted", summary.Attempted,
		"total", summary.Total,
		"fetched", summary.Fetched,
		"cached", summary.Cached,
		"rate_limited", summary.RateLimited,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed.String(),
	)

	return summary, runErr
}

func (j *Job) logResult(result *TileResult) {
	switch result.Outcome {
	case OutcomeFetched:
		j.logger.Debug("tile fetched", "tile", tileString(result.Tile), "bytes", result.Bytes, "elapsed", result.Elapsed.String())
	case OutcomeCached:
		j.logger.Debug("tile already present", "tile", tileString(result.Tile))
	case OutcomeRateLimited:
		j.logger.Warn("tile skipped", "tile", tileString(result.Tile), "url", result.URL, "error", result.Err)
	case OutcomeFailed:
		j.logger.Error("tile skipped", "tile", tileString(result.Tile), "url", result.URL, "error", result.Err)
	}
}

func tileString(t maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
