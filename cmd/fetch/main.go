package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/nidhoggr/tilefetch/config"
	"github.com/nidhoggr/tilefetch/logger"
	"github.com/nidhoggr/tilefetch/metrics"
	"github.com/nidhoggr/tilefetch/tilepack"
)

const ZOOM string = `zoom`
const BOUNDS string = `bounds`
const OUTDIR string = `outDir`
const OUTPUTMODE string = `outputMode`
const URLTEMPLATE string = `urlTemplate`
const EXT string = `ext`
const DELAY string = `delay`
const COOLDOWN string = `cooldown`
const LOGLEVEL string = `logLevel`
const PUSHGATEWAY string = `pushgateway`
const NOPROGRESS string = `noProgress`

const pushJob = "tilefetch"

func main() {
	app := cli.NewApp()
	app.Name = "tilefetch"
	app.Usage = "Download every map tile covering a bounding box at one zoom level"
	app.Version = versioninfo.Short()

	app.Flags = flags()

	app.Action = fetch

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// flags read the same TILEFETCH_ variables the config package parses.
func flags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{
			Name:    ZOOM,
			Aliases: []string{"z"},
			Usage:   "Zoom level to fetch",
			EnvVars: config.EnvVars(ZOOM),
		},
		&cli.StringFlag{
			Name:    BOUNDS,
			Aliases: []string{"b"},
			Usage:   "Bounding box in south,west,north,east order. E.g.: 48.513,7.635,48.65,7.876",
			EnvVars: config.EnvVars(BOUNDS),
		},
		&cli.StringFlag{
			Name:    OUTDIR,
			Aliases: []string{"o"},
			Usage:   "Output directory, or MBTiles file with --outputMode mbtiles",
			EnvVars: config.EnvVars(OUTDIR),
		},
		&cli.StringFlag{
			Name:    OUTPUTMODE,
			Usage:   "Where tiles are stored: disk or mbtiles",
			EnvVars: config.EnvVars(OUTPUTMODE),
		},
		&cli.StringFlag{
			Name:    URLTEMPLATE,
			Aliases: []string{"u"},
			Usage:   "Tile server URL with {z}, {x}, {y} and optional {ext} placeholders",
			EnvVars: config.EnvVars("upstreamUrlTemplate"),
		},
		&cli.StringFlag{
			Name:    EXT,
			Usage:   "Tile file extension",
			EnvVars: config.EnvVars("upstreamExt"),
		},
		&cli.DurationFlag{
			Name:    DELAY,
			Usage:   "Pause after every tile",
			EnvVars: config.EnvVars(DELAY),
		},
		&cli.DurationFlag{
			Name:    COOLDOWN,
			Usage:   "Extra pause after the server answered 429 Too Many Requests",
			EnvVars: config.EnvVars(COOLDOWN),
		},
		&cli.StringFlag{
			Name:    LOGLEVEL,
			Usage:   "debug, info, warn or error",
			EnvVars: config.EnvVars(LOGLEVEL),
		},
		&cli.StringFlag{
			Name:    PUSHGATEWAY,
			Usage:   "Prometheus Pushgateway URL to push run metrics to when done",
			EnvVars: config.EnvVars("pushgatewayUrl"),
		},
		&cli.BoolFlag{
			Name:    NOPROGRESS,
			Usage:   "Do not draw a progress bar on stderr",
			EnvVars: config.EnvVars(NOPROGRESS),
		},
	}
}

func fetch(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	zl := logger.NewZapLogger(cfg.Logger.Level)
	defer zl.Sync()

	out, err := newOutputter(cfg)
	if err != nil {
		return fmt.Errorf("couldn't create %s outputter: %w", cfg.OutputMode, err)
	}

	if err := out.CreateTiles(); err != nil {
		out.Close()
		return fmt.Errorf("couldn't prepare output %s: %w", cfg.OutDir, err)
	}

	fetcher, err := tilepack.NewFetcher(&tilepack.FetcherOptions{
		URLTemplate: cfg.Upstream.URLTemplate,
		Format:      cfg.Upstream.Ext,
		UserAgent:   cfg.Upstream.UserAgent,
		Referer:     cfg.Upstream.Referer,
		Timeout:     cfg.Upstream.Timeout,
		Outputter:   out,
		Logger:      zl,
	})
	if err != nil {
		out.Close()
		return err
	}

	reg := prometheus.NewRegistry()

	jobOpts := &tilepack.JobOptions{
		Fetcher:        fetcher,
		Bounds:         cfg.BoundingBox(),
		Zoom:           cfg.ZoomLevel(),
		Delay:          cfg.Throttle.Delay,
		Cooldown:       cfg.Throttle.Cooldown,
		ThrottleCached: cfg.Throttle.ThrottleCached,
		ProgressEvery:  cfg.ProgressEvery,
		Metrics:        metrics.NewFetch(reg),
		Logger:         zl,
	}
	if !c.Bool(NOPROGRESS) {
		jobOpts.ProgressWriter = os.Stderr
	}

	job, err := tilepack.NewJob(jobOpts)
	if err != nil {
		out.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := job.Run(ctx)

	if err := out.Close(); err != nil {
		zl.Error("couldn't close output", "dsn", cfg.OutDir, "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	if len(summary.Skipped) > 0 {
		zl.Warn("some tiles were skipped, run again to retry them", "skipped", len(summary.Skipped))
	}

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metrics.Push(pushCtx, cfg.PushgatewayURL, pushJob, reg); err != nil {
			zl.Warn("couldn't push metrics", "url", cfg.PushgatewayURL, "error", err)
		}
		cancel()
	}

	if errors.Is(runErr, context.Canceled) {
		zl.Warn("interrupted, partial results kept", "attempted", summary.Attempted, "total", summary.Total)
		return nil
	}
	return runErr
}

// loadConfig reads the environment and applies the flags that were set on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	if c.IsSet(ZOOM) {
		cfg.Zoom = c.Uint(ZOOM)
	}
	if c.IsSet(BOUNDS) {
		b, err := parseBounds(c.String(BOUNDS))
		if err != nil {
			return nil, err
		}
		cfg.Bounds = config.Bounds{MinLat: b.MinLat, MinLon: b.MinLon, MaxLat: b.MaxLat, MaxLon: b.MaxLon}
	}
	if c.IsSet(OUTDIR) {
		cfg.OutDir = c.String(OUTDIR)
	}
	if c.IsSet(OUTPUTMODE) {
		cfg.OutputMode = c.String(OUTPUTMODE)
	}
	if c.IsSet(URLTEMPLATE) {
		cfg.Upstream.URLTemplate = c.String(URLTEMPLATE)
	}
	if c.IsSet(EXT) {
		cfg.Upstream.Ext = c.String(EXT)
	}
	if c.IsSet(DELAY) {
		cfg.Throttle.Delay = c.Duration(DELAY)
	}
	if c.IsSet(COOLDOWN) {
		cfg.Throttle.Cooldown = c.Duration(COOLDOWN)
	}
	if c.IsSet(LOGLEVEL) {
		cfg.Logger.Level = c.String(LOGLEVEL)
	}
	if c.IsSet(PUSHGATEWAY) {
		cfg.PushgatewayURL = c.String(PUSHGATEWAY)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newOutputter(cfg *config.Config) (tilepack.TileOutputter, error) {
	switch cfg.OutputMode {
	case config.OutputModeMbtiles:
		dsn := cfg.OutDir
		if !strings.HasSuffix(dsn, ".mbtiles") {
			dsn += ".mbtiles"
		}
		metadata := tilepack.NewMbtilesMetadata(map[string]string{
			"name":   "tilefetch",
			"type":   "baselayer",
			"format": cfg.Upstream.Ext,
		})
		out, err := tilepack.NewMbtilesOutputter(dsn, 0, metadata)
		if err != nil {
			return nil, err
		}
		out.AssignSpatialMetadata(cfg.BoundingBox().Bound(), cfg.ZoomLevel(), cfg.ZoomLevel())
		return out, nil
	default:
		return tilepack.NewDiskOutputter(cfg.OutDir, cfg.Upstream.Ext)
	}
}

// parseBounds reads a south,west,north,east bounding box.
func parseBounds(s string) (tilepack.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return tilepack.BoundingBox{}, fmt.Errorf("bounds %q must have 4 comma-separated values", s)
	}

	coords := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return tilepack.BoundingBox{}, fmt.Errorf("bounds component %d: %w", i, err)
		}
		coords[i] = v
	}

	b := tilepack.BoundingBox{MinLat: coords[0], MinLon: coords[1], MaxLat: coords[2], MaxLon: coords[3]}
	if err := b.Validate(); err != nil {
		return tilepack.BoundingBox{}, err
	}
	return b, nil
}
