package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	gohttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/nidhoggr/tilefetch/config"
	"github.com/nidhoggr/tilefetch/http"
	"github.com/nidhoggr/tilefetch/logger"
	"github.com/nidhoggr/tilefetch/metrics"
	"github.com/nidhoggr/tilefetch/tilepack"
)

const INPUT string = `input`
const LISTEN string = `listen`
const FORMAT string = `format`
const MAXAGE string = `maxAge`
const LOGLEVEL string = `logLevel`

func main() {
	app := cli.NewApp()
	app.Name = "tilefetch-serve"
	app.Usage = "Serve a tile directory or MBTiles archive at /tiles/{z}/{x}/{y}.{ext}"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     INPUT,
			Aliases:  []string{"i"},
			Usage:    "Tile directory or .mbtiles file to serve from",
			Required: true,
			EnvVars:  config.EnvVars(INPUT),
		},
		&cli.StringFlag{
			Name:    LISTEN,
			Aliases: []string{"l"},
			Usage:   "The address and port to listen on",
			Value:   ":8080",
			EnvVars: config.EnvVars(LISTEN),
		},
		&cli.StringFlag{
			Name:    FORMAT,
			Usage:   "Tile extension on disk. Any extension is served when empty",
			EnvVars: config.EnvVars(FORMAT),
		},
		&cli.DurationFlag{
			Name:    MAXAGE,
			Usage:   "Cache-Control max-age for tile responses",
			Value:   24 * time.Hour,
			EnvVars: config.EnvVars(MAXAGE),
		},
		&cli.StringFlag{
			Name:    LOGLEVEL,
			Value:   "info",
			EnvVars: config.EnvVars(LOGLEVEL),
		},
	}

	app.Action = serve

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func openReader(input string, format string) (tilepack.TileReader, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s: %w", input, err)
	}

	if info.IsDir() {
		return tilepack.NewDiskOutputter(input, format)
	}

	if !strings.HasSuffix(input, ".mbtiles") {
		return nil, fmt.Errorf("%s is neither a directory nor an .mbtiles file", input)
	}
	return tilepack.NewMbtilesReader(input)
}

func serve(c *cli.Context) error {
	zl := logger.NewZapLogger(c.String(LOGLEVEL))
	defer zl.Sync()

	reader, err := openReader(c.String(INPUT), c.String(FORMAT))
	if err != nil {
		return err
	}
	defer reader.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	addr := c.String(LISTEN)
	srv := &gohttp.Server{
		Addr: addr,
		Handler: http.NewRouter(&http.RouterOptions{
			Reader:   reader,
			Logger:   zl,
			Metrics:  metrics.NewServe(reg),
			Gatherer: reg,
			MaxAge:   c.Duration(MAXAGE),
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		zl.Info("http listen", "addr", addr, "input", c.String(INPUT))
		if err := srv.ListenAndServe(); !errors.Is(err, gohttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		zl.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("could not listen on %s: %w", addr, err)
	}
}
