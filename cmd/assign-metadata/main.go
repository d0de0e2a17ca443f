package main

import (
	"fmt"
	"log"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"

	"github.com/nidhoggr/tilefetch/config"
	"github.com/nidhoggr/tilefetch/logger"
	"github.com/nidhoggr/tilefetch/tilepack"
)

const VERIFY string = `verify`
const LOGLEVEL string = `logLevel`

func main() {
	app := cli.NewApp()
	app.Name = "tilefetch-assign-metadata"
	app.Usage = "Recompute bounds, center and zoom range metadata of MBTiles archives from their tiles"
	app.ArgsUsage = "archive.mbtiles [archive.mbtiles ...]"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    VERIFY,
			Usage:   "Verify that spatial metadata was written to each database",
			EnvVars: config.EnvVars(VERIFY),
		},
		&cli.StringFlag{
			Name:    LOGLEVEL,
			Value:   "info",
			EnvVars: config.EnvVars(LOGLEVEL),
		},
	}

	app.Action = func(c *cli.Context) error {
		zl := logger.NewZapLogger(c.String(LOGLEVEL))
		defer zl.Sync()

		for _, path := range c.Args().Slice() {
			if err := assign(path); err != nil {
				return err
			}
			if !c.Bool(VERIFY) {
				zl.Info("assigned spatial metadata", "path", path)
				continue
			}
			if err := verify(path, zl); err != nil {
				return err
			}
		}
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func assign(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("couldn't read input mbtiles %s: %w", path, err)
	}

	mbtilesReader, err := tilepack.NewMbtilesReader(path)
	if err != nil {
		return fmt.Errorf("couldn't read input mbtiles %s: %w", path, err)
	}

	extent, err := tilepack.ScanExtent(mbtilesReader)
	mbtilesReader.Close()
	if err != nil {
		return fmt.Errorf("couldn't read tiles from %s: %w", path, err)
	}
	if extent.Empty() {
		return fmt.Errorf("%s has no tiles", path)
	}

	mbtilesWriter, err := tilepack.NewMbtilesOutputter(path, 0, tilepack.NewMbtilesMetadata(nil))
	if err != nil {
		return fmt.Errorf("couldn't open %s for writing: %w", path, err)
	}

	if err := mbtilesWriter.CreateTiles(); err != nil {
		mbtilesWriter.Close()
		return err
	}

	mbtilesWriter.AssignSpatialMetadata(extent.Bound(), extent.MinZoom(), extent.MaxZoom())

	return mbtilesWriter.Close()
}

func verify(path string, l logger.Logger) error {
	mbtilesReader, err := tilepack.NewMbtilesReader(path)
	if err != nil {
		return fmt.Errorf("couldn't read input mbtiles %s: %w", path, err)
	}
	defer mbtilesReader.Close()

	metadata, err := mbtilesReader.Metadata()
	if err != nil {
		return fmt.Errorf("unable to read metadata for %s: %w", path, err)
	}

	bounds, err := metadata.Bounds()
	if err != nil {
		return fmt.Errorf("failed to derive bounds metadata after update: %w", err)
	}

	center, zoom, err := metadata.Center()
	if err != nil {
		return fmt.Errorf("failed to derive center metadata after update: %w", err)
	}

	minZoom, err := metadata.MinZoom()
	if err != nil {
		return fmt.Errorf("failed to derive min zoom metadata after update: %w", err)
	}

	maxZoom, err := metadata.MaxZoom()
	if err != nil {
		return fmt.Errorf("failed to derive max zoom metadata after update: %w", err)
	}

	l.Info("verified spatial metadata",
		"path", path,
		"bounds", fmt.Sprint(bounds),
		"center", fmt.Sprintf("%v@%d", center, zoom),
		"zoom", fmt.Sprintf("%d-%d", minZoom, maxZoom),
	)
	return nil
}
