package main

import (
	"fmt"
	"log"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/paulmach/orb/maptile"
	"github.com/urfave/cli/v2"

	"github.com/nidhoggr/tilefetch/config"
	"github.com/nidhoggr/tilefetch/logger"
	"github.com/nidhoggr/tilefetch/tilepack"
)

const INPUT string = `input`
const OUTPUT string = `output`
const EXT string = `ext`
const NAME string = `name`
const LOGLEVEL string = `logLevel`

func main() {
	app := cli.NewApp()
	app.Name = "tilefetch-pack"
	app.Usage = "Pack a downloaded tile directory into a single PMTiles archive"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     INPUT,
			Aliases:  []string{"i"},
			Usage:    "Tile directory laid out as <z>/<x>/<y>.<ext>",
			Required: true,
			EnvVars:  config.EnvVars(INPUT),
		},
		&cli.StringFlag{
			Name:     OUTPUT,
			Aliases:  []string{"o"},
			Usage:    "PMTiles file to create",
			Required: true,
			EnvVars:  config.EnvVars(OUTPUT),
		},
		&cli.StringFlag{
			Name:    EXT,
			Usage:   "Only pack tiles with this extension",
			Value:   "png",
			EnvVars: config.EnvVars(EXT),
		},
		&cli.StringFlag{
			Name:    NAME,
			Usage:   "Archive name written to the metadata",
			Value:   "tilefetch",
			EnvVars: config.EnvVars(NAME),
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

		extent, err := pack(c.String(INPUT), c.String(OUTPUT), c.String(EXT), c.String(NAME))
		if err != nil {
			return err
		}
		zl.Info("packed tiles",
			"tiles", extent.Count(),
			"minzoom", extent.MinZoom(),
			"maxzoom", extent.MaxZoom(),
			"output", c.String(OUTPUT),
		)
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func pack(input, output, ext, name string) (*tilepack.Extent, error) {
	if _, err := os.Stat(output); err == nil {
		return nil, fmt.Errorf("output path %s already exists and cannot be overwritten", output)
	}

	disk, err := tilepack.NewDiskOutputter(input, ext)
	if err != nil {
		return nil, err
	}

	// first pass for the metadata, the archive writes it before the tiles
	extent, err := tilepack.ScanExtent(disk)
	if err != nil {
		return nil, fmt.Errorf("couldn't read tiles from %s: %w", input, err)
	}
	if extent.Empty() {
		return nil, fmt.Errorf("no .%s tiles found under %s", ext, input)
	}

	metadata := tilepack.NewMbtilesMetadata(map[string]string{
		"name":   name,
		"format": ext,
	})
	metadata.SetSpatial(extent.Bound(), extent.MinZoom(), extent.MaxZoom())

	out, err := tilepack.NewPmtilesOutputter(output, ext, metadata)
	if err != nil {
		return nil, err
	}

	err = disk.VisitAllTiles(func(t maptile.Tile, data []byte) error {
		return out.Save(t, data)
	})
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("couldn't pack tiles from %s: %w", input, err)
	}

	if err := out.Close(); err != nil {
		return nil, err
	}
	return extent, nil
}
