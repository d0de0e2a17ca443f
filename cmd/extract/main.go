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
const FORMAT string = `format`
const LOGLEVEL string = `logLevel`

const progressEvery = 1000

func main() {
	app := cli.NewApp()
	app.Name = "tilefetch-extract"
	app.Usage = "Unpack an MBTiles archive into a <z>/<x>/<y>.<ext> directory tree"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     INPUT,
			Aliases:  []string{"i"},
			Usage:    "Source MBTiles file",
			Required: true,
			EnvVars:  config.EnvVars(INPUT),
		},
		&cli.StringFlag{
			Name:     OUTPUT,
			Aliases:  []string{"o"},
			Usage:    "Target directory",
			Required: true,
			EnvVars:  config.EnvVars(OUTPUT),
		},
		&cli.StringFlag{
			Name:    FORMAT,
			Usage:   "File extension for every tile. Detected per tile when empty",
			EnvVars: config.EnvVars(FORMAT),
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

		n, err := extract(c.String(INPUT), c.String(OUTPUT), c.String(FORMAT), zl)
		if err != nil {
			return err
		}
		zl.Info("extracted tiles", "tiles", n, "output", c.String(OUTPUT))
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// extract copies every tile of the archive at input into a disk tree rooted at
// output. Tiles already on disk are kept.
func extract(input, output, format string, l logger.Logger) (uint64, error) {
	if _, err := os.Stat(input); err != nil {
		return 0, fmt.Errorf("couldn't open %s: %w", input, err)
	}

	reader, err := tilepack.NewMbtilesReader(input)
	if err != nil {
		return 0, fmt.Errorf("couldn't read input mbtiles %s: %w", input, err)
	}
	defer reader.Close()

	disk, err := tilepack.NewDiskOutputter(output, format)
	if err != nil {
		return 0, err
	}
	if err := disk.CreateTiles(); err != nil {
		return 0, err
	}

	var count uint64
	err = reader.VisitAllTiles(func(t maptile.Tile, data []byte) error {
		if err := disk.Save(t, data); err != nil {
			return fmt.Errorf("couldn't write tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
		}
		count++
		if count%progressEvery == 0 {
			l.Info("progress", "tiles", count)
		}
		return nil
	})
	if err != nil {
		return count, err
	}

	return count, disk.Close()
}
