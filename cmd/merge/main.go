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

const OUTPUT string = `output`
const BATCHSIZE string = `batchSize`
const LOGLEVEL string = `logLevel`

func main() {
	app := cli.NewApp()
	app.Name = "tilefetch-merge"
	app.Usage = "Merge MBTiles archives into one. The first archive holding a tile wins"
	app.ArgsUsage = "input.mbtiles [input.mbtiles ...]"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     OUTPUT,
			Aliases:  []string{"o"},
			Usage:    "The output mbtiles to write to",
			Required: true,
			EnvVars:  config.EnvVars(OUTPUT),
		},
		&cli.IntFlag{
			Name:    BATCHSIZE,
			Usage:   "Tiles written per transaction",
			Value:   1000,
			EnvVars: config.EnvVars(BATCHSIZE),
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

		inputs := c.Args().Slice()
		if len(inputs) == 0 {
			return fmt.Errorf("must specify at least one input path")
		}

		return merge(c.String(OUTPUT), inputs, c.Int(BATCHSIZE), zl)
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func merge(output string, inputs []string, batchSize int, l logger.Logger) error {
	// If the output file exists already we shouldn't overwrite it
	if pathExists(output) {
		return fmt.Errorf("output path %s already exists and cannot be overwritten", output)
	}

	l.Info("merging archives", "inputs", inputs, "output", output)

	metadata := tilepack.NewMbtilesMetadata(map[string]string{})
	outputMbtiles, err := tilepack.NewMbtilesOutputter(output, batchSize, metadata)
	if err != nil {
		return fmt.Errorf("couldn't create output mbtiles: %w", err)
	}

	if err := outputMbtiles.CreateTiles(); err != nil {
		outputMbtiles.Close()
		return fmt.Errorf("couldn't create output mbtiles: %w", err)
	}

	extent := &tilepack.Extent{}
	for i, inputFilename := range inputs {
		written, err := mergeOne(outputMbtiles, inputFilename, extent, metadata, i == 0)
		if err != nil {
			outputMbtiles.Close()
			return err
		}
		l.Info("merged archive", "input", inputFilename, "written", written)
	}

	if !extent.Empty() {
		outputMbtiles.AssignSpatialMetadata(extent.Bound(), extent.MinZoom(), extent.MaxZoom())
	}

	return outputMbtiles.Close()
}

func mergeOne(out tilepack.TileOutputter, input string, extent *tilepack.Extent, metadata *tilepack.MbtilesMetadata, first bool) (uint64, error) {
	if !pathExists(input) {
		return 0, fmt.Errorf("input %s does not exist", input)
	}

	reader, err := tilepack.NewMbtilesReader(input)
	if err != nil {
		return 0, fmt.Errorf("couldn't read input mbtiles %s: %w", input, err)
	}
	defer reader.Close()

	// name and format come from the first archive
	if first {
		if md, err := reader.Metadata(); err == nil {
			for _, k := range []string{"name", "format", "type", "attribution"} {
				if v, ok := md.Get(k); ok {
					metadata.Set(k, v)
				}
			}
		}
	}

	var written uint64
	err = reader.VisitAllTiles(func(t maptile.Tile, data []byte) error {
		has, err := out.Has(t)
		if err != nil {
			return err
		}
		if has {
			return nil
		}
		if err := out.Save(t, data); err != nil {
			return err
		}
		extent.Add(t)
		written++
		return nil
	})
	if err != nil {
		return written, fmt.Errorf("couldn't read tiles from %s: %w", input, err)
	}
	return written, nil
}
