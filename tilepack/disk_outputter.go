package tilepack

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// diskOutputter stores tiles as <root>/<z>/<x>/<y>.<format>. Existing files
// are never overwritten. With an empty format the extension is detected from
// the tile bytes on Save.
type diskOutputter struct {
	root     string
	format   string
	hasTiles bool
}

var (
	_ TileOutputter = (*diskOutputter)(nil)
	_ TileReader    = (*diskOutputter)(nil)
)

func NewDiskOutputter(dsn string, format string) (*diskOutputter, error) {
	root, err := filepath.Abs(dsn)
	if err != nil {
		return nil, err
	}

	o := diskOutputter{
		root:   root,
		format: format,
	}

	return &o, nil
}

func (o *diskOutputter) Root() string {
	return o.root
}

func (o *diskOutputter) Close() error {
	return nil
}

func (o *diskOutputter) CreateTiles() error {
	if o.hasTiles {
		return nil
	}

	info, err := os.Stat(o.root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := os.MkdirAll(o.root, 0755); err != nil {
			return err
		}
	} else if !info.IsDir() {
		return fmt.Errorf("output root %s is already a file", o.root)
	}

	o.hasTiles = true
	return nil
}

// Path returns the file path for tile with the given extension.
func (o *diskOutputter) Path(tile maptile.Tile, format string) string {
	return filepath.Join(
		o.root,
		strconv.FormatUint(uint64(tile.Z), 10),
		strconv.FormatUint(uint64(tile.X), 10),
		strconv.FormatUint(uint64(tile.Y), 10)+"."+format,
	)
}

func (o *diskOutputter) find(tile maptile.Tile) (string, error) {
	if o.format != "" {
		path := o.Path(tile, o.format)
		_, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", nil
			}
			return "", err
		}
		return path, nil
	}

	// Any extension matches. The root is a plain path, never a glob pattern.
	dir := filepath.Dir(o.Path(tile, ""))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}

	prefix := strconv.FormatUint(uint64(tile.Y), 10) + "."
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", nil
}

func (o *diskOutputter) Has(tile maptile.Tile) (bool, error) {
	path, err := o.find(tile)
	return path != "", err
}

func (o *diskOutputter) Save(tile maptile.Tile, data []byte) error {
	format := o.format
	if format == "" {
		format = DetectFormat(data)
	}

	absPath := o.Path(tile, format)

	if _, err := os.Stat(absPath); err == nil {
		return nil
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Write next to the target and rename so a reader never sees a partial tile
	fh, err := os.CreateTemp(dir, ".tile-*")
	if err != nil {
		return err
	}
	tmpPath := fh.Name()

	_, err = fh.Write(data)
	if closeErr := fh.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpPath, 0644)
	}
	if err == nil {
		err = os.Rename(tmpPath, absPath)
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", absPath, err)
	}

	return nil
}

func (o *diskOutputter) GetTile(tile maptile.Tile) (*TileData, error) {
	path, err := o.find(tile)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return &TileData{Tile: tile}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return &TileData{Tile: tile, Data: &data}, nil
}

// VisitAllTiles walks the <z>/<x>/<y>.<format> tree. Files that do not match
// the layout are ignored.
func (o *diskOutputter) VisitAllTiles(visitor func(maptile.Tile, []byte) error) error {
	return filepath.WalkDir(o.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(o.root, path)
		if err != nil {
			return err
		}

		tile, format, ok := parseTilePath(filepath.ToSlash(rel))
		if !ok || (o.format != "" && format != o.format) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		return visitor(tile, data)
	})
}

func parseTilePath(rel string) (maptile.Tile, string, bool) {
	var z, x, y uint32
	var format string
	if n, err := fmt.Sscanf(rel, "%d/%d/%d.%s", &z, &x, &y, &format); err != nil || n != 4 {
		return maptile.Tile{}, "", false
	}
	if z > 30 || uint64(x) >= 1<<z || uint64(y) >= 1<<z {
		return maptile.Tile{}, "", false
	}
	return maptile.New(x, y, maptile.Zoom(z)), format, true
}
