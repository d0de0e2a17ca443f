package tilepack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDisk(t *testing.T, format string) *diskOutputter {
	t.Helper()
	o, err := NewDiskOutputter(t.TempDir(), format)
	require.NoError(t, err)
	require.NoError(t, o.CreateTiles())
	return o
}

func TestDiskOutputter_SaveAndHas(t *testing.T) {
	o := newDisk(t, "png")
	tile := maptile.New(68315, 45206, 17)

	has, err := o.Has(tile)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, o.Save(tile, pngBytes))

	path := filepath.Join(o.Root(), "17", "68315", "45206.png")
	assert.Equal(t, path, o.Path(tile, "png"))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)

	has, err = o.Has(tile)
	require.NoError(t, err)
	assert.True(t, has)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDiskOutputter_NeverOverwrites(t *testing.T) {
	o := newDisk(t, "png")
	tile := maptile.New(1, 2, 3)

	require.NoError(t, o.Save(tile, []byte("first")))
	require.NoError(t, o.Save(tile, []byte("second")))

	got, err := os.ReadFile(o.Path(tile, "png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
}

func TestDiskOutputter_DetectedFormat(t *testing.T) {
	o := newDisk(t, "")

	require.NoError(t, o.Save(maptile.New(0, 0, 1), jpegBytes))
	require.NoError(t, o.Save(maptile.New(1, 0, 1), webpBytes))

	assert.FileExists(t, filepath.Join(o.Root(), "1", "0", "0.jpg"))
	assert.FileExists(t, filepath.Join(o.Root(), "1", "1", "0.webp"))

	has, err := o.Has(maptile.New(1, 0, 1))
	require.NoError(t, err)
	assert.True(t, has)

	td, err := o.GetTile(maptile.New(0, 0, 1))
	require.NoError(t, err)
	require.NotNil(t, td.Data)
	assert.Equal(t, jpegBytes, *td.Data)
}

func TestDiskOutputter_AnyFormatUnderMetacharRoot(t *testing.T) {
	o, err := NewDiskOutputter(filepath.Join(t.TempDir(), "tiles[2024]*?"), "")
	require.NoError(t, err)
	require.NoError(t, o.CreateTiles())

	tile := maptile.New(534, 353, 10)
	require.NoError(t, o.Save(tile, jpegBytes))

	has, err := o.Has(tile)
	require.NoError(t, err)
	assert.True(t, has)

	td, err := o.GetTile(tile)
	require.NoError(t, err)
	require.NotNil(t, td.Data)
	assert.Equal(t, jpegBytes, *td.Data)

	// a neighbouring row sharing the digit prefix is not a match
	has, err = o.Has(maptile.New(534, 35, 10))
	require.NoError(t, err)
	assert.False(t, has)

	has, err = o.Has(maptile.New(600, 353, 10))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDiskOutputter_GetTileMissing(t *testing.T) {
	o := newDisk(t, "png")

	td, err := o.GetTile(maptile.New(5, 5, 5))
	require.NoError(t, err)
	assert.Nil(t, td.Data)
}

func TestDiskOutputter_RootIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	o, err := NewDiskOutputter(path, "png")
	require.NoError(t, err)
	assert.Error(t, o.CreateTiles())
}

func TestDiskOutputter_VisitAllTiles(t *testing.T) {
	o := newDisk(t, "png")
	tiles := []maptile.Tile{maptile.New(0, 0, 0), maptile.New(1, 1, 1), maptile.New(534, 353, 10)}
	for _, tile := range tiles {
		require.NoError(t, o.Save(tile, pngBytes))
	}
	require.NoError(t, os.WriteFile(filepath.Join(o.Root(), "README"), []byte("not a tile"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(o.Root(), "0", "0", "0.jpg"), jpegBytes, 0644))

	var seen []maptile.Tile
	err := o.VisitAllTiles(func(tile maptile.Tile, data []byte) error {
		assert.Equal(t, pngBytes, data)
		seen = append(seen, tile)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, tiles, seen)
}

func TestParseTilePath(t *testing.T) {
	tile, format, ok := parseTilePath("17/68315/45206.png")
	assert.True(t, ok)
	assert.Equal(t, maptile.New(68315, 45206, 17), tile)
	assert.Equal(t, "png", format)

	_, _, ok = parseTilePath("17/68315/.tile-1234")
	assert.False(t, ok)
	_, _, ok = parseTilePath("2/4/0.png")
	assert.False(t, ok, "x out of range for zoom")
}
