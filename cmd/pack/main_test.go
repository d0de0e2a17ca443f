package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/protomaps/go-pmtiles/pmtiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhoggr/tilefetch/tilepack"
)

var pngTile = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x01\x00\x00\x00\x01\x00\x08\x06\x00\x00\x00")

func Test_pack(t *testing.T) {
	input := t.TempDir()
	disk, err := tilepack.NewDiskOutputter(input, "png")
	require.NoError(t, err)
	require.NoError(t, disk.Save(maptile.New(534, 353, 10), pngTile))
	require.NoError(t, disk.Save(maptile.New(68315, 45206, 17), pngTile))
	require.NoError(t, os.WriteFile(filepath.Join(input, "README"), []byte("not a tile"), 0644))

	output := filepath.Join(t.TempDir(), "out.pmtiles")
	extent, err := pack(input, output, "png", "strasbourg")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), extent.Count())

	raw, err := os.ReadFile(output)
	require.NoError(t, err)
	header, err := pmtiles.DeserializeHeader(raw[:pmtiles.HeaderV3LenBytes])
	require.NoError(t, err)
	assert.Equal(t, pmtiles.TileType(pmtiles.Png), header.TileType)
	assert.Equal(t, uint64(2), header.AddressedTilesCount)
	assert.Equal(t, uint8(10), header.MinZoom)
	assert.Equal(t, uint8(17), header.MaxZoom)

	_, err = pack(input, output, "png", "strasbourg")
	assert.Error(t, err, "existing output is not overwritten")
}

func Test_pack_empty(t *testing.T) {
	_, err := pack(t.TempDir(), filepath.Join(t.TempDir(), "out.pmtiles"), "png", "empty")
	assert.Error(t, err)
}
