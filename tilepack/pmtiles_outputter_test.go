package tilepack

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/protomaps/go-pmtiles/pmtiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPmtilesOutputter(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "tiles.pmtiles")
	out, err := NewPmtilesOutputter(dsn, "png", NewMbtilesMetadata(map[string]string{"name": "strasbourg"}))
	require.NoError(t, err)
	require.NoError(t, out.CreateTiles())

	tiles := []maptile.Tile{
		maptile.New(534, 353, 10),
		maptile.New(535, 353, 10),
		maptile.New(68315, 45206, 17),
	}
	for _, tile := range tiles {
		require.NoError(t, out.Save(tile, pngBytes))
	}
	require.NoError(t, out.Save(tiles[0], jpegBytes), "second save is ignored")

	has, err := out.Has(tiles[1])
	require.NoError(t, err)
	assert.True(t, has)
	has, err = out.Has(maptile.New(0, 0, 0))
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, out.Close())

	raw, err := os.ReadFile(dsn)
	require.NoError(t, err)
	require.Greater(t, len(raw), pmtiles.HeaderV3LenBytes)

	header, err := pmtiles.DeserializeHeader(raw[:pmtiles.HeaderV3LenBytes])
	require.NoError(t, err)

	assert.Equal(t, uint8(3), header.SpecVersion)
	assert.Equal(t, pmtiles.TileType(pmtiles.Png), header.TileType)
	assert.Equal(t, pmtiles.Compression(pmtiles.NoCompression), header.TileCompression)
	assert.Equal(t, uint64(3), header.AddressedTilesCount)
	assert.Equal(t, uint64(1), header.TileContentsCount)
	assert.Equal(t, uint8(10), header.MinZoom)
	assert.Equal(t, uint8(17), header.MaxZoom)
	assert.Less(t, header.MinLonE7, header.MaxLonE7)
	assert.Less(t, header.MinLatE7, header.MaxLatE7)
	assert.Equal(t, uint64(len(pngBytes)), header.TileDataLength)
	assert.Equal(t, uint64(len(raw)), header.TileDataOffset+header.TileDataLength)
	assert.Equal(t, pngBytes, raw[header.TileDataOffset:])
}

func TestPmtilesOutputter_GzipsVectorTiles(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "vector.pmtiles")
	out, err := NewPmtilesOutputter(dsn, "pbf", nil)
	require.NoError(t, err)

	raw := []byte("not really a vector tile")
	require.NoError(t, out.Save(maptile.New(0, 0, 0), raw))
	require.NoError(t, out.Close())

	archive, err := os.ReadFile(dsn)
	require.NoError(t, err)
	header, err := pmtiles.DeserializeHeader(archive[:pmtiles.HeaderV3LenBytes])
	require.NoError(t, err)

	assert.Equal(t, pmtiles.TileType(pmtiles.Mvt), header.TileType)
	assert.Equal(t, pmtiles.Compression(pmtiles.Gzip), header.TileCompression)

	stored := archive[header.TileDataOffset : header.TileDataOffset+header.TileDataLength]
	zr, err := gzip.NewReader(bytes.NewReader(stored))
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestRunLengthEncode(t *testing.T) {
	entries := []pmtiles.EntryV3{
		{TileID: 7, Offset: 10, Length: 5, RunLength: 1},
		{TileID: 5, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 6, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 9, Offset: 10, Length: 5, RunLength: 1},
	}

	got := runLengthEncode(entries)

	assert.Equal(t, []pmtiles.EntryV3{
		{TileID: 5, Offset: 0, Length: 10, RunLength: 2},
		{TileID: 7, Offset: 10, Length: 5, RunLength: 1},
		{TileID: 9, Offset: 10, Length: 5, RunLength: 1},
	}, got)
}
