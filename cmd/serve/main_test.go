package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhoggr/tilefetch/tilepack"
)

func Test_openReader(t *testing.T) {
	dir := t.TempDir()

	reader, err := openReader(dir, "")
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	archive := filepath.Join(dir, "tiles.mbtiles")
	out, err := tilepack.NewMbtilesOutputter(archive, 0, nil)
	require.NoError(t, err)
	require.NoError(t, out.Save(maptile.New(0, 0, 0), []byte("tile")))
	require.NoError(t, out.Close())

	reader, err = openReader(archive, "")
	require.NoError(t, err)
	td, err := reader.GetTile(maptile.New(0, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, td.Data)
	assert.Equal(t, "tile", string(*td.Data))
	require.NoError(t, reader.Close())

	other := filepath.Join(dir, "tiles.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))
	_, err = openReader(other, "")
	assert.Error(t, err)

	_, err = openReader(filepath.Join(dir, "missing"), "")
	assert.Error(t, err)
}
