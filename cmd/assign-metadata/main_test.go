package main

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhoggr/tilefetch/logger"
	"github.com/nidhoggr/tilefetch/tilepack"
)

func Test_assign(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.mbtiles")
	out, err := tilepack.NewMbtilesOutputter(path, 0, tilepack.NewMbtilesMetadata(map[string]string{"name": "keep me"}))
	require.NoError(t, err)
	require.NoError(t, out.Save(maptile.New(1, 1, 1), []byte("a")))
	require.NoError(t, out.Save(maptile.New(0, 0, 2), []byte("b")))
	require.NoError(t, out.Close())

	require.NoError(t, assign(path))
	require.NoError(t, verify(path, logger.NewNop()))

	reader, err := tilepack.NewMbtilesReader(path)
	require.NoError(t, err)
	defer reader.Close()

	md, err := reader.Metadata()
	require.NoError(t, err)

	name, _ := md.Name()
	assert.Equal(t, "keep me", name)

	bounds, err := md.Bounds()
	require.NoError(t, err)
	assert.Equal(t, maptile.New(1, 1, 1).Bound().Union(maptile.New(0, 0, 2).Bound()), bounds)

	minZoom, err := md.MinZoom()
	require.NoError(t, err)
	assert.Equal(t, maptile.Zoom(1), minZoom)
	maxZoom, err := md.MaxZoom()
	require.NoError(t, err)
	assert.Equal(t, maptile.Zoom(2), maxZoom)
}

func Test_assign_empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mbtiles")
	out, err := tilepack.NewMbtilesOutputter(path, 0, nil)
	require.NoError(t, err)
	require.NoError(t, out.CreateTiles())
	require.NoError(t, out.Close())

	assert.Error(t, assign(path))
}
