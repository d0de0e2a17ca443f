package main

import (
	"path/filepath"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhoggr/tilefetch/config"
	"github.com/nidhoggr/tilefetch/tilepack"
)

func Test_parseBounds(t *testing.T) {
	t.Run("strasbourg", func(t *testing.T) {
		b, err := parseBounds("48.5130, 7.6350, 48.6500, 7.8760")
		require.NoError(t, err)
		assert.Equal(t, tilepack.BoundingBox{MinLat: 48.513, MinLon: 7.635, MaxLat: 48.65, MaxLon: 7.876}, b)
		assert.Equal(t, uint64(6764), tilepack.ComputeGridRange(b, 17).Count())
	})

	t.Run("whole world", func(t *testing.T) {
		b, err := parseBounds("-90,-180,90,180")
		require.NoError(t, err)
		assert.Equal(t, uint64(16), tilepack.ComputeGridRange(b, 2).Count())
	})

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "48.65,7.635,48.513,7.876"} {
		_, err := parseBounds(bad)
		assert.Error(t, err, bad)
	}
}

func Test_newOutputter(t *testing.T) {
	cfg, err := config.Parse(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)

	cfg.OutputMode = config.OutputModeMbtiles
	cfg.OutDir = filepath.Join(t.TempDir(), "strasbourg")

	out, err := newOutputter(cfg)
	require.NoError(t, err)
	require.NoError(t, out.CreateTiles())
	require.NoError(t, out.Close())

	reader, err := tilepack.NewMbtilesReader(cfg.OutDir + ".mbtiles")
	require.NoError(t, err)
	defer reader.Close()

	md, err := reader.Metadata()
	require.NoError(t, err)
	format, _ := md.Format()
	assert.Equal(t, "png", format)
	maxZoom, err := md.MaxZoom()
	require.NoError(t, err)
	assert.Equal(t, maptile.Zoom(17), maxZoom)
}

func Test_flagsReadConfigEnv(t *testing.T) {
	want := map[string]string{
		ZOOM:        "TILEFETCH_ZOOM",
		OUTDIR:      "TILEFETCH_OUT_DIR",
		OUTPUTMODE:  "TILEFETCH_OUTPUT_MODE",
		URLTEMPLATE: "TILEFETCH_UPSTREAM_URL_TEMPLATE",
		EXT:         "TILEFETCH_UPSTREAM_EXT",
		DELAY:       "TILEFETCH_DELAY",
		COOLDOWN:    "TILEFETCH_COOLDOWN",
		LOGLEVEL:    "TILEFETCH_LOG_LEVEL",
		PUSHGATEWAY: "TILEFETCH_PUSHGATEWAY_URL",
	}

	for _, f := range flags() {
		envFlag, ok := f.(interface{ GetEnvVars() []string })
		require.True(t, ok)
		name := f.Names()[0]
		envVars := envFlag.GetEnvVars()
		require.NotEmpty(t, envVars, name)
		if env, ok := want[name]; ok {
			assert.Equal(t, []string{env}, envVars, name)
		}
	}
}
