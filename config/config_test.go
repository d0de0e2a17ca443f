package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhoggr/tilefetch/tilepack"
)

func parse(t *testing.T, environment map[string]string) *Config {
	t.Helper()
	cfg, err := Parse(env.Options{Prefix: Prefix, Environment: environment})
	require.NoError(t, err)
	return cfg
}

func TestParse_Defaults(t *testing.T) {
	cfg := parse(t, map[string]string{})

	assert.Equal(t, uint(17), cfg.Zoom)
	assert.Equal(t, maptile.Zoom(17), cfg.ZoomLevel())
	assert.Equal(t, "tiles", cfg.OutDir)
	assert.Equal(t, OutputModeDisk, cfg.OutputMode)
	assert.Equal(t, "https://tile.openstreetmap.org/{z}/{x}/{y}.{ext}", cfg.Upstream.URLTemplate)
	assert.Equal(t, "png", cfg.Upstream.Ext)
	assert.Equal(t, "https://www.openstreetmap.org/", cfg.Upstream.Referer)
	assert.NotEmpty(t, cfg.Upstream.UserAgent)
	assert.Equal(t, 20*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Throttle.Delay)
	assert.Equal(t, 60*time.Second, cfg.Throttle.Cooldown)
	assert.True(t, cfg.Throttle.ThrottleCached)
	assert.Equal(t, 50, cfg.ProgressEvery)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, tilepack.BoundingBox{MinLat: 48.5130, MinLon: 7.6350, MaxLat: 48.6500, MaxLon: 7.8760}, cfg.BoundingBox())

	require.NoError(t, cfg.Validate())
}

func TestParse_Overrides(t *testing.T) {
	cfg := parse(t, map[string]string{
		"TILEFETCH_ZOOM":                  "12",
		"TILEFETCH_OUT_DIR":               "/var/cache/tiles",
		"TILEFETCH_OUTPUT_MODE":           "mbtiles",
		"TILEFETCH_UPSTREAM_URL_TEMPLATE": "https://tile.openstreetmap.fr/osmfr/{z}/{x}/{y}.png",
		"TILEFETCH_UPSTREAM_USER_AGENT":   "tilefetch-test/1.0 (tests@example.org)",
		"TILEFETCH_DELAY":                 "500ms",
		"TILEFETCH_THROTTLE_CACHE_HITS":   "false",
		"TILEFETCH_MIN_LAT":               "51.4",
		"TILEFETCH_MAX_LAT":               "51.6",
		"TILEFETCH_MIN_LON":               "-0.3",
		"TILEFETCH_MAX_LON":               "0.1",
		"TILEFETCH_LOG_LEVEL":             "debug",
	})

	assert.Equal(t, uint(12), cfg.Zoom)
	assert.Equal(t, "/var/cache/tiles", cfg.OutDir)
	assert.Equal(t, OutputModeMbtiles, cfg.OutputMode)
	assert.Equal(t, "tilefetch-test/1.0 (tests@example.org)", cfg.Upstream.UserAgent)
	assert.Equal(t, 500*time.Millisecond, cfg.Throttle.Delay)
	assert.False(t, cfg.Throttle.ThrottleCached)
	assert.Equal(t, -0.3, cfg.Bounds.MinLon)
	assert.Equal(t, "debug", cfg.Logger.Level)

	require.NoError(t, cfg.Validate())
}

func TestParse_BadValue(t *testing.T) {
	_, err := Parse(env.Options{Prefix: Prefix, Environment: map[string]string{"TILEFETCH_ZOOM": "seventeen"}})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"inverted latitudes", func(c *Config) { c.Bounds.MinLat, c.Bounds.MaxLat = c.Bounds.MaxLat, c.Bounds.MinLat }},
		{"inverted longitudes", func(c *Config) { c.Bounds.MinLon, c.Bounds.MaxLon = c.Bounds.MaxLon, c.Bounds.MinLon }},
		{"pole latitude", func(c *Config) { c.Bounds.MaxLat = 90 }},
		{"zoom too deep", func(c *Config) { c.Zoom = 25 }},
		{"unknown output mode", func(c *Config) { c.OutputMode = "s3" }},
		{"empty user agent", func(c *Config) { c.Upstream.UserAgent = "" }},
		{"zero timeout", func(c *Config) { c.Upstream.Timeout = 0 }},
		{"negative delay", func(c *Config) { c.Throttle.Delay = -time.Second }},
		{"template without y", func(c *Config) { c.Upstream.URLTemplate = "https://example.org/{z}/{x}.png" }},
		{"bad pushgateway", func(c *Config) { c.PushgatewayURL = "not a url" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parse(t, map[string]string{})
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvVars(t *testing.T) {
	assert.Equal(t, []string{"TILEFETCH_LISTEN"}, EnvVars("listen"))
	assert.Equal(t, []string{"TILEFETCH_BATCH_SIZE"}, EnvVars("batchSize"))
}
