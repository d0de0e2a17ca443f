package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb/maptile"

	"github.com/nidhoggr/tilefetch/tilepack"
)

const (
	OutputModeDisk    = "disk"
	OutputModeMbtiles = "mbtiles"
)

type (
	Config struct {
		Zoom       uint   `env:"ZOOM" envDefault:"17" validate:"lte=24"`
		OutDir     string `env:"OUT_DIR" envDefault:"tiles" validate:"required"`
		OutputMode string `env:"OUTPUT_MODE" envDefault:"disk" validate:"oneof=disk mbtiles"`

		Upstream Upstream `envPrefix:"UPSTREAM_"`
		Bounds   Bounds
		Throttle Throttle
		Logger   Logger `envPrefix:"LOG_"`

		ProgressEvery  int    `env:"PROGRESS_EVERY" envDefault:"50" validate:"gte=0"`
		PushgatewayURL string `env:"PUSHGATEWAY_URL" validate:"omitempty,url"`
	}

	Upstream struct {
		URLTemplate string        `env:"URL_TEMPLATE" envDefault:"https://tile.openstreetmap.org/{z}/{x}/{y}.{ext}" validate:"required"`
		Ext         string        `env:"EXT" envDefault:"png" validate:"required,alphanum"`
		UserAgent   string        `env:"USER_AGENT" envDefault:"tilefetch/1.0 (+https://github.com/nidhoggr/tilefetch)" validate:"required"`
		Referer     string        `env:"REFERER" envDefault:"https://www.openstreetmap.org/"`
		Timeout     time.Duration `env:"TIMEOUT" envDefault:"20s" validate:"gt=0"`
	}

	Bounds struct {
		MinLat float64 `env:"MIN_LAT" envDefault:"48.5130" validate:"gt=-90,lt=90"`
		MinLon float64 `env:"MIN_LON" envDefault:"7.6350" validate:"gte=-180,lte=180"`
		MaxLat float64 `env:"MAX_LAT" envDefault:"48.6500" validate:"gt=-90,lt=90,gtfield=MinLat"`
		MaxLon float64 `env:"MAX_LON" envDefault:"7.8760" validate:"gte=-180,lte=180,gtfield=MinLon"`
	}

	Throttle struct {
		Delay          time.Duration `env:"DELAY" envDefault:"2s" validate:"gte=0"`
		Cooldown       time.Duration `env:"COOLDOWN" envDefault:"60s" validate:"gte=0"`
		ThrottleCached bool          `env:"THROTTLE_CACHE_HITS" envDefault:"true"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info"`
	}
)

// Prefix is prepended to every environment variable name.
const Prefix = "TILEFETCH_"

// New loads an optional .env file and parses the TILEFETCH_* environment.
// The result is not validated yet so callers can apply flag overrides first.
func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	return Parse(env.Options{Prefix: Prefix})
}

func Parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	for _, placeholder := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(c.Upstream.URLTemplate, placeholder) {
			return fmt.Errorf("invalid config: URL template %q is missing %s", c.Upstream.URLTemplate, placeholder)
		}
	}

	return nil
}

func (c *Config) BoundingBox() tilepack.BoundingBox {
	return tilepack.BoundingBox{
		MinLat: c.Bounds.MinLat,
		MinLon: c.Bounds.MinLon,
		MaxLat: c.Bounds.MaxLat,
		MaxLon: c.Bounds.MaxLon,
	}
}

func (c *Config) ZoomLevel() maptile.Zoom {
	return maptile.Zoom(c.Zoom)
}
