package http

import (
	"bytes"
	"fmt"
	gohttp "net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/maptile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nidhoggr/tilefetch/logger"
	"github.com/nidhoggr/tilefetch/metrics"
	"github.com/nidhoggr/tilefetch/tilepack"
)

const maxZoom = 30

var gzipMagic = []byte{0x1f, 0x8b}

type RouterOptions struct {
	Reader   tilepack.TileReader
	Logger   logger.Logger
	Metrics  *metrics.Serve
	Gatherer prometheus.Gatherer
	// MaxAge sets Cache-Control on tile responses when positive.
	MaxAge time.Duration
}

// NewRouter serves tiles at /tiles/{z}/{x}/{y}.{ext} together with /healthz
// and /metrics.
func NewRouter(opts *RouterOptions) gohttp.Handler {
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}

	r := chi.NewRouter()
	r.Use(recoverer(l))
	r.Use(requestLogger(l))

	r.Get("/healthz", func(w gohttp.ResponseWriter, r *gohttp.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(gohttp.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	if opts.Gatherer != nil {
		r.Get("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	}

	r.Get("/tiles/{z}/{x}/{y}.{ext}", TileHandler(opts.Reader, l, opts.Metrics, opts.MaxAge))

	return r
}

func TileHandler(reader tilepack.TileReader, l logger.Logger, m *metrics.Serve, maxAge time.Duration) gohttp.HandlerFunc {
	return func(w gohttp.ResponseWriter, r *gohttp.Request) {
		requestedTile, err := parseTile(chi.URLParam(r, "z"), chi.URLParam(r, "x"), chi.URLParam(r, "y"))
		if err != nil {
			m.ObserveRequest("invalid")
			gohttp.Error(w, err.Error(), gohttp.StatusBadRequest)
			return
		}

		result, err := reader.GetTile(requestedTile)
		if err != nil {
			l.Error("error getting tile", "z", requestedTile.Z, "x", requestedTile.X, "y", requestedTile.Y, "error", err)
			m.ObserveRequest("error")
			gohttp.Error(w, "internal server error", gohttp.StatusInternalServerError)
			return
		}

		if result.Data == nil {
			m.ObserveRequest("miss")
			gohttp.NotFound(w, r)
			return
		}

		data := *result.Data
		if bytes.HasPrefix(data, gzipMagic) {
			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Set("Content-Type", "application/x-protobuf")
		} else {
			w.Header().Set("Content-Type", tilepack.ContentType(data))
		}
		if maxAge > 0 {
			w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))

		m.ObserveRequest("hit")
		_, _ = w.Write(data)
	}
}

func parseTile(zs, xs, ys string) (maptile.Tile, error) {
	z, err := strconv.ParseUint(zs, 10, 32)
	if err != nil || z > maxZoom {
		return maptile.Tile{}, fmt.Errorf("invalid zoom %q", zs)
	}
	x, err := strconv.ParseUint(xs, 10, 32)
	if err != nil {
		return maptile.Tile{}, fmt.Errorf("invalid column %q", xs)
	}
	y, err := strconv.ParseUint(ys, 10, 32)
	if err != nil {
		return maptile.Tile{}, fmt.Errorf("invalid row %q", ys)
	}

	n := uint64(1) << z
	if x >= n || y >= n {
		return maptile.Tile{}, fmt.Errorf("tile %d/%d/%d is outside the grid", z, x, y)
	}

	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), nil
}
