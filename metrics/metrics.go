package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Fetch holds the collectors updated by a fetch run. A nil *Fetch is valid and
// records nothing.
type Fetch struct {
	Tiles        *prometheus.CounterVec
	Duration     prometheus.Histogram
	BytesWritten prometheus.Counter
}

func NewFetch(reg prometheus.Registerer) *Fetch {
	factory := promauto.With(reg)

	return &Fetch{
		Tiles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tilefetch_tiles_total",
			Help: "Tiles processed by outcome (fetched, cached, rate_limited, failed)",
		}, []string{"outcome"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tilefetch_fetch_duration_seconds",
			Help:    "Latency of upstream tile requests in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilefetch_bytes_written_total",
			Help: "Tile bytes written to the output",
		}),
	}
}

func (m *Fetch) ObserveTile(outcome string, elapsed time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.Tiles.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.Duration.Observe(elapsed.Seconds())
	}
	if bytes > 0 {
		m.BytesWritten.Add(float64(bytes))
	}
}

// Serve holds the collectors updated by the tile server.
type Serve struct {
	Requests *prometheus.CounterVec
}

func NewServe(reg prometheus.Registerer) *Serve {
	return &Serve{
		Requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "tileserve_requests_total",
			Help: "Tile requests served by status (hit, miss, error)",
		}, []string{"status"}),
	}
}

func (m *Serve) ObserveRequest(status string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(status).Inc()
}

// Push sends everything in g to a Prometheus Pushgateway under the given job name.
func Push(ctx context.Context, url string, job string, g prometheus.Gatherer) error {
	return push.New(url, job).Gatherer(g).PushContext(ctx)
}
