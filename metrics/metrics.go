// Package metrics exports ranking fetch counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"airquality-service/ranking"
)

const namespace = "airquality"

// Recorder holds the service metrics on its own registry
type Recorder struct {
	registry *prometheus.Registry

	// FetchTotal counts per-location fetches by outcome.
	FetchTotal *prometheus.CounterVec

	// FetchDurationSeconds is the time spent on one location fetch.
	FetchDurationSeconds *prometheus.HistogramVec

	InFlight prometheus.Gauge

	LastRefreshSeconds prometheus.Gauge
}

// NewRecorder creates and registers the metrics
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "fetch_total",
			Help:      "Total number of ranking location fetches, labeled by outcome.",
		}, []string{"outcome"}),
		FetchDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "fetch_duration_seconds",
			Help:      "Time to fetch one ranking location from the provider.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"outcome"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "in_flight",
			Help:      "Current number of ranking fetches in flight.",
		}),
		LastRefreshSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last completed ranking refresh.",
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.FetchTotal,
		r.FetchDurationSeconds,
		r.InFlight,
		r.LastRefreshSeconds,
	)
	return r
}

// FetchStarted implements ranking.Observer
func (r *Recorder) FetchStarted() {
	r.InFlight.Inc()
}

// FetchFinished implements ranking.Observer
func (r *Recorder) FetchFinished(kind ranking.Kind, elapsed time.Duration) {
	r.InFlight.Dec()
	r.FetchTotal.WithLabelValues(kind.String()).Inc()
	r.FetchDurationSeconds.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

// RefreshCompleted records when a ranking refresh finished
func (r *Recorder) RefreshCompleted(at time.Time) {
	r.LastRefreshSeconds.Set(float64(at.Unix()))
}

// CacheSource is a lookup cache whose usage is exported
type CacheSource interface {
	CacheStats() (hits, misses int)
	Len() int
}

// RegisterCache exports hit, miss and size metrics for a named cache
func (r *Recorder) RegisterCache(name string, c CacheSource) error {
	labels := prometheus.Labels{"cache": name}
	hits := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "hits_total",
		Help:        "Total number of cache hits.",
		ConstLabels: labels,
	}, func() float64 {
		h, _ := c.CacheStats()
		return float64(h)
	})
	misses := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "misses_total",
		Help:        "Total number of cache misses.",
		ConstLabels: labels,
	}, func() float64 {
		_, m := c.CacheStats()
		return float64(m)
	})
	entries := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "entries",
		Help:        "Current number of cached entries, expired ones included until pruned.",
		ConstLabels: labels,
	}, func() float64 {
		return float64(c.Len())
	})

	for _, col := range []prometheus.Collector{hits, misses, entries} {
		if err := r.registry.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var _ ranking.Observer = (*Recorder)(nil)
