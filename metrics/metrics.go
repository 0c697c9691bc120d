// Package metrics exposes Prometheus collectors for batch runs and the map server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homesgap/density/processing"
)

const namespace = "density"

// Area outcomes, the values of the status label.
const (
	StatusComputed = "computed"
	StatusCached   = "cached"
	StatusFailed   = "failed"
)

// Metrics holds the collectors on their own registry.
type Metrics struct {
	registry *prometheus.Registry
	areas    *prometheus.CounterVec
	duration prometheus.Histogram
	newHomes prometheus.Gauge
	requests *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		areas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "areas_total",
			Help:      "Areas processed, by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "area_duration_seconds",
			Help:      "Time to obtain the record of one area.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		newHomes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "new_homes",
			Help:      "Sum of the new homes estimates of the last run.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(m.areas, m.duration, m.newHomes, m.requests)
	return m
}

// ObserveArea counts a finished area.
func (m *Metrics) ObserveArea(result processing.Result, elapsed time.Duration) {
	status := StatusComputed
	switch {
	case result.Err != nil:
		status = StatusFailed
	case result.Cached:
		status = StatusCached
	}
	m.areas.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) SetNewHomes(total float64) {
	m.newHomes.Set(total)
}

func (m *Metrics) ObserveRequest(route string, status int) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
