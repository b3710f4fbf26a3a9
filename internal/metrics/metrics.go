// Package metrics exposes Prometheus counters for the mock server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mockllm"

// Collector owns a private registry so tests and multiple servers in one
// process do not collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	resolutionErrors *prometheus.CounterVec
	configReloads    *prometheus.CounterVec
	streamChunks     *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Chat requests served, by protocol, streaming flag and HTTP status.",
			},
			[]string{"protocol", "stream", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Chat request duration including simulated latency.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"protocol", "stream"},
		),
		resolutionErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_errors_total",
				Help:      "Failed resolutions by kind (config, resolver, canceled, internal).",
			},
			[]string{"kind"},
		),
		configReloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Response config reloads by result.",
			},
			[]string{"result"},
		),
		streamChunks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_chunks_total",
				Help:      "SSE frames written, by protocol.",
			},
			[]string{"protocol"},
		),
	}
}

func (c *Collector) ObserveRequest(protocol string, stream bool, status int, d time.Duration) {
	s := strconv.FormatBool(stream)
	c.requestsTotal.WithLabelValues(protocol, s, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(protocol, s).Observe(d.Seconds())
}

func (c *Collector) ResolutionError(kind string) {
	c.resolutionErrors.WithLabelValues(kind).Inc()
}

// ConfigReload matches config.WithReloadHook.
func (c *Collector) ConfigReload(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.configReloads.WithLabelValues(result).Inc()
}

func (c *Collector) StreamFrames(protocol string, n int) {
	c.streamChunks.WithLabelValues(protocol).Add(float64(n))
}

// Registry is exposed for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
