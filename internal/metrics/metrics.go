// Package metrics exposes chunk-level Prometheus metrics for long
// transcription runs. All metrics live in a private registry so embedding
// applications keep their default registry clean.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements the orchestrator's Recorder over Prometheus
// collectors.
type Metrics struct {
	registry        *prometheus.Registry
	chunksStarted   prometheus.Counter
	chunksRetried   prometheus.Counter
	chunksSucceeded prometheus.Counter
	chunksFailed    prometheus.Counter
	inFlight        prometheus.Gauge
	chunkLatency    prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	chunksStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voxchunk_chunks_started_total",
		Help: "Total number of chunk attempts dispatched",
	})
	chunksRetried := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voxchunk_chunks_retried_total",
		Help: "Total number of chunk attempts retried after transient failures",
	})
	chunksSucceeded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voxchunk_chunks_succeeded_total",
		Help: "Total number of chunks transcribed successfully",
	})
	chunksFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voxchunk_chunks_failed_total",
		Help: "Total number of chunks that failed permanently",
	})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "voxchunk_chunks_in_flight",
		Help: "Number of chunk requests currently outstanding",
	})
	chunkLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "voxchunk_chunk_latency_seconds",
		Help:    "Wall-clock latency of terminal chunk attempts",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	registry.MustRegister(
		chunksStarted,
		chunksRetried,
		chunksSucceeded,
		chunksFailed,
		inFlight,
		chunkLatency,
	)

	return &Metrics{
		registry:        registry,
		chunksStarted:   chunksStarted,
		chunksRetried:   chunksRetried,
		chunksSucceeded: chunksSucceeded,
		chunksFailed:    chunksFailed,
		inFlight:        inFlight,
		chunkLatency:    chunkLatency,
	}
}

// ChunkStarted counts a dispatched attempt and raises the in-flight gauge.
func (m *Metrics) ChunkStarted() {
	m.chunksStarted.Inc()
	m.inFlight.Inc()
}

// ChunkRetried counts a transient failure that will be retried.
func (m *Metrics) ChunkRetried() {
	m.chunksRetried.Inc()
	m.inFlight.Dec()
}

// ChunkSucceeded counts a completed chunk and observes its latency.
func (m *Metrics) ChunkSucceeded(latencySeconds float64) {
	m.chunksSucceeded.Inc()
	m.inFlight.Dec()
	m.chunkLatency.Observe(latencySeconds)
}

// ChunkFailed counts a permanently failed chunk.
func (m *Metrics) ChunkFailed() {
	m.chunksFailed.Inc()
	m.inFlight.Dec()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Router mounts the metrics and health endpoints.
func (m *Metrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve runs a metrics listener on addr until the server fails. Callers
// run it in a goroutine; errors surface through the returned channel.
func (m *Metrics) Serve(addr string) (*http.Server, <-chan error) {
	srv := &http.Server{Addr: addr, Handler: m.Router()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	return srv, errCh
}
