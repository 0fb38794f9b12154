// internal/monitoring/metrics.go

// Package monitoring exposes Prometheus metrics and health checks.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/MediaScrapexter/internal/media"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "mediascrapexter"

// Metrics holds the pipeline collectors. It satisfies media.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	pagesFetched  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	references    *prometheus.CounterVec
	storedFiles   *prometheus.CounterVec
	storedBytes   *prometheus.CounterVec
	recordsSaved  *prometheus.CounterVec
	pagesInFlight prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		pagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scraper",
			Name:      "pages_fetched_total",
			Help:      "Pages fetched, by fetch mode and result",
		}, []string{"mode", "result"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scraper",
			Name:      "page_fetch_duration_seconds",
			Help:      "Time spent fetching one page",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		references: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "references_total",
			Help:      "Media references processed, by tag kind and outcome",
		}, []string{"kind", "outcome"}),
		storedFiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "stored_files_total",
			Help:      "Media files stored, by category",
		}, []string{"category"}),
		storedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "stored_bytes_total",
			Help:      "Bytes of media stored, by category",
		}, []string{"category"}),
		recordsSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "records_saved_total",
			Help:      "Page records handed to the output backend, by result",
		}, []string{"backend", "result"}),
		pagesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scraper",
			Name:      "pages_in_flight",
			Help:      "Pages currently being processed",
		}),
	}
}

// RecordReference counts one processed media reference.
func (m *Metrics) RecordReference(kind media.TagKind, outcome media.Outcome) {
	m.references.WithLabelValues(kind.String(), string(outcome)).Inc()
}

// RecordStored counts one stored media file.
func (m *Metrics) RecordStored(category media.Category, bytes int64) {
	m.storedFiles.WithLabelValues(string(category)).Inc()
	m.storedBytes.WithLabelValues(string(category)).Add(float64(bytes))
}

// ObservePage records a page fetch.
func (m *Metrics) ObservePage(mode string, d time.Duration, err error) {
	m.fetchDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.pagesFetched.WithLabelValues(mode, result(err)).Inc()
}

// ObserveSave records a Save of n records.
func (m *Metrics) ObserveSave(backend string, n int, err error) {
	m.recordsSaved.WithLabelValues(backend, result(err)).Add(float64(n))
}

// PageStarted and PageDone track pages in flight.
func (m *Metrics) PageStarted() { m.pagesInFlight.Inc() }

func (m *Metrics) PageDone() { m.pagesInFlight.Dec() }

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
