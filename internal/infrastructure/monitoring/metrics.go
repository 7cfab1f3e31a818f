// Package monitoring holds the engine's prometheus metrics and the gin
// middleware that feeds the HTTP series.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Engine metrics
	UpdateChecks    *prometheus.CounterVec
	PublishesTotal  *prometheus.CounterVec
	BytesStreamed   prometheus.Counter
	RegistryApps    prometheus.Gauge
	RegistryVers    prometheus.Gauge
	CatalogPackages prometheus.Gauge

	// Event feed metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates and registers the metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updrift_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "updrift_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		UpdateChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updrift_update_checks_total",
				Help: "Update resolutions by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		PublishesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updrift_publishes_total",
				Help: "Published packages by kind",
			},
			[]string{"kind"},
		),
		BytesStreamed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "updrift_streamed_bytes_total",
				Help: "Package bytes served to clients",
			},
		),
		RegistryApps: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "updrift_registry_apps",
				Help: "Registered applications",
			},
		),
		RegistryVers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "updrift_registry_versions",
				Help: "Published versions across all apps",
			},
		),
		CatalogPackages: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "updrift_catalog_packages",
				Help: "Package records in the catalog",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "updrift_ws_connections",
				Help: "Active event-feed connections",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "updrift_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncUpdateChecks counts one resolution by mode and outcome.
func (m *Metrics) IncUpdateChecks(mode, outcome string) {
	m.UpdateChecks.WithLabelValues(mode, outcome).Inc()
}

// IncPublishes counts one published package by kind.
func (m *Metrics) IncPublishes(kind string) {
	m.PublishesTotal.WithLabelValues(kind).Inc()
}

// AddBytesStreamed counts bytes served to a client.
func (m *Metrics) AddBytesStreamed(n int64) {
	if n > 0 {
		m.BytesStreamed.Add(float64(n))
	}
}

// SetRegistryApps sets the registered-app gauge.
func (m *Metrics) SetRegistryApps(count int) {
	m.RegistryApps.Set(float64(count))
}

// SetRegistryVersions sets the published-version gauge.
func (m *Metrics) SetRegistryVersions(count int) {
	m.RegistryVers.Set(float64(count))
}

// SetCatalogPackages sets the catalog-package gauge.
func (m *Metrics) SetCatalogPackages(count int) {
	m.CatalogPackages.Set(float64(count))
}

// IncWSConnections increments event-feed connections.
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements event-feed connections.
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
