package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/cyberguard-api/internal/models"
)

const metricsNamespace = "cyberguard"

// MetricsService encapsulates Prometheus instrumentation on a private registry.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	analysisLatency *prometheus.HistogramVec
	criticalAreas   *prometheus.GaugeVec
	escalations     *prometheus.CounterVec
	escalatedTotal  *prometheus.CounterVec
	hotspotAlerts   *prometheus.CounterVec
}

// NewMetricsService registers the service collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	analysisLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "critical_area_analysis_seconds",
		Help:      "Time spent analysing critical areas",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"mode"})

	criticalAreas := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "critical_areas",
		Help:      "Critical areas found by the most recent analysis",
	}, []string{"mode", "severity"})

	escalations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "escalations_total",
		Help:      "Escalation attempts by outcome",
	}, []string{"outcome"})

	escalatedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "escalated_reports_total",
		Help:      "Per report status updates issued by escalations",
	}, []string{"result"})

	hotspotAlerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "hotspot_alerts_total",
		Help:      "Hotspot alerts published by severity",
	}, []string{"severity"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		analysisLatency, criticalAreas, escalations, escalatedTotal, hotspotAlerts, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		analysisLatency: analysisLatency,
		criticalAreas:   criticalAreas,
		escalations:     escalations,
		escalatedTotal:  escalatedTotal,
		hotspotAlerts:   hotspotAlerts,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup and its latency.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveAnalysis records analysis latency and the resulting area counts.
func (m *MetricsService) ObserveAnalysis(mode string, analysis models.CriticalAreaAnalysis, duration time.Duration) {
	if m == nil {
		return
	}
	m.analysisLatency.WithLabelValues(mode).Observe(duration.Seconds())
	counts := map[models.Severity]int{
		models.SeverityLow: 0, models.SeverityMedium: 0, models.SeverityHigh: 0, models.SeverityCritical: 0,
	}
	for _, area := range analysis.Areas {
		counts[area.Severity]++
	}
	for severity, n := range counts {
		m.criticalAreas.WithLabelValues(mode, string(severity)).Set(float64(n))
	}
}

// ObserveEscalation counts an escalation attempt and its per report results.
func (m *MetricsService) ObserveEscalation(result *models.EscalationResult) {
	if m == nil || result == nil {
		return
	}
	outcome := "no_pattern"
	switch {
	case result.Success && result.FailedCount > 0:
		outcome = "partial"
	case result.Success:
		outcome = "success"
	case len(result.CriticalPatterns) > 0:
		outcome = "failed"
	}
	m.escalations.WithLabelValues(outcome).Inc()
	m.escalatedTotal.WithLabelValues("reported").Add(float64(result.ReportedCount))
	m.escalatedTotal.WithLabelValues("failed").Add(float64(result.FailedCount))
	m.escalatedTotal.WithLabelValues("skipped").Add(float64(result.SkippedCount))
}

// RecordHotspotAlert counts a published hotspot alert.
func (m *MetricsService) RecordHotspotAlert(severity models.Severity) {
	if m == nil {
		return
	}
	m.hotspotAlerts.WithLabelValues(string(severity)).Inc()
}
