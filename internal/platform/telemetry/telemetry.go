// Package telemetry exposes Prometheus metrics for the HTTP server and the
// dashboard pipeline.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds telemetry settings.
type Config struct {
	Namespace string
	// ProcessCollectors adds the Go runtime and process collectors.
	ProcessCollectors bool
}

// Provider owns a registry and the metrics recorded into it. Each provider
// has its own registry, so several can coexist in tests.
type Provider struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	dashboardBuilds *prometheus.CounterVec
	cacheHits       prometheus.Counter
	unavailable     *prometheus.CounterVec
	datasetRows     *prometheus.GaugeVec
	loads           *prometheus.CounterVec
}

// NewProvider registers every metric under cfg.Namespace (default "hf").
func NewProvider(cfg Config) *Provider {
	ns := cfg.Namespace
	if ns == "" {
		ns = "hf"
	}
	p := &Provider{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		dashboardBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dashboard_builds_total",
			Help:      "Dashboard panels computed, by panel",
		}, []string{"panel"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dashboard_cache_hits_total",
			Help:      "Dashboard requests served from the memo cache",
		}),
		unavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "view_unavailable_total",
			Help:      "Views skipped because a required column is missing",
		}, []string{"view"}),
		datasetRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "dataset_rows",
			Help:      "Rows per relation in the loaded snapshot",
		}, []string{"relation"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dataset_loads_total",
			Help:      "Dataset loads by outcome",
		}, []string{"outcome"}),
	}
	p.registry.MustRegister(
		p.httpRequests, p.httpDuration, p.dashboardBuilds,
		p.cacheHits, p.unavailable, p.datasetRows, p.loads,
	)
	if cfg.ProcessCollectors {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return p
}

// Registry returns the provider's registry.
func (p *Provider) Registry() *prometheus.Registry { return p.registry }

func (p *Provider) DashboardBuilt(panel string) { p.dashboardBuilds.WithLabelValues(panel).Inc() }
func (p *Provider) DashboardCacheHit()          { p.cacheHits.Inc() }
func (p *Provider) ViewUnavailable(view string) { p.unavailable.WithLabelValues(view).Inc() }

// DatasetLoaded records a load attempt and, on success, the row counts.
func (p *Provider) DatasetLoaded(rows map[string]int, err error) {
	if err != nil {
		p.loads.WithLabelValues("error").Inc()
		return
	}
	p.loads.WithLabelValues("ok").Inc()
	for rel, n := range rows {
		p.datasetRows.WithLabelValues(rel).Set(float64(n))
	}
}

// MetricsMiddleware records request counts and latency by route pattern.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			method := c.Request().Method
			p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			p.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}
