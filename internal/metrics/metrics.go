// Package metrics holds the Prometheus collectors of the server and the Echo
// middleware that feeds the HTTP ones.
package metrics

import (
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promauto"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector.  A nil *Metrics records nothing.
type Metrics struct {
    reg *prometheus.Registry

    httpRequests    *prometheus.CounterVec
    httpDuration    *prometheus.HistogramVec
    transitions     *prometheus.CounterVec
    publishFailed   *prometheus.CounterVec
    devicesRepaired prometheus.Counter
    endingSoon      prometheus.Counter
    cacheResults    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
    reg := prometheus.NewRegistry()
    reg.MustRegister(
        collectors.NewGoCollector(),
        collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
    )
    f := promauto.With(reg)
    return &Metrics{
        reg: reg,
        httpRequests: f.NewCounterVec(prometheus.CounterOpts{
            Name: "gameground_http_requests_total",
            Help: "HTTP requests by route, method and status code",
        }, []string{"route", "method", "code"}),
        httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
            Name:    "gameground_http_request_duration_seconds",
            Help:    "HTTP request latency by route",
            Buckets: prometheus.DefBuckets,
        }, []string{"route", "method"}),
        transitions: f.NewCounterVec(prometheus.CounterOpts{
            Name: "gameground_session_transitions_total",
            Help: "Session lifecycle operations by kind and outcome",
        }, []string{"transition", "outcome"}),
        publishFailed: f.NewCounterVec(prometheus.CounterOpts{
            Name: "gameground_event_publish_failures_total",
            Help: "Session events that could not be handed to the broker",
        }, []string{"type"}),
        devicesRepaired: f.NewCounter(prometheus.CounterOpts{
            Name: "gameground_devices_reconciled_total",
            Help: "Device statuses repaired by the reconciler",
        }),
        endingSoon: f.NewCounter(prometheus.CounterOpts{
            Name: "gameground_ending_soon_alerts_total",
            Help: "Ending-soon notifications emitted by the expiry watcher",
        }),
        cacheResults: f.NewCounterVec(prometheus.CounterOpts{
            Name: "gameground_response_cache_total",
            Help: "Response cache lookups by result (hit, miss, bypass)",
        }, []string{"result"}),
    }
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
    return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Transition(kind, outcome string) {
    if m == nil {
        return
    }
    m.transitions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) PublishFailed(eventType string) {
    if m == nil {
        return
    }
    m.publishFailed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) DevicesRepaired(n int) {
    if m == nil || n <= 0 {
        return
    }
    m.devicesRepaired.Add(float64(n))
}

func (m *Metrics) EndingSoonAlert() {
    if m == nil {
        return
    }
    m.endingSoon.Inc()
}

func (m *Metrics) Cache(result string) {
    if m == nil {
        return
    }
    m.cacheResults.WithLabelValues(result).Inc()
}

// Middleware records one request count and latency sample per request,
// labelled with the route template rather than the raw path.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if m == nil {
                return next(c)
            }
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }
            route := c.Path()
            if route == "" {
                route = "unmatched"
            }
            method := c.Request().Method
            m.httpRequests.WithLabelValues(route, method, strconv.Itoa(c.Response().Status)).Inc()
            m.httpDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
            return nil
        }
    }
}
