package metrics

import (
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByRouteTemplate(t *testing.T) {
    m := New()
    e := echo.New()
    e.Use(m.Middleware())
    e.GET("/v1/devices/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

    for _, id := range []string{"1", "2"} {
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/devices/"+id, nil))
        require.Equal(t, http.StatusNoContent, rec.Code)
    }

    assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/v1/devices/:id", "GET", "204")))
}

func TestMiddlewareRecordsHandlerErrors(t *testing.T) {
    m := New()
    e := echo.New()
    e.Use(m.Middleware())
    e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })

    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

    assert.Equal(t, http.StatusTeapot, rec.Code)
    assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/boom", "GET", "418")))
}

func TestCounters(t *testing.T) {
    m := New()
    m.Transition("create", "ok")
    m.Transition("create", "ok")
    m.PublishFailed("session.started")
    m.DevicesRepaired(3)
    m.DevicesRepaired(0)
    m.EndingSoonAlert()
    m.Cache("hit")

    assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("create", "ok")))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.publishFailed.WithLabelValues("session.started")))
    assert.Equal(t, 3.0, testutil.ToFloat64(m.devicesRepaired))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.endingSoon))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheResults.WithLabelValues("hit")))
}

func TestNilMetricsIsSafe(t *testing.T) {
    var m *Metrics
    assert.NotPanics(t, func() {
        m.Transition("end", "error")
        m.PublishFailed("x")
        m.DevicesRepaired(1)
        m.EndingSoonAlert()
        m.Cache("miss")
    })
}

func TestHandlerExposesRegistry(t *testing.T) {
    m := New()
    m.EndingSoonAlert()

    rec := httptest.NewRecorder()
    m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), "gameground_ending_soon_alerts_total 1")
}
