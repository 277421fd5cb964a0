package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsRequests(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	e := echo.New()

	run := func(path string, h echo.HandlerFunc) {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/patient/abc", nil), httptest.NewRecorder())
		c.SetPath(path)
		_ = m.Middleware()(h)(c)
	}
	run("/v1/patient/:patient_id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	run("/v1/patient/:patient_id", func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound) })
	run("", func(c echo.Context) error { return errors.New("boom") })

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/patient/:patient_id", "200")); got != 1 {
		t.Errorf("expected one 200, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/patient/:patient_id", "404")); got != 1 {
		t.Errorf("expected one 404, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "500")); got != 1 {
		t.Errorf("expected one unmatched 500, got %v", got)
	}
}

func TestMetrics_ObserveLogin(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveLogin("success")
	m.ObserveLogin("success")
	m.ObserveLogin("rejected")

	if got := testutil.ToFloat64(m.logins.WithLabelValues("success")); got != 2 {
		t.Errorf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues("rejected")); got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveLogin("success")

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)
	if err := m.Handler()(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `patient_api_login_attempts_total{outcome="success"} 1`) {
		t.Errorf("expected login counter in exposition, got %s", rec.Body.String())
	}
}
