package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders_SetsAPIHeaders(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/patient/abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/patient/:patient_id")

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	if err := SecurityHeaders(nil)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Referrer-Policy":           "no-referrer",
		"Cache-Control":             "no-store",
	}
	for header, want := range expected {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("header %s: got %q, want %q", header, got, want)
		}
	}
}

func TestSecurityHeaders_PagePolicyByRoute(t *testing.T) {
	pages := map[string]string{"/v1/swagger-ui": "default-src 'self'"}
	mw := SecurityHeaders(pages)
	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	tests := []struct {
		path string
		want string
	}{
		{"/v1/swagger-ui", "default-src 'self'"},
		{"/v1/openapi.json", "default-src 'none'; frame-ancestors 'none'"},
	}
	for _, tt := range tests {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.path, nil), rec)
		c.SetPath(tt.path)

		if err := mw(handler)(c); err != nil {
			t.Fatal(err)
		}
		if got := rec.Header().Get("Content-Security-Policy"); got != tt.want {
			t.Errorf("%s: expected CSP %q, got %q", tt.path, tt.want, got)
		}
	}
}
