package httperr

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHandler_HTTPError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/patient/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	Handler(zerolog.Nop())(echo.NewHTTPError(http.StatusNotFound, "Patient 123 not found"), c)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body.StatusCode != 404 || body.Reason != "Not Found" || body.Message != "Patient 123 not found" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestHandler_InternalErrorIsNotLeaked(t *testing.T) {
	var logs bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/patient", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-1")

	Handler(zerolog.New(&logs))(errors.New("pq: relation \"patient\" does not exist"), c)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body.Message != "internal server error" {
		t.Errorf("expected generic message, got %q", body.Message)
	}
	if body.Reason != "Internal Server Error" {
		t.Errorf("expected canonical reason, got %q", body.Reason)
	}
	if !strings.Contains(logs.String(), "relation") || !strings.Contains(logs.String(), "req-1") {
		t.Errorf("expected cause and request id in logs, got %s", logs.String())
	}
}

func TestHandler_InvalidJSONReason(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/login", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	Handler(zerolog.Nop())(InvalidJSON(http.StatusBadRequest, "bad %s", "body"), c)

	body := decodeBody(t, rec)
	if body.StatusCode != 400 || body.Reason != ReasonInvalidJSON || body.Message != "bad body" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestHandler_HeadHasNoBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodHead, "/v1/patient/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	Handler(zerolog.Nop())(echo.ErrNotFound, c)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func bindRequest(body, contentType string) (echo.Context, *loginBody, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	var dst loginBody
	err := BindJSON(c, &dst)
	return c, &dst, err
}

func TestBindJSON_Valid(t *testing.T) {
	_, dst, err := bindRequest(`{"username":"admin","password":"apidocpass"}`, "application/json; charset=utf-8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Username != "admin" || dst.Password != "apidocpass" {
		t.Errorf("unexpected decode result: %+v", dst)
	}
}

func TestBindJSON_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		code        int
	}{
		{"syntax", `{"username":`, echo.MIMEApplicationJSON, http.StatusBadRequest},
		{"unknown field", `{"username":"a","password":"b","role":"root"}`, echo.MIMEApplicationJSON, http.StatusBadRequest},
		{"wrong type", `{"username":1}`, echo.MIMEApplicationJSON, http.StatusBadRequest},
		{"empty", ``, echo.MIMEApplicationJSON, http.StatusBadRequest},
		{"trailing", `{"username":"a"} {}`, echo.MIMEApplicationJSON, http.StatusBadRequest},
		{"content type", `{"username":"a"}`, "text/plain", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := bindRequest(tt.body, tt.contentType)
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if apiErr.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, apiErr.Code)
			}
			if apiErr.Reason != ReasonInvalidJSON {
				t.Errorf("expected reason %q, got %q", ReasonInvalidJSON, apiErr.Reason)
			}
		})
	}
}

func TestBindJSON_MissingContentTypeAccepted(t *testing.T) {
	_, dst, err := bindRequest(`{"username":"admin"}`, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Username != "admin" {
		t.Errorf("expected admin, got %s", dst.Username)
	}
}
