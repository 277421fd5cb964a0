// Package httperr renders every API failure as
// {"status_code": ..., "reason": ..., "message": ...}.
package httperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ReasonInvalidJSON replaces the status text for body decoding failures.
const ReasonInvalidJSON = "Invalid JSON"

const internalMessage = "internal server error"

type ErrorResponse struct {
	StatusCode uint16 `json:"status_code"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
}

// Error is an API error whose reason differs from the canonical status text.
type Error struct {
	Code    int
	Reason  string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("code=%d, reason=%s, message=%s", e.Code, e.Reason, e.Message)
}

// InvalidJSON reports a request body that could not be decoded.
func InvalidJSON(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Reason: ReasonInvalidJSON, Message: fmt.Sprintf(format, args...)}
}

// New builds the response body for code and message.
func New(code int, message string) ErrorResponse {
	return ErrorResponse{StatusCode: uint16(code), Reason: reason(code), Message: message}
}

func reason(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown error"
}

// Handler is installed as echo's HTTPErrorHandler. Server-side failures are
// logged with their cause and answered with a generic message.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		body := resolve(err)
		if body.StatusCode >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
			body.Message = internalMessage
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(int(body.StatusCode))
		} else {
			writeErr = c.JSON(int(body.StatusCode), body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

// Status is the status code Handler will answer err with.
func Status(err error) int {
	return int(resolve(err).StatusCode)
}

func resolve(err error) ErrorResponse {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return ErrorResponse{StatusCode: uint16(apiErr.Code), Reason: apiErr.Reason, Message: apiErr.Message}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = fmt.Sprint(he.Message)
		}
		return New(he.Code, msg)
	}

	return New(http.StatusInternalServerError, internalMessage)
}

// BindJSON decodes the request body into dst, rejecting unknown fields and
// trailing data. Failures come back as *Error with reason "Invalid JSON".
func BindJSON(c echo.Context, dst interface{}) error {
	req := c.Request()
	if ct := req.Header.Get(echo.HeaderContentType); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != echo.MIMEApplicationJSON {
			return InvalidJSON(http.StatusUnsupportedMediaType,
				"Expected request with `Content-Type: application/json`")
		}
	}
	if req.Body == nil {
		return InvalidJSON(http.StatusBadRequest, "Failed to parse the request body as JSON: empty body")
	}

	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return InvalidJSON(http.StatusBadRequest, "Failed to parse the request body as JSON: empty body")
		}
		// echo's BodyLimit reader fails with its own HTTP error.
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return InvalidJSON(http.StatusBadRequest, "Failed to parse the request body as JSON: %s", describe(err))
	}
	if dec.More() {
		return InvalidJSON(http.StatusBadRequest, "Failed to parse the request body as JSON: trailing data after object")
	}
	return nil
}

func describe(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("%s at offset %d", syntaxErr.Error(), syntaxErr.Offset)
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return fmt.Sprintf("%s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value)
	default:
		return err.Error()
	}
}
