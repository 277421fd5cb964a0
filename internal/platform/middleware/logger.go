package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/httperr"
)

// Logger writes one line per request. It runs outside the auth middleware,
// so the user is read after the handler chain returns.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			status := responseStatus(c, err)

			evt := logger.Info()
			switch {
			case status >= 500:
				evt = logger.Error().Err(err)
			case status >= 400:
				evt = logger.Warn()
			}

			user, _ := c.Get("user").(string)
			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Str("user", user).
				Msg("request")

			return err
		}
	}
}

// responseStatus is the status the client receives. When the chain returned
// an error, the error handler has not written the response yet.
func responseStatus(c echo.Context, err error) int {
	if err != nil && !c.Response().Committed {
		return httperr.Status(err)
	}
	return c.Response().Status
}
