package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context, which bounds every
// database call the handler makes. A handler that fails after the deadline
// passed is answered with 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return RequestTimeoutFunc(func() time.Duration { return timeout })
}

// RequestTimeoutFunc is RequestTimeout with the deadline looked up on every
// request, so a reloaded setting applies without a restart. A non-positive
// duration disables the deadline.
func RequestTimeoutFunc(timeoutFn func() time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			timeout := timeoutFn()
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
			}
			return err
		}
	}
}
