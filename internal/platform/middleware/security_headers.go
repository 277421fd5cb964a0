package middleware

import (
	"github.com/labstack/echo/v4"
)

const apiCSP = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeaders sets the hardening headers of a JSON API. pageCSP maps
// the route paths that serve HTML to their Content-Security-Policy; every
// other route gets the API policy, which forbids loading anything.
func SecurityHeaders(pageCSP map[string]string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			csp, ok := pageCSP[c.Path()]
			if !ok {
				csp = apiCSP
			}
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")

			// Patient records must not be cached by intermediaries.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
