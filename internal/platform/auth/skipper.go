package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists the route paths reachable without a bearer token: the
// login endpoint, the API documentation and the infrastructure endpoints.
var publicPaths = map[string]bool{
	"/health":          true,
	"/health/db":       true,
	"/metrics":         true,
	"/v1/login":        true,
	"/v1/openapi.json": true,
	"/v1/swagger-ui":   true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. It matches on the registered route path, not the raw URL.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

// IsPublicPath reports whether the route path needs no bearer token.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
