// Package middleware provides Echo middleware for CORS, logging and metrics.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CORS returns a middleware that stamps every response, proxy and static
// alike, with the cross-origin and cache-disabling headers the browser
// front-end needs during local development.
//
// Register it with e.Pre: preflight OPTIONS requests must get a bare 200
// before routing runs, whether or not the path exists.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			h.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
			h.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, x-api-key, x-goog-api-key")
			h.Set("Cache-Control", "no-store, no-cache, must-revalidate")

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}

			return next(c)
		}
	}
}
