package http

import "github.com/labstack/echo/v4"

// ClientKey scopes a per-client limit key by the caller's address.
func ClientKey(c echo.Context, scope string) string {
	return scope + ":" + c.RealIP()
}
