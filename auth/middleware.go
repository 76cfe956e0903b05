package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// TokenQueryParam lets browsers authenticate the websocket upgrade.
const TokenQueryParam = "token"

// EchoMiddleware authenticates REST and websocket requests.
func EchoMiddleware(authenticator *Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				header = c.QueryParam(TokenQueryParam)
			}
			user, err := authenticator.Authenticate(c.Request().Context(), header)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing bearer token")
			}
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), user)))
			return next(c)
		}
	}
}
