package handler

import (
	"net/http"

	"github.com/haatos/forgeci/internal"
	"github.com/haatos/forgeci/internal/service"
	"github.com/labstack/echo/v4"
)

// APIKeyMiddleware guards the management surface. Webhook and setup
// callback endpoints are provider-facing and must stay outside it.
func APIKeyMiddleware(apiKeyService *service.APIKeyService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			value := c.Request().Header.Get(internal.APIKeyHeader)
			if value == "" {
				return newError(nil, http.StatusUnauthorized, "missing api key")
			}
			if err := apiKeyService.VerifyAPIKey(c.Request().Context(), value); err != nil {
				return serviceError(err)
			}
			return next(c)
		}
	}
}
