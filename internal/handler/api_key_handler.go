package handler

import (
	"net/http"

	"github.com/haatos/forgeci/internal/service"
	"github.com/labstack/echo/v4"
)

func SetupAPIKeyRoutes(g *echo.Group, apiKeyService *service.APIKeyService) {
	h := NewAPIKeyHandler(apiKeyService)
	g.GET("/api-keys", h.ListAPIKeys)
	g.POST("/api-keys", h.PostAPIKey)
	g.DELETE("/api-keys/:id", h.DeleteAPIKey)
}

type APIKeyHandler struct {
	apiKeyService *service.APIKeyService
}

func NewAPIKeyHandler(apiKeyService *service.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{apiKeyService}
}

func (h *APIKeyHandler) ListAPIKeys(c echo.Context) error {
	apiKeys, err := h.apiKeyService.ListAPIKeys(c.Request().Context())
	if err != nil {
		return serviceError(err)
	}
	// KeyHash stays server-side.
	res := make([]map[string]any, 0, len(apiKeys))
	for _, key := range apiKeys {
		res = append(res, map[string]any{
			"api_key_id": key.APIKeyID,
			"name":       key.Name,
			"created_on": key.CreatedOn,
		})
	}
	return c.JSON(http.StatusOK, res)
}

func (h *APIKeyHandler) PostAPIKey(c echo.Context) error {
	p := new(CreateAPIKeyParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid api key data")
	}

	value, key, err := h.apiKeyService.CreateAPIKey(c.Request().Context(), p.Name)
	if err != nil {
		if isUniqueConstraintError(err) {
			return newError(err, http.StatusConflict, "api key name already exists")
		}
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"api_key_id": key.APIKeyID,
		"name":       key.Name,
		// Shown once; only the hash is stored.
		"key": value,
	})
}

func (h *APIKeyHandler) DeleteAPIKey(c echo.Context) error {
	p := new(APIKeyParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid api key data")
	}

	if err := h.apiKeyService.DeleteAPIKey(c.Request().Context(), p.ID); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
