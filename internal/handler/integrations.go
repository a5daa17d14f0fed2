package handler

import (
	"net/http"

	"github.com/haatos/forgeci/internal/service"
	"github.com/haatos/forgeci/internal/store"
	"github.com/labstack/echo/v4"
)

func SetupIntegrationRoutes(g *echo.Group, syncService *service.SyncService) {
	h := NewIntegrationHandler(syncService)
	g.POST("/integrations/:provider/sync", h.PostSync)
}

type IntegrationHandler struct {
	syncService *service.SyncService
}

func NewIntegrationHandler(syncService *service.SyncService) *IntegrationHandler {
	return &IntegrationHandler{syncService}
}

// PostSync runs a reconciliation on demand. Safe to call repeatedly: an
// unchanged inventory reports zero changes.
func (h *IntegrationHandler) PostSync(c echo.Context) error {
	p := new(SyncParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid sync data")
	}

	changed, err := h.syncService.SyncProvider(c.Request().Context(), store.Provider(p.Provider))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"changed": changed})
}
