package handler

import (
	"io"
	"net/http"

	"github.com/haatos/forgeci/internal"
	"github.com/haatos/forgeci/internal/service"
	"github.com/labstack/echo/v4"
)

// webhookBodyLimit caps provider payload reads. GitHub documents a 25 MB
// cap on its side; anything larger is not a deliverable webhook.
const webhookBodyLimit = 25 << 20

func SetupWebhookRoutes(g *echo.Group, webhookService *service.WebhookService) {
	h := NewWebhookHandler(webhookService)
	g.POST("/api/webhooks/github", h.PostGitHubWebhook)
	g.POST("/api/webhooks/gitlab/:repository_id", h.PostGitLabWebhook)
}

type WebhookHandler struct {
	webhookService *service.WebhookService
}

func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService}
}

func (h *WebhookHandler) PostGitHubWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookBodyLimit))
	if err != nil {
		return newError(err, http.StatusBadRequest, "unable to read payload")
	}

	created, err := h.webhookService.IngestGitHub(
		c.Request().Context(),
		c.Request().Header.Get(internal.GitHubDeliveryHeader),
		c.Request().Header.Get(internal.GitHubEventHeader),
		c.Request().Header.Get(internal.GitHubSignatureHeader),
		payload,
	)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"accepted": true, "duplicate": !created})
}

func (h *WebhookHandler) PostGitLabWebhook(c echo.Context) error {
	p := new(GitLabWebhookParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid webhook data")
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookBodyLimit))
	if err != nil {
		return newError(err, http.StatusBadRequest, "unable to read payload")
	}

	created, err := h.webhookService.IngestGitLab(
		c.Request().Context(),
		p.RepositoryID,
		c.Request().Header.Get(internal.GitLabDeliveryHeader),
		c.Request().Header.Get(internal.GitLabEventHeader),
		c.Request().Header.Get(internal.GitLabTokenHeader),
		payload,
	)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"accepted": true, "duplicate": !created})
}
