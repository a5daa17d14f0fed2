package handler

import (
	"net/http"

	"github.com/haatos/forgeci/internal/service"
	"github.com/haatos/forgeci/internal/store"
	"github.com/labstack/echo/v4"
)

func SetupRepositoryRoutes(g *echo.Group, repositoryService *service.RepositoryService) {
	h := NewRepositoryHandler(repositoryService)
	g.GET("/repositories", h.ListRepositories)
	g.POST("/repositories", h.PostRepository)
	g.GET("/repositories/:repository_id", h.GetRepository)
	g.POST("/repositories/:repository_id/webhook-token", h.PostWebhookToken)
	g.DELETE("/repositories/:repository_id", h.DeleteRepository)
}

type RepositoryHandler struct {
	repositoryService *service.RepositoryService
}

func NewRepositoryHandler(repositoryService *service.RepositoryService) *RepositoryHandler {
	return &RepositoryHandler{repositoryService}
}

func (h *RepositoryHandler) ListRepositories(c echo.Context) error {
	repositories, err := h.repositoryService.ListRepositories(c.Request().Context())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, repositories)
}

func (h *RepositoryHandler) GetRepository(c echo.Context) error {
	repo := new(store.Repository)
	if err := c.Bind(repo); err != nil {
		return newError(err, http.StatusBadRequest, "invalid repository data")
	}

	repo, err := h.repositoryService.GetRepositoryByID(c.Request().Context(), repo.RepositoryID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, repo)
}

func (h *RepositoryHandler) PostRepository(c echo.Context) error {
	p := new(RepositoryParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid repository data")
	}

	repo, webhookToken, err := h.repositoryService.AddRepository(
		c.Request().Context(),
		store.Provider(p.Provider), p.ProviderRepoID, p.Owner, p.Name, p.DefaultBranch,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return newError(err, http.StatusConflict, "repository already exists")
		}
		return serviceError(err)
	}

	res := map[string]any{"repository": repo}
	if webhookToken != "" {
		// Shown once; only the encrypted copy survives.
		res["webhook_token"] = webhookToken
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *RepositoryHandler) PostWebhookToken(c echo.Context) error {
	repo := new(store.Repository)
	if err := c.Bind(repo); err != nil {
		return newError(err, http.StatusBadRequest, "invalid repository data")
	}

	token, err := h.repositoryService.IssueWebhookToken(c.Request().Context(), repo.RepositoryID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"webhook_token": token})
}

func (h *RepositoryHandler) DeleteRepository(c echo.Context) error {
	repo := new(store.Repository)
	if err := c.Bind(repo); err != nil {
		return newError(err, http.StatusBadRequest, "invalid repository data")
	}

	if err := h.repositoryService.DeactivateRepository(
		c.Request().Context(), repo.RepositoryID,
	); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
