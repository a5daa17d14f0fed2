package handler

import (
	"net/http"

	"github.com/haatos/forgeci/internal/service"
	"github.com/haatos/forgeci/internal/store"
	"github.com/labstack/echo/v4"
)

func SetupBuildRoutes(g *echo.Group, buildService *service.BuildService) {
	h := NewBuildHandler(buildService)
	g.GET("/builds", h.ListBuilds)
	g.GET("/builds/:build_id", h.GetBuild)
	g.POST("/builds/:build_id/cancel", h.CancelBuild)
	g.POST("/builds/:build_id/start", h.StartBuild)
	g.POST("/builds/:build_id/finish", h.FinishBuild)
	g.POST("/repositories/:repository_id/trigger", h.TriggerBuild)
}

type BuildHandler struct {
	buildService *service.BuildService
}

func NewBuildHandler(buildService *service.BuildService) *BuildHandler {
	return &BuildHandler{buildService}
}

func (h *BuildHandler) TriggerBuild(c echo.Context) error {
	p := new(TriggerBuildParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid build data")
	}

	b, err := h.buildService.TriggerBuild(
		c.Request().Context(), p.RepositoryID, p.Branch, p.CommitSHA, store.TriggerManual,
	)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *BuildHandler) GetBuild(c echo.Context) error {
	p := new(BuildParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid build data")
	}

	b, err := h.buildService.GetBuildByID(c.Request().Context(), p.BuildID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *BuildHandler) ListBuilds(c echo.Context) error {
	p := new(ListBuildsParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid list data")
	}

	builds, err := h.buildService.ListBuilds(
		c.Request().Context(), p.RepositoryID, int64(p.Limit), int64(p.Offset),
	)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, builds)
}

func (h *BuildHandler) CancelBuild(c echo.Context) error {
	p := new(BuildParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid build data")
	}

	b, err := h.buildService.CancelBuild(c.Request().Context(), p.BuildID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, b)
}

// StartBuild and FinishBuild are the status-report endpoints used by the
// external execution engine.
func (h *BuildHandler) StartBuild(c echo.Context) error {
	p := new(BuildParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid build data")
	}

	b, err := h.buildService.StartBuild(c.Request().Context(), p.BuildID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *BuildHandler) FinishBuild(c echo.Context) error {
	p := new(struct {
		BuildID      string  `param:"build_id"`
		Status       string  `json:"status"`
		ErrorMessage *string `json:"error_message"`
	})
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid build data")
	}

	b, err := h.buildService.FinishBuild(
		c.Request().Context(), p.BuildID, store.BuildStatus(p.Status), p.ErrorMessage,
	)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, b)
}
