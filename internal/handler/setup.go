package handler

import (
	"net/http"

	"github.com/haatos/forgeci/internal/service"
	"github.com/haatos/forgeci/internal/store"
	"github.com/labstack/echo/v4"
)

// SetupSetupRoutes registers the provider handshake flow. Starting a setup
// is a management action; the callback and status endpoints are hit by the
// operator's browser mid-handshake and stay outside the api key guard.
func SetupSetupRoutes(
	g *echo.Group,
	apiKeyMiddleware echo.MiddlewareFunc,
	setupService *service.SetupService,
	cookieService *service.CookieService,
) {
	h := NewSetupHandler(setupService, cookieService)
	g.POST("/setup/:provider", h.PostSetup, apiKeyMiddleware)
	g.GET("/setup/github/manifest", h.GetGitHubManifest)
	g.GET("/setup/:provider/callback", h.GetSetupCallback)
	g.GET("/setup/:provider/status", h.GetSetupStatus)
}

type SetupHandler struct {
	setupService  *service.SetupService
	cookieService *service.CookieService
}

func NewSetupHandler(
	setupService *service.SetupService,
	cookieService *service.CookieService,
) *SetupHandler {
	return &SetupHandler{setupService, cookieService}
}

func (h *SetupHandler) PostSetup(c echo.Context) error {
	p := new(SetupParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid setup data")
	}

	start, err := h.setupService.StartSetup(c.Request().Context(), store.Provider(p.Provider))
	if err != nil {
		return serviceError(err)
	}
	if err := h.cookieService.SetSetupStateCookie(
		c, start.Session.State, start.Session.ExpiresOn,
	); err != nil {
		return newError(err, http.StatusInternalServerError, "unable to set setup cookie")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"state":         start.Session.State,
		"authorize_url": start.RedirectURL,
		"expires_on":    start.Session.ExpiresOn,
	})
}

func (h *SetupHandler) GetGitHubManifest(c echo.Context) error {
	return c.JSON(http.StatusOK, h.setupService.GitHubManifest())
}

func (h *SetupHandler) GetSetupCallback(c echo.Context) error {
	p := new(SetupParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid callback data")
	}

	// The callback must come from the browser that started the setup.
	cookieState, err := h.cookieService.GetSetupState(c)
	if err != nil || cookieState != p.State {
		return newError(err, http.StatusUnauthorized, "setup state mismatch")
	}

	session, err := h.setupService.CompleteSetup(c.Request().Context(), p.State, p.Code)
	if err != nil {
		return serviceError(err)
	}
	if session.Provider != store.Provider(p.Provider) {
		return newError(nil, http.StatusBadRequest, "provider mismatch")
	}
	if session.Status == store.SetupCompleted {
		h.cookieService.RemoveSetupStateCookie(c)
	}
	return c.JSON(http.StatusOK, setupSessionResponse(session))
}

func (h *SetupHandler) GetSetupStatus(c echo.Context) error {
	p := new(SetupParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid setup data")
	}
	if p.State == "" {
		return newError(nil, http.StatusBadRequest, "missing state")
	}

	session, err := h.setupService.SetupStatus(c.Request().Context(), p.State)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, setupSessionResponse(session))
}

func setupSessionResponse(session *store.SetupSession) map[string]any {
	return map[string]any{
		"state":      session.State,
		"provider":   session.Provider,
		"status":     session.Status,
		"message":    session.Message,
		"expires_on": session.ExpiresOn,
	}
}
