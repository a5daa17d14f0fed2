package handler

import (
	"net/http"

	"github.com/haatos/forgeci/internal"
	"github.com/labstack/echo/v4"
)

func SetupConfigRoutes(g *echo.Group) {
	g.GET("/config", GetConfig)
	g.PUT("/config", PutConfig)
}

func GetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, internal.Config())
}

// PutConfig replaces the runtime configuration and persists it. Worker and
// queue sizing take effect on the next restart. A zero sync interval is
// valid and disables the periodic sync.
func PutConfig(c echo.Context) error {
	p := new(ConfigParams)
	if err := c.Bind(p); err != nil {
		return newError(err, http.StatusBadRequest, "invalid config data")
	}
	if p.SetupSessionTTLMinutes <= 0 || p.EventWorkers <= 0 || p.EventQueueSize <= 0 {
		return newError(nil, http.StatusBadRequest, "config values must be positive")
	}
	if p.SyncIntervalHours < 0 {
		return newError(nil, http.StatusBadRequest, "sync interval cannot be negative")
	}

	config := &internal.Configuration{
		SetupSessionTTLMinutes: p.SetupSessionTTLMinutes,
		EventWorkers:           p.EventWorkers,
		EventQueueSize:         int64(p.EventQueueSize),
		SyncIntervalHours:      p.SyncIntervalHours,
		PullRequestBuilds:      p.PullRequestBuilds,
		PullRequestActions:     p.PullRequestActions,
	}
	if err := internal.UpdateConfiguration(config); err != nil {
		return newError(err, http.StatusInternalServerError, "unable to update configuration file")
	}
	return c.JSON(http.StatusOK, config)
}
