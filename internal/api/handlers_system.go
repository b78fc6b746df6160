package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	wsClients := 0
	if s.hub != nil {
		wsClients = s.hub.ClientCount()
	}

	enabled := []string{}
	plugins := s.plugins.List()
	for _, p := range plugins {
		if p.Enabled {
			enabled = append(enabled, p.ID)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"version":        Version,
		"startTime":      s.startTime.Format(time.RFC3339),
		"uptime":         time.Since(s.startTime).Round(time.Second).String(),
		"plugins":        len(plugins),
		"enabledPlugins": enabled,
		"downloaders":    len(s.downloaders.Names()),
		"tasks":          len(s.scheduler.ListTasks()),
		"wsClients":      wsClients,
	})
}
