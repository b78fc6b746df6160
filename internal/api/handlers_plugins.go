package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gamevyo/qblimiter/internal/plugin"
)

func (s *Server) listPlugins(c echo.Context) error {
	return c.JSON(http.StatusOK, s.plugins.List())
}

// getPluginForm returns the form tree, its defaults and the current values.
func (s *Server) getPluginForm(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	form, defaults, err := s.plugins.Form(ctx, id)
	if err != nil {
		return pluginError(c, err)
	}
	values, err := s.plugins.Config(ctx, id)
	if err != nil {
		return pluginError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"form":     form,
		"defaults": defaults,
		"values":   values,
	})
}

func (s *Server) getPluginConfig(c echo.Context) error {
	values, err := s.plugins.Config(c.Request().Context(), c.Param("id"))
	if err != nil {
		return pluginError(c, err)
	}
	return c.JSON(http.StatusOK, values)
}

// updatePluginConfig stores the submitted form values and reloads the plugin.
// The normalized values are returned.
func (s *Server) updatePluginConfig(c echo.Context) error {
	var values map[string]any
	if err := c.Bind(&values); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if values == nil {
		values = map[string]any{}
	}

	normalized, err := s.plugins.Submit(c.Request().Context(), c.Param("id"), values)
	if err != nil {
		return pluginError(c, err)
	}
	return c.JSON(http.StatusOK, normalized)
}

func (s *Server) uninstallPlugin(c echo.Context) error {
	if err := s.plugins.Uninstall(c.Request().Context(), c.Param("id")); err != nil {
		return pluginError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func pluginError(c echo.Context, err error) error {
	if errors.Is(err, plugin.ErrPluginNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "plugin not found"})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
