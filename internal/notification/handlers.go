package notification

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers exposes notification channels over HTTP.
type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes mounts the channel routes on g.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/schema", h.schemas)
	g.POST("/:name/test", h.test)
}

// list reports each channel with its backoff deadline, if any.
func (h *Handlers) list(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.List())
}

func (h *Handlers) schemas(c echo.Context) error {
	return c.JSON(http.StatusOK, Schemas())
}

// test delivers a test message. Delivery failures are reported in the
// body with status 200.
func (h *Handlers) test(c echo.Context) error {
	result, err := h.service.Test(c.Request().Context(), c.Param("name"))
	switch {
	case errors.Is(err, ErrNotificationNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "notification channel not found"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}
