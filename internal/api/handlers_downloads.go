package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gamevyo/qblimiter/internal/downloader"
)

func (s *Server) listDownloaders(c echo.Context) error {
	return c.JSON(http.StatusOK, s.downloaders.List())
}

func (s *Server) testDownloader(c echo.Context) error {
	result, err := s.downloaders.Test(c.Request().Context(), c.Param("name"))
	if err != nil {
		return downloaderError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// getTransferInfo returns speeds (bytes/s) and limits (KB/s) of one client.
func (s *Server) getTransferInfo(c echo.Context) error {
	info, err := s.downloaders.TransferInfo(c.Request().Context(), c.Param("name"))
	if err != nil {
		return downloaderError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func downloaderError(c echo.Context, err error) error {
	if errors.Is(err, downloader.ErrClientNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "client not found"})
	}
	return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
}
