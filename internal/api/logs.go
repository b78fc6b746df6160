package api

import (
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/logger"
)

// LogsProvider exposes the logger's recent entries and its file.
type LogsProvider interface {
	GetRecentLogs() []logger.LogEntry
	GetLogFilePath() string
}

// listLogs returns buffered entries, oldest first.
// Query: component, level (minimum), limit (newest n).
func (s *Server) listLogs(c echo.Context) error {
	component := c.QueryParam("component")

	minLevel := zerolog.TraceLevel
	if raw := c.QueryParam("level"); raw != "" {
		lvl, err := zerolog.ParseLevel(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid level"})
		}
		minLevel = lvl
	}

	out := make([]logger.LogEntry, 0)
	for _, entry := range s.logs.GetRecentLogs() {
		if component != "" && entry.Component != component {
			continue
		}
		if lvl, err := zerolog.ParseLevel(entry.Level); err == nil && lvl < minLevel {
			continue
		}
		out = append(out, entry)
	}

	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		if n < len(out) {
			out = out[len(out)-n:]
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) downloadLogFile(c echo.Context) error {
	path := s.logs.GetLogFilePath()
	if path == "" {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "file logging disabled"})
	}
	if _, err := os.Stat(path); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "log file not found"})
	}
	return c.Attachment(path, "qblimiter.log")
}
