package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gamevyo/qblimiter/internal/eventbus"
	"github.com/gamevyo/qblimiter/internal/plugin"
)

type commandRequest struct {
	Command string `json:"command"`
	User    string `json:"user"`
}

// CommandResult reports how a published command was received.
type CommandResult struct {
	Command     string `json:"command"`
	Matched     bool   `json:"matched"`
	PluginID    string `json:"pluginId,omitempty"`
	Action      string `json:"action,omitempty"`
	Subscribers int    `json:"subscribers"`
}

// PublishCommand publishes text as a command event on the bus. Delivery is
// synchronous, so plugin handlers have finished when it returns.
func (s *Server) PublishCommand(ctx context.Context, text, source, user string) CommandResult {
	text = strings.TrimSpace(text)
	result := CommandResult{Command: text}
	if cmd, ok := plugin.MatchCommand(s.plugins.Commands(), text); ok {
		result.Matched = true
		result.PluginID = cmd.PluginID
		result.Action = cmd.Action
	}

	result.Subscribers = s.bus.Publish(ctx, eventbus.NewCommandEvent(text, source, user))

	s.logger.Info().
		Str("command", text).
		Str("source", source).
		Bool("matched", result.Matched).
		Msg("Command published")
	return result
}

func (s *Server) listCommands(c echo.Context) error {
	cmds := s.plugins.Commands()
	if cmds == nil {
		cmds = []plugin.Command{}
	}
	return c.JSON(http.StatusOK, cmds)
}

// executeCommand publishes a remote command.
// POST /api/v1/commands {"command": "pause torrents"}
func (s *Server) executeCommand(c echo.Context) error {
	var req commandRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Command) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "command is required"})
	}

	result := s.PublishCommand(c.Request().Context(), req.Command, "api", req.User)
	return c.JSON(http.StatusOK, result)
}
