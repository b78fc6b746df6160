// Package plugin defines the contract between the host and its plugins and
// the manager that drives plugin lifecycles against the plugin-state store.
package plugin

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrPluginNotFound  = errors.New("plugin not found")
	ErrDuplicatePlugin = errors.New("plugin already registered")
)

// Plugin is implemented by every plugin the host can load.
type Plugin interface {
	ID() string
	Name() string
	Description() string
	Version() string

	// Init (re)configures the plugin from normalized values. It is called on
	// host start and after every submitted form.
	Init(ctx context.Context, values map[string]any) error

	// GetForm returns the configuration form and its default values.
	GetForm(ctx context.Context) ([]Component, map[string]any)

	// Normalize validates submitted values into the shape Init expects.
	Normalize(values map[string]any) map[string]any

	// GetState reports whether the plugin is enabled.
	GetState() bool

	Commands() []Command
	Stop() error
}

// Command is a remote command a plugin answers on the event bus.
type Command struct {
	Action      string `json:"action"`
	Cmd         string `json:"cmd"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	PluginID    string `json:"pluginId,omitempty"`
}

// Matches reports whether text names the command by action, slash form or
// description. Comparison ignores case and surrounding whitespace.
func (c Command) Matches(text string) bool {
	text = normalizeCommandText(text)
	if text == "" {
		return false
	}
	for _, candidate := range []string{c.Action, c.Cmd, c.Description} {
		if candidate != "" && normalizeCommandText(candidate) == text {
			return true
		}
	}
	return false
}

// MatchCommand returns the first command in cmds matching text.
func MatchCommand(cmds []Command, text string) (Command, bool) {
	for _, cmd := range cmds {
		if cmd.Matches(text) {
			return cmd, true
		}
	}
	return Command{}, false
}

// Info describes a registered plugin for API responses.
type Info struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Enabled     bool      `json:"enabled"`
	Commands    []Command `json:"commands"`
}

func normalizeCommandText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
