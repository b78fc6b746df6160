package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/eventbus"
	"github.com/gamevyo/qblimiter/internal/pluginstate"
)

// Publisher is the part of the event bus the manager announces reloads on.
type Publisher interface {
	Publish(ctx context.Context, event eventbus.Event) int
}

// Manager owns the registered plugins and their persisted configuration.
type Manager struct {
	store     pluginstate.Store
	logger    zerolog.Logger
	publisher Publisher

	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string

	// serializes Submit and Uninstall
	writeMu sync.Mutex
}

func NewManager(store pluginstate.Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		logger:  logger.With().Str("component", "plugins").Logger(),
		plugins: make(map[string]Plugin),
	}
}

// SetPublisher enables plugin.reload events after a submitted config.
func (m *Manager) SetPublisher(p Publisher) {
	m.publisher = p
}

func (m *Manager) Register(p Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[p.ID()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicatePlugin, p.ID())
	}
	m.plugins[p.ID()] = p
	m.order = append(m.order, p.ID())

	m.logger.Debug().Str("plugin", p.ID()).Str("version", p.Version()).Msg("Registered plugin")
	return nil
}

// Start initializes every registered plugin. Plugins without stored state are
// installed with their form defaults. A failing plugin is logged and skipped.
func (m *Manager) Start(ctx context.Context) error {
	for _, p := range m.snapshot() {
		values, err := m.Config(ctx, p.ID())
		if err != nil {
			m.logger.Error().Err(err).Str("plugin", p.ID()).Msg("Failed to load plugin config")
			continue
		}

		if err := p.Init(ctx, values); err != nil {
			m.logger.Error().Err(err).Str("plugin", p.ID()).Msg("Failed to initialize plugin")
			continue
		}

		m.logger.Info().
			Str("plugin", p.ID()).
			Bool("enabled", p.GetState()).
			Msg("Plugin started")
	}
	return nil
}

func (m *Manager) Get(id string) (Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plugins[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPluginNotFound, id)
	}
	return p, nil
}

// List returns registered plugins in registration order.
func (m *Manager) List() []Info {
	plugins := m.snapshot()
	infos := make([]Info, 0, len(plugins))
	for _, p := range plugins {
		infos = append(infos, Info{
			ID:          p.ID(),
			Name:        p.Name(),
			Description: p.Description(),
			Version:     p.Version(),
			Enabled:     p.GetState(),
			Commands:    pluginCommands(p),
		})
	}
	return infos
}

// Commands returns the commands of every registered plugin.
func (m *Manager) Commands() []Command {
	var cmds []Command
	for _, p := range m.snapshot() {
		cmds = append(cmds, pluginCommands(p)...)
	}
	return cmds
}

// Form returns the plugin's form tree and default values.
func (m *Manager) Form(ctx context.Context, id string) ([]Component, map[string]any, error) {
	p, err := m.Get(id)
	if err != nil {
		return nil, nil, err
	}
	form, defaults := p.GetForm(ctx)
	return form, defaults, nil
}

// Config returns the stored configuration of a plugin. When nothing is stored
// yet the normalized form defaults are persisted and returned.
func (m *Manager) Config(ctx context.Context, id string) (map[string]any, error) {
	p, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	values, err := m.store.Get(ctx, id)
	if err == nil {
		return p.Normalize(values), nil
	}
	if !errors.Is(err, pluginstate.ErrNotFound) {
		return nil, fmt.Errorf("failed to load config for %q: %w", id, err)
	}

	_, defaults := p.GetForm(ctx)
	values = p.Normalize(defaults)
	if err := m.store.Save(ctx, id, values); err != nil {
		return nil, fmt.Errorf("failed to install defaults for %q: %w", id, err)
	}
	m.logger.Info().Str("plugin", id).Msg("Installed plugin defaults")
	return values, nil
}

// Submit normalizes and persists values, then re-initializes the plugin.
func (m *Manager) Submit(ctx context.Context, id string, values map[string]any) (map[string]any, error) {
	p, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	normalized := p.Normalize(values)
	if err := m.store.Save(ctx, id, normalized); err != nil {
		return nil, fmt.Errorf("failed to save config for %q: %w", id, err)
	}
	if err := p.Init(ctx, normalized); err != nil {
		return nil, fmt.Errorf("failed to initialize %q: %w", id, err)
	}

	if m.publisher != nil {
		m.publisher.Publish(ctx, eventbus.NewEvent(eventbus.PluginReload, "plugins", map[string]any{
			"plugin": id,
		}))
	}

	m.logger.Info().Str("plugin", id).Bool("enabled", p.GetState()).Msg("Plugin config updated")
	return normalized, nil
}

// Uninstall stops the plugin and removes its stored state. The plugin stays
// registered and is reinstalled with defaults on the next Start or Config.
func (m *Manager) Uninstall(ctx context.Context, id string) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := p.Stop(); err != nil {
		m.logger.Warn().Err(err).Str("plugin", id).Msg("Plugin stop reported an error")
	}
	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, pluginstate.ErrNotFound) {
		return fmt.Errorf("failed to delete state for %q: %w", id, err)
	}

	m.logger.Info().Str("plugin", id).Msg("Plugin uninstalled")
	return nil
}

// Shutdown stops every plugin.
func (m *Manager) Shutdown() {
	for _, p := range m.snapshot() {
		if err := p.Stop(); err != nil {
			m.logger.Warn().Err(err).Str("plugin", p.ID()).Msg("Failed to stop plugin")
		}
	}
}

func (m *Manager) snapshot() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]Plugin, 0, len(m.order))
	for _, id := range m.order {
		plugins = append(plugins, m.plugins[id])
	}
	return plugins
}

func pluginCommands(p Plugin) []Command {
	cmds := p.Commands()
	out := make([]Command, len(cmds))
	for i, c := range cmds {
		c.PluginID = p.ID()
		out[i] = c
	}
	return out
}
