// Package qblimiter toggles global upload and download speed limits on the
// selected torrent clients, on a cron schedule or through remote commands.
package qblimiter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/downloader"
	"github.com/gamevyo/qblimiter/internal/eventbus"
	"github.com/gamevyo/qblimiter/internal/notification"
	"github.com/gamevyo/qblimiter/internal/plugin"
	"github.com/gamevyo/qblimiter/internal/pluginstate"
	"github.com/gamevyo/qblimiter/internal/scheduler"
)

const (
	PluginID          = "qblimiter"
	pluginName        = "QB Limiter"
	pluginDescription = "Remote control of qBittorrent speed limits"
	pluginVersion     = "2.2"

	// StateMessageType is broadcast to WebSocket clients after every change.
	StateMessageType = "qblimiter:state"
)

// Gateway exposes the host's configured torrent clients by name.
type Gateway interface {
	Configs() map[string]downloader.TorrentClient
}

// Scheduler is the host job runner.
type Scheduler interface {
	RegisterTask(config *scheduler.TaskConfig) error
	UnregisterTask(taskID string) error
}

// Bus is the host event bus.
type Bus interface {
	Subscribe(eventType eventbus.Type, handler eventbus.Handler) func()
}

// Notifier delivers user-facing messages.
type Notifier interface {
	SendMessage(ctx context.Context, event notification.MessageEvent) error
}

// Broadcaster pushes state to connected UI clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// Deps are the host services the plugin runs against. Notifier and Hub are optional.
type Deps struct {
	Gateway   Gateway
	Scheduler Scheduler
	Bus       Bus
	Notifier  Notifier
	Store     pluginstate.Store
	Hub       Broadcaster
	Logger    zerolog.Logger
}

// State is the payload of StateMessageType.
type State struct {
	Enabled             bool     `json:"enabled"`
	EnableUploadLimit   bool     `json:"enableUploadLimit"`
	EnableDownloadLimit bool     `json:"enableDownloadLimit"`
	UploadLimit         int64    `json:"uploadLimit"`
	DownloadLimit       int64    `json:"downloadLimit"`
	Downloaders         []string `json:"downloaders"`
	ScheduleAction      string   `json:"scheduleAction"`
}

type Plugin struct {
	gateway   Gateway
	scheduler Scheduler
	bus       Bus
	notifier  Notifier
	store     pluginstate.Store
	hub       Broadcaster
	logger    zerolog.Logger

	mu          sync.Mutex
	cfg         Config
	unsubscribe func()
}

var _ plugin.Plugin = (*Plugin)(nil)

func New(deps Deps) *Plugin {
	return &Plugin{
		gateway:   deps.Gateway,
		scheduler: deps.Scheduler,
		bus:       deps.Bus,
		notifier:  deps.Notifier,
		store:     deps.Store,
		hub:       deps.Hub,
		logger:    deps.Logger.With().Str("component", "qblimiter").Logger(),
		cfg:       DefaultConfig(),
	}
}

func (p *Plugin) ID() string          { return PluginID }
func (p *Plugin) Name() string        { return pluginName }
func (p *Plugin) Description() string { return pluginDescription }
func (p *Plugin) Version() string     { return pluginVersion }

// Init applies a new configuration. Cron jobs are rebound, the command
// subscription is created on first use, and when enabled the configured
// limit state is pushed once to the selected clients.
//
// The config is written back to the store under the plugin lock, so a
// toggle that persisted between the host's save and Init cannot leave the
// store out of step with memory.
func (p *Plugin) Init(ctx context.Context, values map[string]any) error {
	p.mu.Lock()
	p.cfg = ParseConfig(values)
	cfg := p.cfg.clone()
	if p.store != nil {
		if err := p.store.Save(ctx, PluginID, cfg.Values()); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("persist config: %w", err)
		}
	}

	p.unbindSchedule()
	if p.unsubscribe == nil && p.bus != nil {
		p.unsubscribe = p.bus.Subscribe(eventbus.CommandExecute, p.handleCommand)
	}
	if cfg.Enabled {
		p.bindSchedule(cfg)
	}
	p.mu.Unlock()

	p.logger.Info().
		Bool("enabled", cfg.Enabled).
		Strs("downloaders", cfg.Downloaders).
		Bool("uploadLimit", cfg.EnableUploadLimit).
		Bool("downloadLimit", cfg.EnableDownloadLimit).
		Str("startCron", cfg.StartCron).
		Str("pauseCron", cfg.PauseCron).
		Msg("Plugin configured")

	if cfg.Enabled {
		p.applyLimitState(ctx, cfg)
	}
	p.publishState(cfg)
	return nil
}

func (p *Plugin) Normalize(values map[string]any) map[string]any {
	return Normalize(values)
}

func (p *Plugin) GetState() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Enabled
}

// Config returns a copy of the active configuration.
func (p *Plugin) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.clone()
}

// Stop removes the cron jobs and the command subscription.
func (p *Plugin) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unbindSchedule()
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	return nil
}

type namedClient struct {
	name   string
	client downloader.TorrentClient
}

// clients resolves the selected names against the gateway. Unknown names are
// skipped.
func (p *Plugin) clients(cfg Config) []namedClient {
	if len(cfg.Downloaders) == 0 {
		return nil
	}
	available := p.gateway.Configs()
	out := make([]namedClient, 0, len(cfg.Downloaders))
	for _, name := range cfg.Downloaders {
		client, ok := available[name]
		if !ok {
			p.logger.Warn().Str("downloader", name).Msg("Selected downloader is not configured")
			continue
		}
		out = append(out, namedClient{name: name, client: client})
	}
	return out
}

// forEach runs op on every client and returns a per-client result line.
// Failures are logged and do not stop the remaining clients.
func (p *Plugin) forEach(ctx context.Context, clients []namedClient, what string, op func(context.Context, downloader.TorrentClient) error) []string {
	lines := make([]string, 0, len(clients))
	for _, nc := range clients {
		if err := op(ctx, nc.client); err != nil {
			p.logger.Error().Err(err).Str("downloader", nc.name).Msg("Failed to " + what)
			lines = append(lines, fmt.Sprintf("%s: failed (%v)", nc.name, err))
			continue
		}
		p.logger.Info().Str("downloader", nc.name).Msg(capitalize(what))
		lines = append(lines, nc.name+": ok")
	}
	return lines
}

// applyLimitState sets each direction to its limit when enabled and to
// unlimited otherwise.
func (p *Plugin) applyLimitState(ctx context.Context, cfg Config) {
	clients := p.clients(cfg)
	if len(clients) == 0 {
		return
	}
	upload := limitFor(cfg.EnableUploadLimit, cfg.UploadLimit)
	download := limitFor(cfg.EnableDownloadLimit, cfg.DownloadLimit)

	p.forEach(ctx, clients, "apply upload limit", func(ctx context.Context, c downloader.TorrentClient) error {
		return c.SetUploadLimit(ctx, upload)
	})
	p.forEach(ctx, clients, "apply download limit", func(ctx context.Context, c downloader.TorrentClient) error {
		return c.SetDownloadLimit(ctx, download)
	})
}

func limitFor(enabled bool, limit int64) int64 {
	if enabled {
		return limit
	}
	return downloader.Unlimited
}

func (p *Plugin) notify(ctx context.Context, cfg Config, title string, lines []string) {
	if !cfg.Notify || p.notifier == nil {
		return
	}
	event := notification.MessageEvent{
		Title:   title,
		Message: strings.Join(lines, "\n"),
		Source:  PluginID,
		SentAt:  time.Now(),
	}
	if err := p.notifier.SendMessage(ctx, event); err != nil {
		p.logger.Warn().Err(err).Str("title", title).Msg("Failed to send notification")
	}
}

func (p *Plugin) publishState(cfg Config) {
	if p.hub == nil {
		return
	}
	state := State{
		Enabled:             cfg.Enabled,
		EnableUploadLimit:   cfg.EnableUploadLimit,
		EnableDownloadLimit: cfg.EnableDownloadLimit,
		UploadLimit:         cfg.UploadLimit,
		DownloadLimit:       cfg.DownloadLimit,
		Downloaders:         cfg.Downloaders,
		ScheduleAction:      cfg.ScheduleAction,
	}
	if err := p.hub.Broadcast(StateMessageType, state); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to broadcast state")
	}
}

func formatLimit(kbps int64) string {
	if kbps == downloader.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d KB/s", kbps)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
