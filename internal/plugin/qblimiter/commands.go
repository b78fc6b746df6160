package qblimiter

import (
	"context"
	"errors"
	"fmt"

	"github.com/gamevyo/qblimiter/internal/downloader"
	"github.com/gamevyo/qblimiter/internal/eventbus"
	"github.com/gamevyo/qblimiter/internal/plugin"
)

// Command actions.
const (
	ActionPause          = "qb_pause"
	ActionResume         = "qb_resume"
	ActionToggleUpload   = "qb_toggle_upload"
	ActionToggleDownload = "qb_toggle_download"
)

var ErrUnknownAction = errors.New("unknown qblimiter action")

var commands = []plugin.Command{
	{Action: ActionPause, Cmd: "/qb_pause", Description: "pause torrents", Category: "qBittorrent"},
	{Action: ActionResume, Cmd: "/qb_resume", Description: "resume torrents", Category: "qBittorrent"},
	{Action: ActionToggleUpload, Cmd: "/qb_toggle_upload", Description: "toggle upload limit", Category: "qBittorrent"},
	{Action: ActionToggleDownload, Cmd: "/qb_toggle_download", Description: "toggle download limit", Category: "qBittorrent"},
}

func (p *Plugin) Commands() []plugin.Command {
	out := make([]plugin.Command, len(commands))
	copy(out, commands)
	return out
}

// handleCommand is the command.execute subscriber. Text that names none of
// the plugin's commands is ignored.
func (p *Plugin) handleCommand(ctx context.Context, event eventbus.Event) {
	cmd, ok := plugin.MatchCommand(commands, event.String("cmd"))
	if !ok {
		return
	}
	p.logger.Debug().
		Str("action", cmd.Action).
		Str("source", event.String("source")).
		Str("user", event.String("user")).
		Msg("Received command")

	if err := p.Run(ctx, cmd.Action); err != nil {
		p.logger.Error().Err(err).Str("action", cmd.Action).Msg("Command failed")
	}
}

// Run executes a command action. A disabled plugin or an empty downloader
// selection makes it a no-op. Client failures are logged, not returned.
func (p *Plugin) Run(ctx context.Context, action string) error {
	switch action {
	case ActionPause:
		p.runAll(ctx, "pause torrents", "Torrents paused", func(ctx context.Context, c downloader.TorrentClient) error {
			return c.PauseAll(ctx)
		})
	case ActionResume:
		p.runAll(ctx, "resume torrents", "Torrents resumed", func(ctx context.Context, c downloader.TorrentClient) error {
			return c.ResumeAll(ctx)
		})
	case ActionToggleUpload:
		p.toggle(ctx, true)
	case ActionToggleDownload:
		p.toggle(ctx, false)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

func (p *Plugin) runAll(ctx context.Context, what, title string, op func(context.Context, downloader.TorrentClient) error) {
	p.mu.Lock()
	cfg := p.cfg.clone()
	p.mu.Unlock()

	if !cfg.Enabled {
		p.logger.Debug().Str("command", what).Msg("Plugin disabled, ignoring command")
		return
	}
	clients := p.clients(cfg)
	if len(clients) == 0 {
		p.logger.Info().Str("command", what).Msg("No downloaders selected, nothing to do")
		return
	}

	lines := p.forEach(ctx, clients, what, op)
	p.notify(ctx, cfg, title, lines)
}

// toggle flips the upload or download enable flag, persists it and pushes the
// resulting limit to every selected client.
func (p *Plugin) toggle(ctx context.Context, upload bool) {
	p.mu.Lock()
	if !p.cfg.Enabled {
		p.mu.Unlock()
		p.logger.Debug().Bool("upload", upload).Msg("Plugin disabled, ignoring toggle")
		return
	}
	clients := p.clients(p.cfg)
	if len(clients) == 0 {
		p.mu.Unlock()
		p.logger.Info().Bool("upload", upload).Msg("No downloaders selected, nothing to toggle")
		return
	}

	if upload {
		p.cfg.EnableUploadLimit = !p.cfg.EnableUploadLimit
	} else {
		p.cfg.EnableDownloadLimit = !p.cfg.EnableDownloadLimit
	}
	cfg := p.cfg.clone()
	var saveErr error
	if p.store != nil {
		saveErr = p.store.Save(ctx, PluginID, cfg.Values())
	}
	p.mu.Unlock()

	if saveErr != nil {
		p.logger.Error().Err(saveErr).Msg("Failed to persist toggled limit")
	}

	var title string
	var lines []string
	if upload {
		limit := limitFor(cfg.EnableUploadLimit, cfg.UploadLimit)
		title = "Upload limit " + onOff(cfg.EnableUploadLimit)
		lines = append(lines, "Upload "+formatLimit(limit))
		lines = append(lines, p.forEach(ctx, clients, "set upload limit", func(ctx context.Context, c downloader.TorrentClient) error {
			return c.SetUploadLimit(ctx, limit)
		})...)
	} else {
		limit := limitFor(cfg.EnableDownloadLimit, cfg.DownloadLimit)
		title = "Download limit " + onOff(cfg.EnableDownloadLimit)
		lines = append(lines, "Download "+formatLimit(limit))
		lines = append(lines, p.forEach(ctx, clients, "set download limit", func(ctx context.Context, c downloader.TorrentClient) error {
			return c.SetDownloadLimit(ctx, limit)
		})...)
	}

	p.notify(ctx, cfg, title, lines)
	p.publishState(cfg)
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
