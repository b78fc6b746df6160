package qblimiter

import (
	"context"
	"errors"

	"github.com/gamevyo/qblimiter/internal/downloader"
	"github.com/gamevyo/qblimiter/internal/scheduler"
)

// Cron job ids registered with the host scheduler.
const (
	StartTaskID = "qblimiter-start"
	PauseTaskID = "qblimiter-pause"
)

type scheduleKind int

const (
	scheduleStart scheduleKind = iota
	schedulePause
)

// bindSchedule registers one job per configured cron expression. A rejected
// expression is logged and leaves that job unregistered. Caller holds mu.
func (p *Plugin) bindSchedule(cfg Config) {
	if p.scheduler == nil {
		return
	}

	jobs := []struct {
		id, name, cron string
		kind           scheduleKind
	}{
		{StartTaskID, "QB Limiter start", cfg.StartCron, scheduleStart},
		{PauseTaskID, "QB Limiter pause", cfg.PauseCron, schedulePause},
	}

	for _, job := range jobs {
		if job.cron == "" {
			continue
		}
		kind := job.kind
		err := p.scheduler.RegisterTask(&scheduler.TaskConfig{
			ID:          job.id,
			Name:        job.name,
			Description: scheduleDescription(cfg.ScheduleAction, kind),
			Cron:        job.cron,
			Func: func(ctx context.Context) error {
				p.runScheduled(ctx, kind)
				return nil
			},
		})
		if err != nil {
			p.logger.Error().Err(err).Str("task", job.id).Str("cron", job.cron).Msg("Failed to register schedule")
		}
	}
}

// unbindSchedule removes both jobs if present. Caller holds mu.
func (p *Plugin) unbindSchedule() {
	if p.scheduler == nil {
		return
	}
	for _, id := range []string{StartTaskID, PauseTaskID} {
		if err := p.scheduler.UnregisterTask(id); err != nil && !errors.Is(err, scheduler.ErrTaskNotFound) {
			p.logger.Warn().Err(err).Str("task", id).Msg("Failed to unregister schedule")
		}
	}
}

// runScheduled executes a start or pause job against the current config.
func (p *Plugin) runScheduled(ctx context.Context, kind scheduleKind) {
	p.mu.Lock()
	cfg := p.cfg.clone()
	p.mu.Unlock()

	if !cfg.Enabled {
		return
	}
	clients := p.clients(cfg)
	if len(clients) == 0 {
		p.logger.Debug().Msg("Scheduled run skipped, no downloaders selected")
		return
	}

	var title string
	var lines []string

	switch {
	case cfg.ScheduleAction == ScheduleTorrents && kind == scheduleStart:
		title = "Scheduled: torrents resumed"
		lines = p.forEach(ctx, clients, "resume torrents", func(ctx context.Context, c downloader.TorrentClient) error {
			return c.ResumeAll(ctx)
		})
	case cfg.ScheduleAction == ScheduleTorrents:
		title = "Scheduled: torrents paused"
		lines = p.forEach(ctx, clients, "pause torrents", func(ctx context.Context, c downloader.TorrentClient) error {
			return c.PauseAll(ctx)
		})
	case kind == scheduleStart:
		title = "Scheduled: speed limits applied"
		lines = p.setLimits(ctx, clients, cfg, false)
	default:
		title = "Scheduled: speed limits lifted"
		lines = p.setLimits(ctx, clients, cfg, true)
	}

	p.notify(ctx, cfg, title, lines)
}

// setLimits applies the configured limits, or unlimited when lift is set, for
// each direction whose enable flag is on.
func (p *Plugin) setLimits(ctx context.Context, clients []namedClient, cfg Config, lift bool) []string {
	var lines []string
	if cfg.EnableUploadLimit {
		limit := cfg.UploadLimit
		if lift {
			limit = downloader.Unlimited
		}
		lines = append(lines, "Upload "+formatLimit(limit))
		lines = append(lines, p.forEach(ctx, clients, "set upload limit", func(ctx context.Context, c downloader.TorrentClient) error {
			return c.SetUploadLimit(ctx, limit)
		})...)
	}
	if cfg.EnableDownloadLimit {
		limit := cfg.DownloadLimit
		if lift {
			limit = downloader.Unlimited
		}
		lines = append(lines, "Download "+formatLimit(limit))
		lines = append(lines, p.forEach(ctx, clients, "set download limit", func(ctx context.Context, c downloader.TorrentClient) error {
			return c.SetDownloadLimit(ctx, limit)
		})...)
	}
	return lines
}

func scheduleDescription(action string, kind scheduleKind) string {
	switch {
	case action == ScheduleTorrents && kind == scheduleStart:
		return "Resume all torrents on the selected downloaders"
	case action == ScheduleTorrents:
		return "Pause all torrents on the selected downloaders"
	case kind == scheduleStart:
		return "Apply the configured speed limits"
	default:
		return "Lift the configured speed limits"
	}
}
