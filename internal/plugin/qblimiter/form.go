package qblimiter

import (
	"context"
	"sort"
	"strings"

	"github.com/gamevyo/qblimiter/internal/plugin"
)

// GetForm returns the configuration form. The downloader select lists the
// gateway's clients by name.
func (p *Plugin) GetForm(_ context.Context) ([]plugin.Component, map[string]any) {
	names := make([]string, 0)
	for name := range p.gateway.Configs() {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]plugin.SelectItem, 0, len(names))
	for _, name := range names {
		items = append(items, plugin.SelectItem{Title: name, Value: name})
	}

	actions := []plugin.SelectItem{
		{Title: "Toggle speed limits", Value: ScheduleLimits},
		{Title: "Start/pause all torrents", Value: ScheduleTorrents},
	}

	form := plugin.Form(
		plugin.Row(
			plugin.Col(6, plugin.Switch(KeyEnabled, "Enable plugin")),
			plugin.Col(6, plugin.Switch(KeyNotify, "Send notifications")),
		),
		plugin.Row(
			plugin.Col(0, plugin.Select(KeyDownloaders, "Downloaders", items, true)),
		),
		plugin.Row(
			plugin.Col(6, plugin.Switch(KeyEnableUploadLimit, "Upload limit")),
			plugin.Col(6, plugin.Switch(KeyEnableDownloadLimit, "Download limit")),
		),
		plugin.Row(
			plugin.Col(6, plugin.TextField(KeyUploadLimit, "Upload limit KB/s", "KB/s")),
			plugin.Col(6, plugin.TextField(KeyDownloadLimit, "Download limit KB/s", "KB/s")),
		),
		plugin.Row(
			plugin.Col(4, plugin.TextField(KeyStartCron, "Start schedule", "0 8 * * *")),
			plugin.Col(4, plugin.TextField(KeyPauseCron, "Pause schedule", "0 23 * * *")),
			plugin.Col(4, plugin.Select(KeyScheduleAction, "Schedule action", actions, false)),
		),
		plugin.Row(
			plugin.Col(0, plugin.InfoAlert(
				"Start and pause schedules take cron expressions, e.g. 0 0 * * *. "+
					"The schedule action decides whether they toggle speed limits or start/pause all torrents.")),
			plugin.Col(0, plugin.InfoAlert("Available commands: "+commandSummary())),
		),
	)

	return []plugin.Component{form}, DefaultConfig().Values()
}

func commandSummary() string {
	parts := make([]string, 0, len(commands))
	for _, c := range commands {
		parts = append(parts, c.Cmd+" ("+c.Description+")")
	}
	return strings.Join(parts, ", ")
}
