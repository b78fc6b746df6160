package qblimiter

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/gamevyo/qblimiter/internal/downloader"
)

// Stored keys.
const (
	KeyEnabled             = "enabled"
	KeyNotify              = "notify"
	KeyDownloaders         = "downloaders"
	KeyUploadLimit         = "upload_limit"
	KeyDownloadLimit       = "download_limit"
	KeyEnableUploadLimit   = "enable_upload_limit"
	KeyEnableDownloadLimit = "enable_download_limit"
	KeyStartCron           = "start_cron"
	KeyPauseCron           = "pause_cron"
	KeyScheduleAction      = "schedule_action"
)

// What the start and pause cron jobs act on.
const (
	ScheduleLimits   = "limits"
	ScheduleTorrents = "torrents"
)

// Config is the plugin configuration. Limits are KB/s, 0 meaning unlimited.
type Config struct {
	Enabled             bool
	Notify              bool
	Downloaders         []string
	UploadLimit         int64
	DownloadLimit       int64
	EnableUploadLimit   bool
	EnableDownloadLimit bool
	StartCron           string
	PauseCron           string
	ScheduleAction      string
}

func DefaultConfig() Config {
	return Config{
		Notify:         true,
		Downloaders:    []string{},
		ScheduleAction: ScheduleLimits,
	}
}

// ParseConfig builds a Config from submitted or stored values. Missing or
// malformed entries fall back to their defaults; malformed numbers become 0.
func ParseConfig(values map[string]any) Config {
	cfg := DefaultConfig()

	cfg.Enabled = toBool(values[KeyEnabled], cfg.Enabled)
	cfg.Notify = toBool(values[KeyNotify], cfg.Notify)
	cfg.EnableUploadLimit = toBool(values[KeyEnableUploadLimit], cfg.EnableUploadLimit)
	cfg.EnableDownloadLimit = toBool(values[KeyEnableDownloadLimit], cfg.EnableDownloadLimit)
	cfg.UploadLimit = toLimit(values[KeyUploadLimit])
	cfg.DownloadLimit = toLimit(values[KeyDownloadLimit])
	cfg.Downloaders = toNames(values[KeyDownloaders])
	cfg.StartCron = strings.TrimSpace(cast.ToString(values[KeyStartCron]))
	cfg.PauseCron = strings.TrimSpace(cast.ToString(values[KeyPauseCron]))

	switch action := strings.ToLower(strings.TrimSpace(cast.ToString(values[KeyScheduleAction]))); action {
	case ScheduleLimits, ScheduleTorrents:
		cfg.ScheduleAction = action
	}

	return cfg
}

// Values returns the stored representation of the config.
func (c Config) Values() map[string]any {
	downloaders := c.Downloaders
	if downloaders == nil {
		downloaders = []string{}
	}
	return map[string]any{
		KeyEnabled:             c.Enabled,
		KeyNotify:              c.Notify,
		KeyDownloaders:         downloaders,
		KeyUploadLimit:         c.UploadLimit,
		KeyDownloadLimit:       c.DownloadLimit,
		KeyEnableUploadLimit:   c.EnableUploadLimit,
		KeyEnableDownloadLimit: c.EnableDownloadLimit,
		KeyStartCron:           c.StartCron,
		KeyPauseCron:           c.PauseCron,
		KeyScheduleAction:      c.ScheduleAction,
	}
}

// Normalize is ParseConfig followed by Values.
func Normalize(values map[string]any) map[string]any {
	return ParseConfig(values).Values()
}

func (c Config) clone() Config {
	c.Downloaders = append([]string(nil), c.Downloaders...)
	return c
}

func toBool(v any, def bool) bool {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "on", "yes", "y":
			return true
		case "off", "no", "n", "":
			return false
		}
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// MaxLimit is the largest KB/s value that still fits in int64 once
// converted to bytes/s.
const MaxLimit = downloader.MaxLimitKB

// toLimit parses a KB/s value. Strings are read as base 10 so "010" is 10.
func toLimit(v any) int64 {
	var n float64
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		s := strings.TrimSpace(val)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			n = float64(i)
			break
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		n = f
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0
		}
		n = f
	}
	if math.IsNaN(n) || n <= 0 {
		return 0
	}
	if n >= float64(MaxLimit) {
		return MaxLimit
	}
	return int64(n)
}

// toNames accepts a list or a comma separated string and returns the trimmed,
// de-duplicated names in their original order.
func toNames(v any) []string {
	var raw []string
	switch val := v.(type) {
	case nil:
	case string:
		raw = strings.Split(val, ",")
	default:
		items, err := cast.ToStringSliceE(v)
		if err != nil {
			return []string{}
		}
		raw = items
	}

	names := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
