// Package types defines shared types for download clients.
package types

import (
	"context"
	"errors"
	"math"
)

var (
	ErrAuthFailed = errors.New("authentication failed")
	ErrNotFound   = errors.New("download not found")
)

// Unlimited is the speed limit value that removes a cap, in KB/s.
const Unlimited int64 = 0

// ClientType represents the type of download client.
type ClientType string

const (
	ClientTypeQBittorrent  ClientType = "qbittorrent"
	ClientTypeTransmission ClientType = "transmission"
	ClientTypeMock         ClientType = "mock" // in-memory client for development and tests
)

// ClientConfig holds common configuration for all download clients.
type ClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	URLBase  string // path prefix when the web UI sits behind a reverse proxy
}

// Client is the per-torrent surface shown in the host API.
type Client interface {
	Type() ClientType
	Test(ctx context.Context) error
	Connect(ctx context.Context) error
	List(ctx context.Context) ([]DownloadItem, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
}

// RateLimiter controls client-wide transfer behaviour.
// Speed limits are expressed in KB/s; Unlimited removes the cap.
type RateLimiter interface {
	PauseAll(ctx context.Context) error
	ResumeAll(ctx context.Context) error
	SetUploadLimit(ctx context.Context, kbps int64) error
	SetDownloadLimit(ctx context.Context, kbps int64) error
	GetTransferInfo(ctx context.Context) (*TransferInfo, error)
}

// TorrentClient is what the limiter drives.
type TorrentClient interface {
	Client
	RateLimiter
}

// DownloadItem represents a download in progress or completed.
type DownloadItem struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Status         Status  `json:"status"`
	Progress       float64 `json:"progress"` // 0-100
	Size           int64   `json:"size"`
	DownloadedSize int64   `json:"downloadedSize"`
	DownloadSpeed  int64   `json:"downloadSpeed"` // bytes/sec
	UploadSpeed    int64   `json:"uploadSpeed"`   // bytes/sec
	ETA            int64   `json:"eta"`           // seconds, -1 if unavailable
	DownloadDir    string  `json:"downloadDir"`
	Error          string  `json:"error,omitempty"`
}

// TransferInfo is a snapshot of global transfer state.
type TransferInfo struct {
	DownloadSpeed    int64  `json:"downloadSpeed"` // bytes/sec
	UploadSpeed      int64  `json:"uploadSpeed"`   // bytes/sec
	DownloadLimit    int64  `json:"downloadLimit"` // KB/s, 0 = unlimited
	UploadLimit      int64  `json:"uploadLimit"`   // KB/s, 0 = unlimited
	Downloaded       int64  `json:"downloaded"`    // bytes this session
	Uploaded         int64  `json:"uploaded"`      // bytes this session
	ConnectionStatus string `json:"connectionStatus,omitempty"`
}

// Status represents the status of a download.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusSeeding     Status = "seeding"
	StatusWarning     Status = "warning"
	StatusError       Status = "error"
	StatusUnknown     Status = "unknown"
)

// MaxLimitKB is the largest KB/s limit whose bytes/s value fits in int64.
const MaxLimitKB int64 = math.MaxInt64 / 1024

// KBToBytes converts a KB/s limit to bytes/s, saturating at MaxLimitKB.
func KBToBytes(kbps int64) int64 {
	if kbps <= 0 {
		return 0
	}
	if kbps > MaxLimitKB {
		kbps = MaxLimitKB
	}
	return kbps * 1024
}

// BytesToKB converts a bytes/s limit to KB/s.
func BytesToKB(bps int64) int64 {
	if bps <= 0 {
		return 0
	}
	return bps / 1024
}
