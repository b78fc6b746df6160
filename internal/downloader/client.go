// Package downloader manages the download clients the limiter drives: their
// construction from config, lookup by name and transfer snapshots.
package downloader

import "github.com/gamevyo/qblimiter/internal/downloader/types"

type (
	ClientType    = types.ClientType
	ClientConfig  = types.ClientConfig
	TorrentClient = types.TorrentClient
	TransferInfo  = types.TransferInfo
)

const (
	ClientTypeQBittorrent  = types.ClientTypeQBittorrent
	ClientTypeTransmission = types.ClientTypeTransmission
	ClientTypeMock         = types.ClientTypeMock

	Unlimited  = types.Unlimited
	MaxLimitKB = types.MaxLimitKB
)
