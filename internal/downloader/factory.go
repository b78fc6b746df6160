package downloader

import (
	"fmt"
	"sort"

	"github.com/gamevyo/qblimiter/internal/config"
	"github.com/gamevyo/qblimiter/internal/downloader/mock"
	"github.com/gamevyo/qblimiter/internal/downloader/qbittorrent"
	"github.com/gamevyo/qblimiter/internal/downloader/transmission"
)

type clientKind struct {
	defaultPort int
	needsHost   bool
	build       func(*ClientConfig) TorrentClient
}

var kinds = map[ClientType]clientKind{
	ClientTypeQBittorrent: {
		defaultPort: 8080,
		needsHost:   true,
		build:       func(c *ClientConfig) TorrentClient { return qbittorrent.NewFromConfig(c) },
	},
	ClientTypeTransmission: {
		defaultPort: 9091,
		needsHost:   true,
		build:       func(c *ClientConfig) TorrentClient { return transmission.NewFromConfig(c) },
	},
	ClientTypeMock: {
		build: func(c *ClientConfig) TorrentClient { return mock.NewFromConfig(c) },
	},
}

// NewClient builds a client of the given type. A zero port takes the
// type's default.
func NewClient(clientType ClientType, cfg ClientConfig) (TorrentClient, error) {
	kind, ok := kinds[clientType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedClient, clientType)
	}
	if kind.needsHost && cfg.Host == "" {
		return nil, fmt.Errorf("%s client needs a host", clientType)
	}
	if cfg.Port == 0 {
		cfg.Port = kind.defaultPort
	}
	return kind.build(&cfg), nil
}

func clientFromConfig(dc *config.DownloaderConfig) (TorrentClient, ClientInfo, error) {
	cfg := ClientConfig{
		Host:     dc.Host,
		Port:     dc.Port,
		Username: dc.Username,
		Password: dc.Password,
		UseSSL:   dc.UseSSL,
		URLBase:  dc.URLBase,
	}
	client, err := NewClient(ClientType(dc.Type), cfg)
	if err != nil {
		return nil, ClientInfo{}, err
	}
	if cfg.Port == 0 {
		cfg.Port = kinds[ClientType(dc.Type)].defaultPort
	}
	return client, ClientInfo{
		Name:   dc.Name,
		Type:   ClientType(dc.Type),
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseSSL: cfg.UseSSL,
	}, nil
}

// SupportedClientTypes lists the configurable client types, sorted.
func SupportedClientTypes() []ClientType {
	out := make([]ClientType, 0, len(kinds))
	for t := range kinds {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
