package downloader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/config"
	"github.com/gamevyo/qblimiter/internal/startup"
)

var (
	ErrClientNotFound    = errors.New("download client not found")
	ErrDuplicateClient   = errors.New("duplicate download client name")
	ErrUnsupportedClient = errors.New("unsupported client type")
)

// ClientInfo describes a configured download client.
type ClientInfo struct {
	Name   string     `json:"name"`
	Type   ClientType `json:"type"`
	Host   string     `json:"host,omitempty"`
	Port   int        `json:"port,omitempty"`
	UseSSL bool       `json:"useSsl"`
}

// TestResult represents the result of testing a download client connection.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type entry struct {
	info   ClientInfo
	client TorrentClient
}

// Service is the gateway to the host's configured download clients, keyed by name.
type Service struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewService creates an empty gateway.
func NewService(logger zerolog.Logger) *Service {
	return &Service{
		logger:  logger.With().Str("component", "downloader").Logger(),
		entries: make(map[string]*entry),
	}
}

// NewServiceFromConfig builds clients for every enabled configuration entry.
func NewServiceFromConfig(cfgs []config.DownloaderConfig, logger zerolog.Logger) (*Service, error) {
	s := NewService(logger)

	for i := range cfgs {
		dc := &cfgs[i]
		if dc.Disabled {
			s.logger.Debug().Str("name", dc.Name).Msg("Skipping disabled download client")
			continue
		}

		client, info, err := clientFromConfig(dc)
		if err != nil {
			return nil, fmt.Errorf("download client %q: %w", dc.Name, err)
		}
		if err := s.add(info, client); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Register adds an already constructed client under name.
func (s *Service) Register(name string, client TorrentClient) error {
	return s.add(ClientInfo{Name: name, Type: client.Type()}, client)
}

func (s *Service) add(info ClientInfo, client TorrentClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[info.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateClient, info.Name)
	}
	s.entries[info.Name] = &entry{info: info, client: client}

	s.logger.Info().
		Str("name", info.Name).
		Str("type", string(info.Type)).
		Msg("Registered download client")
	return nil
}

// Configs returns the configured clients keyed by name.
func (s *Service) Configs() map[string]TorrentClient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]TorrentClient, len(s.entries))
	for name, e := range s.entries {
		out[name] = e.client
	}
	return out
}

// Names returns the configured client names in sorted order.
func (s *Service) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List describes every configured client, sorted by name.
func (s *Service) List() []ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ClientInfo, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the client configured under name.
func (s *Service) Get(name string) (TorrentClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, name)
	}
	return e.client, nil
}

// Test tests the connection of the named client.
func (s *Service) Test(ctx context.Context, name string) (*TestResult, error) {
	client, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	if err := client.Test(ctx); err != nil {
		return &TestResult{
			Success: false,
			Message: fmt.Sprintf("Connection failed: %s", err.Error()),
		}, nil
	}

	return &TestResult{
		Success: true,
		Message: fmt.Sprintf("Successfully connected to %s", client.Type()),
	}, nil
}

// TransferInfo returns the global transfer state of the named client.
func (s *Service) TransferInfo(ctx context.Context, name string) (*TransferInfo, error) {
	client, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return client.GetTransferInfo(ctx)
}

// TransferSnapshot collects transfer state from every client. Unreachable
// clients are logged and left out.
func (s *Service) TransferSnapshot(ctx context.Context) map[string]*TransferInfo {
	out := make(map[string]*TransferInfo)
	for name, client := range s.Configs() {
		info, err := client.GetTransferInfo(ctx)
		if err != nil {
			s.logger.Debug().Err(err).Str("name", name).Msg("Failed to get transfer info")
			continue
		}
		out[name] = info
	}
	return out
}

// ConnectAll connects every client, retrying network failures. Failures are
// logged; clients stay registered so later calls can succeed.
func (s *Service) ConnectAll(ctx context.Context, retry startup.RetryConfig) {
	for _, name := range s.Names() {
		client, err := s.Get(name)
		if err != nil {
			continue
		}
		err = startup.WithRetry(ctx, "connect "+name, retry, s.logger, client.Connect)
		if err != nil {
			s.logger.Warn().Err(err).Str("name", name).Msg("Download client unavailable")
			continue
		}
		s.logger.Info().Str("name", name).Msg("Connected to download client")
	}
}
