package downloader

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Fast polling while any client is moving data
	activeInterval = 2 * time.Second
	// Slow polling when every client is idle
	idleInterval = 30 * time.Second

	// TransferMessageType is the WebSocket message type for transfer snapshots.
	TransferMessageType = "downloaders:transfer"
)

// Broadcaster defines the interface for broadcasting messages.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// TransferBroadcaster periodically polls transfer state from every client
// and broadcasts it via WebSocket. Polling is fast while traffic flows and
// slow when idle.
type TransferBroadcaster struct {
	service   *Service
	hub       Broadcaster
	logger    zerolog.Logger
	stopCh    chan struct{}
	stoppedCh chan struct{}
	triggerCh chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewTransferBroadcaster creates a new transfer broadcaster.
func NewTransferBroadcaster(service *Service, hub Broadcaster, logger zerolog.Logger) *TransferBroadcaster {
	return &TransferBroadcaster{
		service: service,
		hub:     hub,
		logger:  logger.With().Str("component", "transfer-broadcaster").Logger(),
	}
}

// Start begins periodic broadcasting.
func (b *TransferBroadcaster) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.stoppedCh = make(chan struct{})
	b.triggerCh = make(chan struct{}, 1)
	b.mu.Unlock()

	go b.run()
	b.logger.Info().
		Dur("activeInterval", activeInterval).
		Dur("idleInterval", idleInterval).
		Msg("Transfer broadcaster started")
}

// Stop stops broadcasting and waits for the poll loop to exit.
func (b *TransferBroadcaster) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	b.mu.Unlock()

	<-b.stoppedCh
	b.logger.Info().Msg("Transfer broadcaster stopped")
}

// Trigger requests an immediate broadcast, e.g. after a limit changed.
func (b *TransferBroadcaster) Trigger() {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if !running {
		return
	}

	select {
	case b.triggerCh <- struct{}{}:
	default:
	}
}

func (b *TransferBroadcaster) run() {
	defer close(b.stoppedCh)

	interval := pickInterval(b.broadcast())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-b.triggerCh:
			b.broadcast()
		case <-ticker.C:
			if next := pickInterval(b.broadcast()); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func pickInterval(active bool) time.Duration {
	if active {
		return activeInterval
	}
	return idleInterval
}

// broadcast sends one snapshot. Returns true when any client has traffic.
func (b *TransferBroadcaster) broadcast() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshot := b.service.TransferSnapshot(ctx)
	if err := b.hub.Broadcast(TransferMessageType, snapshot); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to broadcast transfer state")
	}

	for _, info := range snapshot {
		if info.DownloadSpeed > 0 || info.UploadSpeed > 0 {
			return true
		}
	}
	return false
}
