package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/config"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidSettings      = errors.New("invalid notification settings")
	ErrUnsupportedType      = errors.New("unsupported notifier type")
)

// Backoff configuration
const (
	minBackoffDuration = 5 * time.Minute
	maxEscalationLevel = 5
)

type channel struct {
	notifier Notifier
	status   *Status
}

// Service fans messages out to the configured channels. A channel that
// fails is skipped for an escalating backoff period.
type Service struct {
	factory *Factory
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	channels []*channel
}

// NewService creates a notification service without channels
func NewService(logger zerolog.Logger) *Service {
	return &Service{
		factory: NewFactory(logger),
		logger:  logger.With().Str("component", "notification").Logger(),
		now:     time.Now,
	}
}

// NewServiceFromConfig creates a channel for every enabled configuration entry
func NewServiceFromConfig(cfgs []config.NotificationConfig, logger zerolog.Logger) (*Service, error) {
	s := NewService(logger)
	for i := range cfgs {
		cfg := &cfgs[i]
		if cfg.Disabled {
			continue
		}
		n, err := s.factory.Create(cfg)
		if err != nil {
			return nil, fmt.Errorf("notification %q: %w", cfg.Name, err)
		}
		s.Add(n)
	}
	return s, nil
}

// Add registers a notifier
func (s *Service) Add(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, &channel{notifier: n})
	s.logger.Info().Str("name", n.Name()).Str("type", string(n.Type())).Msg("Registered notification channel")
}

// List describes every channel in registration order
func (s *Service) List() []ChannelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ChannelInfo, 0, len(s.channels))
	for _, ch := range s.channels {
		info := ChannelInfo{Name: ch.notifier.Name(), Type: ch.notifier.Type()}
		if ch.status != nil && ch.status.DisabledTill.After(s.now()) {
			till := ch.status.DisabledTill
			info.DisabledTill = &till
		}
		out = append(out, info)
	}
	return out
}

// Test sends a test notification through the named channel, ignoring backoff
func (s *Service) Test(ctx context.Context, name string) (*TestResult, error) {
	ch := s.find(name)
	if ch == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotificationNotFound, name)
	}

	if err := ch.notifier.Test(ctx); err != nil {
		return &TestResult{Success: false, Message: err.Error()}, nil
	}

	s.clearFailure(ch)
	return &TestResult{Success: true, Message: "Test notification sent successfully"}, nil
}

// SendMessage delivers event to every channel not in backoff and returns
// the joined errors of the channels that failed.
func (s *Service) SendMessage(ctx context.Context, event MessageEvent) error {
	if event.SentAt.IsZero() {
		event.SentAt = s.now().UTC()
	}

	s.mu.RLock()
	channels := make([]*channel, len(s.channels))
	copy(channels, s.channels)
	s.mu.RUnlock()

	var errs []error
	for _, ch := range channels {
		name := ch.notifier.Name()
		if s.isDisabled(ch) {
			s.logger.Debug().Str("name", name).Msg("Skipping notification channel in backoff")
			continue
		}

		if err := ch.notifier.SendMessage(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("name", name).Msg("Failed to send notification")
			s.recordFailure(ch)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		s.clearFailure(ch)
	}

	return errors.Join(errs...)
}

func (s *Service) find(name string) *channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.channels {
		if ch.notifier.Name() == name {
			return ch
		}
	}
	return nil
}

func (s *Service) isDisabled(ch *channel) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ch.status != nil && ch.status.DisabledTill.After(s.now())
}

func (s *Service) recordFailure(ch *channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if ch.status == nil {
		ch.status = &Status{InitialFailure: now}
	}

	escalation := ch.status.EscalationLevel + 1
	if escalation > maxEscalationLevel {
		escalation = maxEscalationLevel
	}

	ch.status.MostRecentFailure = now
	ch.status.EscalationLevel = escalation
	ch.status.DisabledTill = now.Add(minBackoffDuration * time.Duration(1<<(escalation-1)))
}

func (s *Service) clearFailure(ch *channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch.status = nil
}
