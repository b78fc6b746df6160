package notification

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/config"
	"github.com/gamevyo/qblimiter/internal/notification/mock"
	"github.com/gamevyo/qblimiter/internal/notification/telegram"
	"github.com/gamevyo/qblimiter/internal/notification/webhook"
)

// Factory creates Notifier instances from configuration entries
type Factory struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewFactory creates a new notification factory
func NewFactory(logger zerolog.Logger) *Factory {
	return &Factory{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "notification-factory").Logger(),
	}
}

// Create creates a Notifier instance from a configuration entry
func (f *Factory) Create(cfg *config.NotificationConfig) (Notifier, error) {
	schema, ok := SchemaFor(NotifierType(cfg.Type))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
	if err := schema.Validate(cfg.Settings); err != nil {
		return nil, err
	}

	switch schema.Type {
	case NotifierTelegram:
		var settings telegram.Settings
		if err := decodeSettings(cfg.Settings, &settings); err != nil {
			return nil, fmt.Errorf("invalid telegram settings: %w", err)
		}
		return telegram.New(cfg.Name, settings, f.httpClient, f.logger), nil
	case NotifierWebhook:
		var settings webhook.Settings
		if err := decodeSettings(cfg.Settings, &settings); err != nil {
			return nil, fmt.Errorf("invalid webhook settings: %w", err)
		}
		return webhook.New(cfg.Name, settings, f.httpClient, f.logger), nil
	case NotifierMock:
		return mock.New(cfg.Name, f.logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

// decodeSettings maps a loosely typed settings table onto a settings struct.
// Config keys arrive lowercased, which encoding/json matches case-insensitively.
func decodeSettings(in map[string]any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}
