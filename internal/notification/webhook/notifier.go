// Package webhook posts limiter reports as JSON to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/notification/types"
)

const maxErrorBody = 256

type Settings struct {
	URL      string            `json:"url"`
	Method   string            `json:"method,omitempty"`
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Payload is the request body.
type Payload struct {
	Event     string               `json:"event"`
	Channel   string               `json:"channel"`
	Title     string               `json:"title,omitempty"`
	Message   string               `json:"message"`
	Source    string               `json:"source,omitempty"`
	Results   []types.ClientResult `json:"results,omitempty"`
	Failures  int                  `json:"failures"`
	Timestamp time.Time            `json:"timestamp"`
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.Code)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.Code, e.Body)
}

type Notifier struct {
	name     string
	settings Settings
	client   *http.Client
	logger   zerolog.Logger
	now      func() time.Time
}

func New(name string, settings Settings, client *http.Client, logger zerolog.Logger) *Notifier {
	settings.Method = strings.ToUpper(settings.Method)
	if settings.Method == "" {
		settings.Method = http.MethodPost
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{
		name:     name,
		settings: settings,
		client:   client,
		logger:   logger.With().Str("notifier", "webhook").Str("name", name).Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (n *Notifier) Type() types.NotifierType { return types.NotifierWebhook }

func (n *Notifier) Name() string { return n.name }

func (n *Notifier) Test(ctx context.Context) error {
	return n.post(ctx, Payload{
		Event:     "test",
		Channel:   n.name,
		Message:   "Test notification from qblimiter",
		Timestamp: n.now(),
	})
}

func (n *Notifier) SendMessage(ctx context.Context, event types.MessageEvent) error {
	p := Payload{
		Event:     "report",
		Channel:   n.name,
		Title:     event.Title,
		Message:   event.Message,
		Source:    event.Source,
		Results:   event.Results(),
		Timestamp: event.SentAt,
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = n.now()
	}
	for _, r := range p.Results {
		if !r.OK {
			p.Failures++
		}
	}
	return n.post(ctx, p)
}

func (n *Notifier) post(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, n.settings.Method, n.settings.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "qblimiter")
	if n.settings.Username != "" {
		req.SetBasicAuth(n.settings.Username, n.settings.Password)
	}
	for k, v := range n.settings.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	n.logger.Debug().Str("event", payload.Event).Int("status", resp.StatusCode).Msg("Webhook delivered")
	return nil
}
