// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/notification/types"
)

const defaultAPIBase = "https://api.telegram.org/bot"

// Settings is the `settings` table of a telegram channel.
type Settings struct {
	BotToken string `json:"botToken"`
	ChatID   string `json:"chatId"`
	TopicID  int64  `json:"topicId,omitempty"`
	Silent   bool   `json:"silent,omitempty"`
	APIBase  string `json:"apiBase,omitempty"`
}

// APIError is a failure reported by the Bot API.
type APIError struct {
	Code        int
	Description string
	// RetryAfter is set when Telegram throttles the bot (HTTP 429).
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram error %d: %s (retry after %ds)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Description)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type Notifier struct {
	name     string
	settings Settings
	client   *http.Client
	logger   zerolog.Logger
}

func New(name string, settings Settings, client *http.Client, logger zerolog.Logger) *Notifier {
	if settings.APIBase == "" {
		settings.APIBase = defaultAPIBase
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{
		name:     name,
		settings: settings,
		client:   client,
		logger:   logger.With().Str("notifier", "telegram").Str("name", name).Logger(),
	}
}

func (n *Notifier) Type() types.NotifierType { return types.NotifierTelegram }

func (n *Notifier) Name() string { return n.name }

func (n *Notifier) Test(ctx context.Context) error {
	return n.send(ctx, Render(types.MessageEvent{
		Title:   "qblimiter",
		Message: fmt.Sprintf("Test notification for channel %s.", n.name),
	}))
}

func (n *Notifier) SendMessage(ctx context.Context, event types.MessageEvent) error {
	return n.send(ctx, Render(event))
}

// Render formats event as Telegram HTML. Per-client report lines
// ("name: result") get the client name in bold.
func Render(event types.MessageEvent) string {
	var sb strings.Builder
	sb.WriteString("<b>")
	sb.WriteString(html.EscapeString(event.Title))
	sb.WriteString("</b>")

	for _, line := range strings.Split(strings.TrimSpace(event.Message), "\n") {
		if line == "" {
			continue
		}
		sb.WriteString("\n")
		if name, result, ok := strings.Cut(line, ": "); ok && !strings.ContainsAny(name, " \t") {
			fmt.Fprintf(&sb, "<b>%s</b>: %s", html.EscapeString(name), html.EscapeString(result))
			continue
		}
		sb.WriteString(html.EscapeString(line))
	}

	if event.Source != "" {
		sb.WriteString("\n\n#")
		sb.WriteString(html.EscapeString(event.Source))
	}
	return sb.String()
}

func (n *Notifier) send(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id":    n.settings.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if n.settings.Silent {
		payload["disable_notification"] = true
	}
	if n.settings.TopicID > 0 {
		payload["message_thread_id"] = n.settings.TopicID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := n.settings.APIBase + n.settings.BotToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == http.StatusOK && decodeErr == nil && result.OK {
		n.logger.Debug().Msg("Telegram message sent")
		return nil
	}
	if decodeErr != nil || result.Description == "" {
		return &APIError{Code: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
	}
	code := result.ErrorCode
	if code == 0 {
		code = resp.StatusCode
	}
	return &APIError{Code: code, Description: result.Description, RetryAfter: result.Parameters.RetryAfter}
}
