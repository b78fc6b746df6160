package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/notification/types"
)

type capturedRequest struct {
	Path                string
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification"`
	MessageThreadID     int64  `json:"message_thread_id"`
}

func setupTestServer(t *testing.T, captured *capturedRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}
		captured.Path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
}

func TestNotifier_TypeAndName(t *testing.T) {
	n := New("my-notifier", Settings{}, nil, zerolog.Nop())
	if n.Type() != types.NotifierTelegram {
		t.Errorf("expected type %s, got %s", types.NotifierTelegram, n.Type())
	}
	if n.Name() != "my-notifier" {
		t.Errorf("expected name 'my-notifier', got %s", n.Name())
	}
	if n.settings.APIBase != defaultAPIBase {
		t.Errorf("expected default API base, got %s", n.settings.APIBase)
	}
}

func TestNotifier_SendMessage(t *testing.T) {
	var captured capturedRequest
	server := setupTestServer(t, &captured)
	defer server.Close()

	n := New("test", Settings{
		BotToken: "test-token",
		ChatID:   "123456789",
		TopicID:  7,
		Silent:   true,
		APIBase:  server.URL + "/bot",
	}, server.Client(), zerolog.Nop())

	err := n.SendMessage(context.Background(), types.MessageEvent{
		Title:   "Upload limit",
		Message: "Upload limit <on> for home",
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if captured.Path != "/bottest-token/sendMessage" {
		t.Errorf("unexpected path %s", captured.Path)
	}
	if captured.ChatID != "123456789" {
		t.Errorf("expected chat_id 123456789, got %s", captured.ChatID)
	}
	if captured.ParseMode != "HTML" {
		t.Errorf("expected parse_mode HTML, got %s", captured.ParseMode)
	}
	if !captured.DisableNotification {
		t.Error("expected disable_notification to be set")
	}
	if captured.MessageThreadID != 7 {
		t.Errorf("expected message_thread_id 7, got %d", captured.MessageThreadID)
	}
	if !strings.HasPrefix(captured.Text, "<b>Upload limit</b>") {
		t.Errorf("expected bold title, got %q", captured.Text)
	}
	if !strings.Contains(captured.Text, "&lt;on&gt;") {
		t.Errorf("expected escaped message body, got %q", captured.Text)
	}
}

func TestNotifier_Test(t *testing.T) {
	var captured capturedRequest
	server := setupTestServer(t, &captured)
	defer server.Close()

	n := New("test", Settings{BotToken: "t", ChatID: "1", APIBase: server.URL + "/bot"}, server.Client(), zerolog.Nop())

	if err := n.Test(context.Background()); err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if !strings.Contains(captured.Text, "Test notification for channel test") {
		t.Errorf("unexpected test text %q", captured.Text)
	}
}

func TestNotifier_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": "Bad Request: chat not found"})
	}))
	defer server.Close()

	n := New("test", Settings{BotToken: "t", ChatID: "1", APIBase: server.URL + "/bot"}, server.Client(), zerolog.Nop())

	err := n.SendMessage(context.Background(), types.MessageEvent{Title: "x", Message: "y"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != 400 || !strings.Contains(apiErr.Description, "chat not found") {
		t.Errorf("unexpected api error %+v", apiErr)
	}
}

func TestNotifier_Throttled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  429,
			"description": "Too Many Requests: retry after 12",
			"parameters":  map[string]any{"retry_after": 12},
		})
	}))
	defer server.Close()

	n := New("test", Settings{BotToken: "t", ChatID: "1", APIBase: server.URL + "/bot"}, server.Client(), zerolog.Nop())

	err := n.SendMessage(context.Background(), types.MessageEvent{Title: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.RetryAfter != 12 {
		t.Errorf("RetryAfter = %d, want 12", apiErr.RetryAfter)
	}
	if !strings.Contains(err.Error(), "retry after 12s") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRender_ReportLines(t *testing.T) {
	got := Render(types.MessageEvent{
		Title:   "Torrents paused",
		Message: "home: ok\nseedbox: failed (dial <tcp>)\n",
		Source:  "qblimiter",
	})
	want := "<b>Torrents paused</b>\n<b>home</b>: ok\n<b>seedbox</b>: failed (dial &lt;tcp&gt;)\n\n#qblimiter"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRender_PlainText(t *testing.T) {
	got := Render(types.MessageEvent{Title: "a & b", Message: "Upload limit set to 500 KB/s"})
	want := "<b>a &amp; b</b>\nUpload limit set to 500 KB/s"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}
