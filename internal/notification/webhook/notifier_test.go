package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/notification/types"
)

func TestNotifier_SendMessage(t *testing.T) {
	var (
		got      Payload
		method   string
		user     string
		pass     string
		ok       bool
		apiToken string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		user, pass, ok = r.BasicAuth()
		apiToken = r.Header.Get("X-Api-Token")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := New("hook", Settings{
		URL:      server.URL,
		Method:   "put",
		Username: "u",
		Password: "p",
		Headers:  map[string]string{"X-Api-Token": "secret"},
	}, server.Client(), zerolog.Nop())

	err := n.SendMessage(context.Background(), types.MessageEvent{
		Title:   "Torrents paused",
		Message: "home: ok\nseedbox: failed (connection refused)",
		Source:  "qblimiter",
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if method != http.MethodPut {
		t.Errorf("expected PUT, got %s", method)
	}
	if !ok || user != "u" || pass != "p" {
		t.Errorf("expected basic auth u/p, got %q/%q (%v)", user, pass, ok)
	}
	if apiToken != "secret" {
		t.Errorf("expected custom header, got %q", apiToken)
	}
	if got.Event != "report" || got.Channel != "hook" || got.Source != "qblimiter" {
		t.Errorf("unexpected payload %+v", got)
	}
	if len(got.Results) != 2 || !got.Results[0].OK || got.Results[1].Error != "connection refused" {
		t.Errorf("unexpected results %+v", got.Results)
	}
	if got.Failures != 1 {
		t.Errorf("failures = %d, want 1", got.Failures)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestNotifier_DefaultsToPost(t *testing.T) {
	n := New("hook", Settings{URL: "http://example.invalid"}, nil, zerolog.Nop())
	if n.settings.Method != http.MethodPost {
		t.Errorf("expected POST default, got %s", n.settings.Method)
	}
	if n.Type() != types.NotifierWebhook {
		t.Errorf("expected webhook type, got %s", n.Type())
	}
}

func TestNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	n := New("hook", Settings{URL: server.URL}, server.Client(), zerolog.Nop())
	err := n.Test(context.Background())

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusBadGateway || statusErr.Body != "upstream down" {
		t.Errorf("unexpected error %+v", statusErr)
	}
}

func TestMessageEvent_Results(t *testing.T) {
	event := types.MessageEvent{Message: "Upload limit set to 500 KB/s\nhome: ok\nnas: failed (auth: denied)\nnot a result"}
	results := event.Results()
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0] != (types.ClientResult{Client: "home", OK: true}) {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1] != (types.ClientResult{Client: "nas", Error: "auth: denied"}) {
		t.Errorf("results[1] = %+v", results[1])
	}
}
