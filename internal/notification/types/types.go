// Package types contains shared type definitions for notification packages.
package types

import (
	"context"
	"strings"
	"time"
)

type NotifierType string

const (
	NotifierTelegram NotifierType = "telegram"
	NotifierWebhook  NotifierType = "webhook"
	NotifierMock     NotifierType = "mock"
)

// Notifier delivers messages to one configured channel.
type Notifier interface {
	Type() NotifierType
	Name() string
	Test(ctx context.Context) error
	SendMessage(ctx context.Context, event MessageEvent) error
}

// MessageEvent is a plugin report. Message holds one line per download
// client in the form "name: ok" or "name: failed (reason)", optionally
// preceded by free text.
type MessageEvent struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Source  string    `json:"source,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

// ClientResult is one parsed report line.
type ClientResult struct {
	Client string `json:"client"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Results extracts the per-client lines of the message.
func (e MessageEvent) Results() []ClientResult {
	var out []ClientResult
	for _, line := range strings.Split(e.Message, "\n") {
		name, rest, found := strings.Cut(strings.TrimSpace(line), ": ")
		if !found || name == "" || strings.ContainsAny(name, " \t") {
			continue
		}
		switch {
		case rest == "ok":
			out = append(out, ClientResult{Client: name, OK: true})
		case strings.HasPrefix(rest, "failed"):
			reason := strings.TrimSpace(strings.TrimPrefix(rest, "failed"))
			reason = strings.TrimSuffix(strings.TrimPrefix(reason, "("), ")")
			out = append(out, ClientResult{Client: name, Error: reason})
		}
	}
	return out
}
