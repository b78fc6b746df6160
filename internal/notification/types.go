package notification

import (
	"time"

	"github.com/gamevyo/qblimiter/internal/notification/types"
)

// Re-export types from the types sub-package
type (
	NotifierType = types.NotifierType
	Notifier     = types.Notifier
	MessageEvent = types.MessageEvent
)

// Re-export constants
const (
	NotifierTelegram = types.NotifierTelegram
	NotifierWebhook  = types.NotifierWebhook
	NotifierMock     = types.NotifierMock
)

// ChannelInfo describes a configured notification channel.
type ChannelInfo struct {
	Name         string       `json:"name"`
	Type         NotifierType `json:"type"`
	DisabledTill *time.Time   `json:"disabledTill,omitempty"`
}

// Status tracks notification failures for backoff logic
type Status struct {
	InitialFailure    time.Time
	MostRecentFailure time.Time
	EscalationLevel   int
	DisabledTill      time.Time
}

// TestResult contains the result of testing a notification
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
