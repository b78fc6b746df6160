package mock

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/notification/types"
)

// NotificationRecord stores a sent notification for debugging/preview
type NotificationRecord struct {
	ID        int64     `json:"id"`
	EventType string    `json:"eventType"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sentAt"`
}

// Notifier is a mock notification provider for development and tests.
// It logs all notifications and keeps the most recent ones in memory.
type Notifier struct {
	name   string
	logger zerolog.Logger

	mu         sync.RWMutex
	records    []NotificationRecord
	nextID     int64
	maxRecords int
	failWith   error
}

// New creates a new mock notifier
func New(name string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		name:       name,
		logger:     logger.With().Str("notifier", "mock").Str("name", name).Logger(),
		records:    make([]NotificationRecord, 0),
		nextID:     1,
		maxRecords: 100,
	}
}

// FailWith makes subsequent sends return err. Pass nil to recover.
func (n *Notifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failWith = err
}

func (n *Notifier) Type() types.NotifierType {
	return types.NotifierMock
}

func (n *Notifier) Name() string {
	return n.name
}

func (n *Notifier) Test(_ context.Context) error {
	return n.record("test", "Test Notification", "This is a test notification from the mock notifier")
}

func (n *Notifier) SendMessage(_ context.Context, event types.MessageEvent) error {
	return n.record("message", event.Title, event.Message)
}

// Records returns a copy of the stored notifications, oldest first.
func (n *Notifier) Records() []NotificationRecord {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]NotificationRecord, len(n.records))
	copy(out, n.records)
	return out
}

func (n *Notifier) record(eventType, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failWith != nil {
		return n.failWith
	}

	n.records = append(n.records, NotificationRecord{
		ID:        n.nextID,
		EventType: eventType,
		Title:     title,
		Message:   message,
		SentAt:    time.Now(),
	})
	n.nextID++
	if len(n.records) > n.maxRecords {
		n.records = n.records[len(n.records)-n.maxRecords:]
	}

	n.logger.Info().Str("eventType", eventType).Str("title", title).Msg(message)
	return nil
}
