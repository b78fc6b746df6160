// Package eventbus is the host's in-process publish/subscribe channel.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type identifies an event kind.
type Type string

const (
	// CommandExecute carries a remote textual command.
	CommandExecute Type = "command.execute"
	// PluginReload is published after a plugin's configuration changes.
	PluginReload Type = "plugin.reload"
)

// Event is a single message on the bus.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Source    string         `json:"source,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(eventType Type, source string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// NewCommandEvent builds a CommandExecute event for text received on source.
func NewCommandEvent(text, source, user string) Event {
	return NewEvent(CommandExecute, source, map[string]any{
		"cmd":    text,
		"source": source,
		"user":   user,
	})
}

// String returns data[key] as a string, or "" when missing.
func (e Event) String(key string) string {
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

// Handler receives events of the type it subscribed to.
type Handler func(ctx context.Context, event Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers events synchronously to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Type][]subscription
	nextID uint64
	logger zerolog.Logger
}

// New creates an empty bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:   make(map[Type][]subscription),
		logger: logger.With().Str("component", "eventbus").Logger(),
	}
}

// Subscribe registers handler for eventType and returns a function that removes it.
func (b *Bus) Subscribe(eventType Type, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[eventType]
	for i, s := range subs {
		if s.id == id {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[eventType]) == 0 {
		delete(b.subs, eventType)
	}
}

// Publish delivers event to every current subscriber of its type and
// returns the number of handlers invoked.
func (b *Bus) Publish(ctx context.Context, event Event) int {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs[event.Type]))
	copy(subs, b.subs[event.Type])
	b.mu.RUnlock()

	b.logger.Debug().
		Str("id", event.ID).
		Str("type", string(event.Type)).
		Str("source", event.Source).
		Int("subscribers", len(subs)).
		Msg("Publishing event")

	for _, s := range subs {
		b.deliver(ctx, s, event)
	}
	return len(subs)
}

func (b *Bus) deliver(ctx context.Context, s subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("id", event.ID).
				Str("type", string(event.Type)).
				Str("panic", fmt.Sprint(r)).
				Msg("Event handler panicked")
		}
	}()
	s.handler(ctx, event)
}

// SubscriberCount returns the number of handlers for eventType.
func (b *Bus) SubscriberCount(eventType Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
