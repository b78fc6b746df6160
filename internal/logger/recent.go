package logger

import (
	"encoding/json"
	"sync"
)

const defaultRecentSize = 500

// LogMessageType is the WebSocket message type of streamed log entries.
const LogMessageType = "logs:entry"

// Broadcaster pushes log entries to connected UI clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// LogEntry is one parsed log line.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Recent is an io.Writer that keeps the last entries written by zerolog and
// optionally streams them to a hub.
type Recent struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
	hub     Broadcaster
}

func NewRecent(size int) *Recent {
	if size <= 0 {
		size = defaultRecentSize
	}
	return &Recent{entries: make([]LogEntry, size)}
}

// SetHub enables streaming. The hub may be set after logging has started.
func (r *Recent) SetHub(hub Broadcaster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hub = hub
}

// Write implements io.Writer. Lines that are not JSON are dropped.
func (r *Recent) Write(p []byte) (int, error) {
	entry, ok := parseEntry(p)
	if !ok {
		return len(p), nil
	}

	r.mu.Lock()
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	hub := r.hub
	r.mu.Unlock()

	if hub != nil && entry.Component != "websocket" {
		_ = hub.Broadcast(LogMessageType, entry)
	}
	return len(p), nil
}

// Entries returns the buffered entries, oldest first.
func (r *Recent) Entries() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]LogEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]LogEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

func parseEntry(data []byte) (LogEntry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, false
	}

	entry := LogEntry{}
	if ts, ok := raw["time"].(string); ok {
		entry.Timestamp = ts
		delete(raw, "time")
	}
	if level, ok := raw["level"].(string); ok {
		entry.Level = level
		delete(raw, "level")
	}
	if component, ok := raw["component"].(string); ok {
		entry.Component = component
		delete(raw, "component")
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry, true
}
