package skills

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"synapse/pkg/bus"
)

const memoryName = "memory_short_term"

// memoryEntry is one remembered input.
type memoryEntry struct {
	Content string    `json:"content"`
	Intent  string    `json:"intent,omitempty"`
	At      time.Time `json:"at"`
}

// ShortTermMemory keeps a bounded window of recent inputs and answers
// process_text requests with what it just stored and how full it is.
type ShortTermMemory struct {
	log      *slog.Logger
	capacity int
	cancel   func()

	mu      sync.RWMutex
	entries []memoryEntry
}

// NewShortTermMemory builds the module. Settings: capacity (int).
func NewShortTermMemory(settings map[string]any, log *slog.Logger) *ShortTermMemory {
	if log == nil {
		log = slog.Default()
	}

	capacity := 50
	if value, ok := settings["capacity"].(float64); ok && value > 0 {
		capacity = int(value)
	}

	return &ShortTermMemory{
		log:      log.With("component", "module."+memoryName),
		capacity: capacity,
	}
}

// Initialize subscribes to text processing requests.
func (m *ShortTermMemory) Initialize(ctx context.Context, b *bus.Bus) error {
	m.cancel = b.Subscribe("process_text", func(msg bus.Message) {
		if !msg.AddressedTo(memoryName) {
			return
		}

		input, _ := msg.Payload["input"].(string)
		intent, _ := msg.Payload["intent"].(string)
		m.remember(input, intent)

		reply := bus.Reply(msg, memoryName, map[string]any{
			"stored":      true,
			"memory_size": m.Size(),
		})
		if _, err := b.Publish(context.Background(), reply); err != nil {
			m.log.Warn("Reply publish failed", "request", msg.ID, "error", err)
		}
	})

	m.log.Info("Short-term memory ready", "capacity", m.capacity)
	return nil
}

// remember appends an entry, evicting the oldest past capacity.
func (m *ShortTermMemory) remember(content string, intent string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, memoryEntry{
		Content: content,
		Intent:  intent,
		At:      time.Now().UTC(),
	})
	if len(m.entries) > m.capacity {
		m.entries = m.entries[len(m.entries)-m.capacity:]
	}
}

// Recent returns up to limit of the newest entries, oldest first.
func (m *ShortTermMemory) Recent(limit int) []memoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	if limit == 0 {
		return nil
	}

	out := make([]memoryEntry, limit)
	copy(out, m.entries[len(m.entries)-limit:])
	return out
}

// Size reports how many entries are held.
func (m *ShortTermMemory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Shutdown drops the subscription and clears the window.
func (m *ShortTermMemory) Shutdown(context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
	return nil
}

// Status reports fill level for status queries.
func (m *ShortTermMemory) Status() map[string]any {
	return map[string]any{
		"capacity": m.capacity,
		"size":     m.Size(),
	}
}
