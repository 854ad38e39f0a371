// Package monitor keeps rolling request metrics for status queries.
package monitor

import (
	"log/slog"
	"sync"
	"time"

	"synapse/pkg/coordinator"
)

// Monitor accumulates per-request metrics. Safe for concurrent use.
type Monitor struct {
	log *slog.Logger

	mu           sync.Mutex
	requests     int64
	moduleErrors int64
	totalLatency time.Duration
	byIntent     map[string]int64
	lastRequest  time.Time
}

// Snapshot is a point-in-time copy of the accumulated metrics.
type Snapshot struct {
	Requests       int64            `json:"requests"`
	ModuleErrors   int64            `json:"module_errors"`
	AverageLatency time.Duration    `json:"average_latency"`
	ByIntent       map[string]int64 `json:"by_intent,omitempty"`
	LastRequest    time.Time        `json:"last_request,omitzero"`
}

// New builds an empty monitor.
func New(log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}

	return &Monitor{
		log:      log.With("component", "monitor"),
		byIntent: make(map[string]int64),
	}
}

// RecordRequest folds one completed request into the counters. Module
// error entries in the context count individually.
func (m *Monitor) RecordRequest(pc *coordinator.ProcessingContext) {
	errorCount := int64(0)
	for _, payload := range pc.ModuleResponses {
		if _, ok := payload["error"]; ok && len(payload) == 1 {
			errorCount++
		}
	}

	m.mu.Lock()
	m.requests++
	m.moduleErrors += errorCount
	m.totalLatency += pc.ProcessingTime
	if pc.Intent != "" {
		m.byIntent[pc.Intent]++
	}
	m.lastRequest = time.Now().UTC()
	m.mu.Unlock()

	m.log.Debug("Request recorded", "request_id", pc.RequestID, "intent", pc.Intent, "duration", pc.ProcessingTime)
}

// Snapshot copies the current counters.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byIntent := make(map[string]int64, len(m.byIntent))
	for intent, count := range m.byIntent {
		byIntent[intent] = count
	}

	var average time.Duration
	if m.requests > 0 {
		average = m.totalLatency / time.Duration(m.requests)
	}

	return Snapshot{
		Requests:       m.requests,
		ModuleErrors:   m.moduleErrors,
		AverageLatency: average,
		ByIntent:       byIntent,
		LastRequest:    m.lastRequest,
	}
}
