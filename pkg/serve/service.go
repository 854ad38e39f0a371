// Package serve exposes the running coordinator over HTTP: liveness and
// readiness probes, a status snapshot, and a request-processing endpoint.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"synapse/pkg/config"
	"synapse/pkg/coordinator"
	"synapse/pkg/monitor"
	"synapse/pkg/security"
)

type Service struct {
	cfg         *config.Config
	log         *slog.Logger
	coordinator *coordinator.Coordinator
	monitor     *monitor.Monitor

	mu        sync.RWMutex
	startedAt time.Time
}

type statusResponse struct {
	Status        string                   `json:"status"`
	UptimeSeconds int64                    `json:"uptime_seconds"`
	System        coordinator.SystemStatus `json:"system"`
	Metrics       monitor.Snapshot         `json:"metrics"`
}

type processRequest struct {
	Input   string         `json:"input"`
	Kind    string         `json:"kind,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func NewService(cfg *config.Config, c *coordinator.Coordinator, mon *monitor.Monitor, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if c == nil {
		return nil, errors.New("coordinator is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		cfg:         cfg,
		log:         log.With("component", "serve.service"),
		coordinator: c,
		monitor:     mon,
	}, nil
}

// Run serves until the context is cancelled or the listener fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	host := strings.TrimSpace(s.cfg.Serve.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	addr := host + ":" + strconv.Itoa(s.cfg.Serve.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/v1/process", s.handleProcess)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start status server: %w", err)
	}
	return nil
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.coordinator.SystemStatus().Running {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	kind := security.KindText
	if req.Kind != "" {
		kind = security.InputKind(req.Kind)
	}

	result := s.coordinator.ProcessRequest(r.Context(), req.Input, kind, req.Context)

	w.Header().Set("Content-Type", "application/json")
	if result.Status == coordinator.StatusError {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.log.Error("Failed to write process response", "error", err)
	}
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	startedAt := s.startedAt
	s.mu.RUnlock()

	uptime := int64(0)
	if !startedAt.IsZero() {
		uptime = int64(time.Since(startedAt).Seconds())
	}

	var metrics monitor.Snapshot
	if s.monitor != nil {
		metrics = s.monitor.Snapshot()
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		System:        s.coordinator.SystemStatus(),
		Metrics:       metrics,
	}
}
