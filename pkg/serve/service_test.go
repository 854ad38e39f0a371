package serve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"synapse/pkg/bus"
	"synapse/pkg/config"
	"synapse/pkg/coordinator"
	"synapse/pkg/intent"
	"synapse/pkg/module"
	"synapse/pkg/monitor"
	"synapse/pkg/security"
	"synapse/pkg/skills"
	"synapse/pkg/synth"
)

func newTestService(t *testing.T, started bool) *Service {
	t.Helper()

	cfg := config.Default()
	b := bus.New(cfg.Bus, nil)
	manager := module.NewManager(b, nil)
	skills.RegisterBuiltins(manager, nil, nil)

	gateway, err := security.NewGateway(cfg.Security, nil)
	if err != nil {
		t.Fatalf("NewGateway error: %v", err)
	}

	mon := monitor.New(nil)
	c := coordinator.New(cfg, nil, b, manager, gateway,
		intent.NewResolver(nil), synth.New(cfg.Synth, nil), mon)

	if started {
		if err := c.Start(context.Background()); err != nil {
			t.Fatalf("coordinator start error: %v", err)
		}
		t.Cleanup(func() { _ = c.Close(context.Background()) })
	}

	svc, err := NewService(cfg, c, mon, nil)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

func TestHealthzAlwaysOK(t *testing.T) {
	svc := newTestService(t, false)

	recorder := httptest.NewRecorder()
	svc.handleHealth(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}

	var payload statusResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("status = %q, want ok", payload.Status)
	}
}

func TestReadyzReflectsCoordinatorState(t *testing.T) {
	stopped := newTestService(t, false)
	recorder := httptest.NewRecorder()
	stopped.handleReady(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before start", recorder.Code)
	}

	running := newTestService(t, true)
	recorder = httptest.NewRecorder()
	running.handleReady(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when running", recorder.Code)
	}
}

func TestProcessEndpointRoundTrip(t *testing.T) {
	svc := newTestService(t, true)

	body := strings.NewReader(`{"input": "Hello", "kind": "text"}`)
	recorder := httptest.NewRecorder()
	svc.handleProcess(recorder, httptest.NewRequest(http.MethodPost, "/v1/process", body))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", recorder.Code, recorder.Body.String())
	}

	var result coordinator.Result
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Status != coordinator.StatusSuccess {
		t.Fatalf("result status = %q, want success", result.Status)
	}
	if result.Intent != "greeting" {
		t.Fatalf("intent = %q, want greeting", result.Intent)
	}
}

func TestProcessEndpointDeniedInput(t *testing.T) {
	svc := newTestService(t, true)

	body := strings.NewReader(`{"input": "run DROP TABLE users", "kind": "text"}`)
	recorder := httptest.NewRecorder()
	svc.handleProcess(recorder, httptest.NewRequest(http.MethodPost, "/v1/process", body))

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", recorder.Code)
	}
}

func TestProcessEndpointRejectsBadMethodAndBody(t *testing.T) {
	svc := newTestService(t, false)

	recorder := httptest.NewRecorder()
	svc.handleProcess(recorder, httptest.NewRequest(http.MethodGet, "/v1/process", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	svc.handleProcess(recorder, httptest.NewRequest(http.MethodPost, "/v1/process", strings.NewReader("{broken")))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}
