package coordinator_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

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

type system struct {
	coordinator *coordinator.Coordinator
	monitor     *monitor.Monitor
}

func newSystem(t *testing.T, mutate func(*config.Config)) *system {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	b := bus.New(cfg.Bus, nil)
	manager := module.NewManager(b, nil)
	skills.RegisterBuiltins(manager, nil, cfg.Modules.Dependencies)

	gateway, err := security.NewGateway(cfg.Security, nil)
	require.NoError(t, err)

	mon := monitor.New(nil)
	c := coordinator.New(cfg, nil, b, manager, gateway,
		intent.NewResolver(nil), synth.New(cfg.Synth, nil), mon)

	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	return &system{coordinator: c, monitor: mon}
}

func TestProcessTextRequestEndToEnd(t *testing.T) {
	sys := newSystem(t, nil)

	result := sys.coordinator.ProcessRequest(context.Background(), "Hello", security.KindText, nil)

	require.Equal(t, coordinator.StatusSuccess, result.Status)
	require.Equal(t, "greeting", result.Intent)
	require.NotEmpty(t, result.RequestID)

	text, _ := result.Response["text"].(string)
	require.Contains(t, text, "Hello")

	data, ok := result.Response["data"].(map[string]any)
	require.True(t, ok, "expected merged module data")
	require.Equal(t, 1, data["word_count"])
	require.Equal(t, true, data["stored"])

	snap := sys.monitor.Snapshot()
	require.EqualValues(t, 1, snap.Requests)
	require.EqualValues(t, 1, snap.ByIntent["greeting"])
}

func TestMaliciousInputDeniedBeforeModules(t *testing.T) {
	sys := newSystem(t, nil)

	result := sys.coordinator.ProcessRequest(context.Background(),
		"please run DROP TABLE users", security.KindText, nil)

	require.Equal(t, coordinator.StatusError, result.Status)
	require.Contains(t, result.Error, "denylisted pattern")

	text, _ := result.Response["text"].(string)
	require.True(t, strings.HasPrefix(text, "Sorry, something went wrong:"), "text = %q", text)

	// Denied requests never reach the metrics path.
	require.EqualValues(t, 0, sys.monitor.Snapshot().Requests)
}

func TestUnresponsiveModulesStillProduceAnswer(t *testing.T) {
	sys := newSystem(t, func(cfg *config.Config) {
		cfg.Modules.Enabled = nil
		cfg.Bus.RequestTimeoutSeconds = 1
	})

	result := sys.coordinator.ProcessRequest(context.Background(), "Hello", security.KindText, nil)

	require.Equal(t, coordinator.StatusSuccess, result.Status)
	require.NotEmpty(t, result.Response["text"])
	require.Contains(t, result.Response, "text_understander_error")
	require.Contains(t, result.Response, "memory_short_term_error")
}

func TestOverlongInputDenied(t *testing.T) {
	sys := newSystem(t, func(cfg *config.Config) {
		cfg.Security.MaxTextLength = 16
	})

	result := sys.coordinator.ProcessRequest(context.Background(),
		strings.Repeat("a", 17), security.KindText, nil)

	require.Equal(t, coordinator.StatusError, result.Status)
	require.Contains(t, result.Error, "maximum length")
}

func TestSystemStatusReportsComponents(t *testing.T) {
	sys := newSystem(t, nil)

	status := sys.coordinator.SystemStatus()

	require.True(t, status.Running)
	require.Zero(t, status.ActiveRequests)
	require.Contains(t, status.Components, "bus")
	require.Contains(t, status.Components, "modules")
	require.Contains(t, status.Components, "security")
}

func TestCloseIsIdempotent(t *testing.T) {
	sys := newSystem(t, nil)

	require.NoError(t, sys.coordinator.Close(context.Background()))
	require.NoError(t, sys.coordinator.Close(context.Background()))
	require.False(t, sys.coordinator.SystemStatus().Running)
}
