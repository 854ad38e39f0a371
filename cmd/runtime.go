package cmd

import (
	"errors"
	"fmt"
	"log/slog"

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

// loadConfig reads the active configuration, falling back to runnable
// defaults when no config file exists.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("using default configuration: %v\n", err)
		return config.Default()
	}
	return cfg
}

// buildRuntime assembles the full request pipeline from configuration.
func buildRuntime(cfg *config.Config, log *slog.Logger) (*coordinator.Coordinator, *monitor.Monitor, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is required")
	}

	b := bus.New(cfg.Bus, log)
	manager := module.NewManager(b, log)
	skills.RegisterBuiltins(manager, log, cfg.Modules.Dependencies)

	gateway, err := security.NewGateway(cfg.Security, log)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize security gateway: %w", err)
	}

	mon := monitor.New(log)
	c := coordinator.New(cfg, log, b, manager, gateway,
		intent.NewResolver(log), synth.New(cfg.Synth, log), mon)

	return c, mon, nil
}
