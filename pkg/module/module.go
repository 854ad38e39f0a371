// Package module owns the set of loaded modules and their dependency
// graph. A module is only usable once every declared dependency is usable.
package module

import (
	"context"

	"synapse/pkg/bus"
)

// Module is the contract every pluggable unit exposes to the manager.
// Shutdown, status, and health reporting are optional interfaces; their
// absence means "always healthy, nothing to report".
type Module interface {
	Initialize(ctx context.Context, b *bus.Bus) error
}

// Shutdowner is implemented by modules that need teardown on unload.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// StatusReporter is implemented by modules that expose extra status detail.
type StatusReporter interface {
	Status() map[string]any
}

// HealthReporter is implemented by modules with a liveness check.
type HealthReporter interface {
	Healthy() bool
}

// Factory constructs a module instance from its settings.
type Factory func(settings map[string]any) (Module, error)

// Registration binds a module name to its declared dependencies and
// factory. Registration is explicit and compiled in; there is no
// load-by-string reflection.
type Registration struct {
	Name         string
	Dependencies []string
	Factory      Factory
}

// State is the lifecycle state of one module record.
type State string

const (
	StateUnloaded    State = "unloaded"
	StateLoading     State = "loading"
	StateInitialized State = "initialized"
	StateError       State = "error"
)

// Status is the manager's view of one module.
type Status struct {
	Name    string         `json:"name"`
	State   State          `json:"state"`
	Healthy bool           `json:"healthy"`
	Details map[string]any `json:"details,omitempty"`
}
