// Package skills ships the built-in modules and their registrations.
// Registration is explicit: the binary compiles in exactly the modules it
// can run, and configuration only chooses which of them to enable.
package skills

import (
	"log/slog"

	"synapse/pkg/module"
)

// Builtins returns the registrations for every compiled-in module.
func Builtins(log *slog.Logger) []module.Registration {
	return []module.Registration{
		{
			Name: "memory_short_term",
			Factory: func(settings map[string]any) (module.Module, error) {
				return NewShortTermMemory(settings, log), nil
			},
		},
		{
			Name:         "text_understander",
			Dependencies: []string{"memory_short_term"},
			Factory: func(settings map[string]any) (module.Module, error) {
				return NewTextUnderstander(settings, log), nil
			},
		},
	}
}

// RegisterBuiltins registers every built-in with the manager, applying
// dependency overrides from configuration where present.
func RegisterBuiltins(m *module.Manager, log *slog.Logger, dependencies map[string][]string) {
	for _, registration := range Builtins(log) {
		if override, ok := dependencies[registration.Name]; ok {
			registration.Dependencies = override
		}
		m.Register(registration)
	}
}
