package module

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"synapse/pkg/bus"
)

var (
	// ErrNotRegistered is returned for names without a registration.
	ErrNotRegistered = errors.New("module: not registered")

	// ErrDependencyCycle is returned when the declared dependency graph
	// contains a cycle; loading fails fast instead of recursing forever.
	ErrDependencyCycle = errors.New("module: dependency cycle")

	// ErrModuleInUse is returned when unloading a module another loaded
	// module still depends on.
	ErrModuleInUse = errors.New("module: still required by loaded modules")
)

type record struct {
	registration Registration
	state        State
	instance     Module
	settings     map[string]any
}

// Manager loads, initializes, and tears down modules in dependency order.
// It is the sole owner of the module record table.
type Manager struct {
	bus *bus.Bus
	log *slog.Logger

	mu        sync.Mutex
	registry  map[string]Registration
	records   map[string]*record
	loadOrder []string
}

// NewManager builds a manager bound to the bus modules initialize against.
func NewManager(b *bus.Bus, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		bus:      b,
		log:      log.With("component", "module.manager"),
		registry: make(map[string]Registration),
		records:  make(map[string]*record),
	}
}

// Register adds one module registration. Registering the same name twice
// replaces the earlier entry; loaded instances are unaffected.
func (m *Manager) Register(reg Registration) {
	m.mu.Lock()
	m.registry[reg.Name] = reg
	m.mu.Unlock()
}

// Registered reports whether a name has a registration.
func (m *Manager) Registered(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.registry[name]
	return ok
}

// Load constructs and initializes the named module, loading any not-yet-
// loaded dependency first (depth-first). The module reaches state
// initialized only after every dependency is initialized; on any failure
// the record holds state error and nothing is half-registered.
func (m *Manager) Load(ctx context.Context, name string, settings map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkCycle(name, name, make(map[string]bool)); err != nil {
		return err
	}

	return m.loadLocked(ctx, name, settings)
}

// checkCycle walks the declared dependency graph from name and fails fast
// when it can reach itself again.
func (m *Manager) checkCycle(root string, name string, visiting map[string]bool) error {
	reg, ok := m.registry[name]
	if !ok {
		// Missing registrations are reported by loadLocked with context.
		return nil
	}

	visiting[name] = true
	for _, dep := range reg.Dependencies {
		if dep == root || visiting[dep] {
			return fmt.Errorf("%w: %s -> %s", ErrDependencyCycle, name, dep)
		}
		if err := m.checkCycle(root, dep, visiting); err != nil {
			return err
		}
	}
	delete(visiting, name)

	return nil
}

func (m *Manager) loadLocked(ctx context.Context, name string, settings map[string]any) error {
	if rec, ok := m.records[name]; ok && rec.state == StateInitialized {
		return nil
	}

	reg, ok := m.registry[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	rec := &record{registration: reg, state: StateLoading, settings: settings}
	m.records[name] = rec

	for _, dep := range reg.Dependencies {
		if err := m.loadLocked(ctx, dep, nil); err != nil {
			rec.state = StateError
			return fmt.Errorf("load dependency %s of %s: %w", dep, name, err)
		}
	}

	instance, err := reg.Factory(settings)
	if err != nil {
		rec.state = StateError
		return fmt.Errorf("construct module %s: %w", name, err)
	}

	if err := instance.Initialize(ctx, m.bus); err != nil {
		rec.state = StateError
		return fmt.Errorf("initialize module %s: %w", name, err)
	}

	rec.instance = instance
	rec.state = StateInitialized
	m.loadOrder = append(m.loadOrder, name)

	m.log.Info("Module loaded", "module", name, "dependencies", len(reg.Dependencies))
	return nil
}

// Unload shuts the named module down and removes its record. It refuses
// while another loaded module declares name as a dependency.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unloadLocked(ctx, name)
}

func (m *Manager) unloadLocked(ctx context.Context, name string) error {
	rec, ok := m.records[name]
	if !ok || rec.state != StateInitialized {
		delete(m.records, name)
		return nil
	}

	for other, otherRec := range m.records {
		if other == name || otherRec.state != StateInitialized {
			continue
		}
		for _, dep := range otherRec.registration.Dependencies {
			if dep == name {
				return fmt.Errorf("%w: %s is required by %s", ErrModuleInUse, name, other)
			}
		}
	}

	if closer, ok := rec.instance.(Shutdowner); ok {
		if err := closer.Shutdown(ctx); err != nil {
			m.log.Warn("Module shutdown failed", "module", name, "error", err)
		}
	}

	delete(m.records, name)
	for i, loaded := range m.loadOrder {
		if loaded == name {
			m.loadOrder = append(m.loadOrder[:i], m.loadOrder[i+1:]...)
			break
		}
	}

	m.log.Info("Module unloaded", "module", name)
	return nil
}

// Reload unloads and loads the module with its last known settings. When
// the unload is refused the reload fails without side effects.
func (m *Manager) Reload(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var settings map[string]any
	if rec, ok := m.records[name]; ok {
		settings = rec.settings
	}

	if err := m.unloadLocked(ctx, name); err != nil {
		return err
	}

	return m.loadLocked(ctx, name, settings)
}

// UpdateSettings reloads the module with new settings. A refused unload
// fails the update without side effects.
func (m *Manager) UpdateSettings(ctx context.Context, name string, settings map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.unloadLocked(ctx, name); err != nil {
		return err
	}

	return m.loadLocked(ctx, name, settings)
}

// Get returns the live instance for a loaded module.
func (m *Manager) Get(name string) (Module, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[name]
	if !ok || rec.state != StateInitialized {
		return nil, false
	}
	return rec.instance, true
}

// Status reports the lifecycle state of one module plus whatever the
// module's own status contract offers. A failing status query is logged
// and omitted, never propagated.
func (m *Manager) Status(name string) Status {
	m.mu.Lock()
	rec, ok := m.records[name]
	m.mu.Unlock()

	if !ok {
		return Status{Name: name, State: StateUnloaded}
	}

	status := Status{Name: name, State: rec.state, Healthy: rec.state == StateInitialized}
	if rec.instance == nil {
		return status
	}

	if reporter, ok := rec.instance.(HealthReporter); ok {
		status.Healthy = m.safeHealthy(name, reporter)
	}
	if reporter, ok := rec.instance.(StatusReporter); ok {
		status.Details = m.safeDetails(name, reporter)
	}

	return status
}

func (m *Manager) safeHealthy(name string, reporter HealthReporter) (healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("Module health query panicked", "module", name, "panic", r)
			healthy = false
		}
	}()
	return reporter.Healthy()
}

func (m *Manager) safeDetails(name string, reporter StatusReporter) (details map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("Module status query panicked", "module", name, "panic", r)
			details = nil
		}
	}()
	return reporter.Status()
}

// AllStatuses reports the status of every tracked module.
func (m *Manager) AllStatuses() map[string]Status {
	m.mu.Lock()
	names := make([]string, 0, len(m.records))
	for name := range m.records {
		names = append(names, name)
	}
	m.mu.Unlock()

	statuses := make(map[string]Status, len(names))
	for _, name := range names {
		statuses[name] = m.Status(name)
	}
	return statuses
}

// Stats reports aggregate manager counters for status queries.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, rec := range m.records {
		if rec.state == StateInitialized {
			loaded++
		}
	}

	return map[string]any{
		"registered": len(m.registry),
		"loaded":     loaded,
		"load_order": append([]string(nil), m.loadOrder...),
	}
}

// Close unloads every module in reverse load order, collecting failures
// without stopping. A second call finds nothing loaded and is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.loadOrder) - 1; i >= 0; i-- {
		name := m.loadOrder[i]
		if err := m.unloadLocked(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
