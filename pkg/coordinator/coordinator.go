// Package coordinator drives one request end to end: security check,
// intent resolution, module fan-out over the bus, response synthesis, and
// metrics recording. A response is always produced, even on internal
// failure.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"synapse/pkg/bus"
	"synapse/pkg/config"
	"synapse/pkg/intent"
	"synapse/pkg/module"
	"synapse/pkg/security"
)

// IntentResolver resolves the intent and entities of one request input.
type IntentResolver interface {
	Analyze(ctx context.Context, input string, kind security.InputKind) (intent.Result, error)
}

// Synthesizer assembles the final response from the processing context.
type Synthesizer interface {
	Synthesize(ctx context.Context, pc *ProcessingContext) (map[string]any, error)
}

// Monitor records per-request metrics. Calls are fire-and-forget; a
// failing monitor never affects the response.
type Monitor interface {
	RecordRequest(pc *ProcessingContext)
}

// Coordinator owns the request pipeline and the runtime components it
// drives.
type Coordinator struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      *bus.Bus
	modules  *module.Manager
	gateway  *security.Gateway
	resolver IntentResolver
	synth    Synthesizer
	monitor  Monitor

	requestTimeout time.Duration

	mu      sync.Mutex
	running bool
	active  map[string]*ProcessingContext
}

// New wires a coordinator; Start must be called before processing.
func New(cfg *config.Config, log *slog.Logger, b *bus.Bus, modules *module.Manager, gateway *security.Gateway, resolver IntentResolver, synth Synthesizer, monitor Monitor) *Coordinator {
	if log == nil {
		log = slog.Default()
	}

	return &Coordinator{
		cfg:            cfg,
		log:            log.With("component", "coordinator"),
		bus:            b,
		modules:        modules,
		gateway:        gateway,
		resolver:       resolver,
		synth:          synth,
		monitor:        monitor,
		requestTimeout: time.Duration(cfg.Bus.RequestTimeoutSeconds) * time.Second,
		active:         make(map[string]*ProcessingContext),
	}
}

// Start brings the bus up and loads every enabled module. An unreachable
// broker aborts startup; an individual module failure is logged and
// skipped so the rest of the system comes up.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.bus.Start(ctx); err != nil {
		return fmt.Errorf("start message bus: %w", err)
	}

	for _, name := range c.cfg.Modules.Enabled {
		var settings map[string]any
		if c.cfg.Settings != nil {
			settings = c.cfg.Settings[name]
		}
		if err := c.modules.Load(ctx, name, settings); err != nil {
			c.log.Error("Module failed to load", "module", name, "error", err)
		}
	}

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	c.log.Info("Coordinator started", "modules", len(c.cfg.Modules.Enabled))
	return nil
}

// ProcessRequest runs the full pipeline for one request. The returned
// result always has the same shape; Status distinguishes success from
// error, and on error the response text explains what happened.
func (c *Coordinator) ProcessRequest(ctx context.Context, input any, kind security.InputKind, userContext map[string]any) (result Result) {
	start := time.Now()

	pc := &ProcessingContext{
		RequestID:       uuid.NewString(),
		Input:           input,
		Kind:            kind,
		UserContext:     userContext,
		ModuleResponses: make(map[string]map[string]any),
	}

	c.mu.Lock()
	c.active[pc.RequestID] = pc
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.active, pc.RequestID)
		c.mu.Unlock()
	}()

	// Central failure boundary: any panic below becomes the standard
	// error-response shape instead of propagating to the caller.
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Request pipeline panicked", "request_id", pc.RequestID, "panic", r)
			pc.ProcessingTime = time.Since(start)
			result = c.errorResult(pc, fmt.Sprintf("internal error: %v", r))
		}
	}()

	c.log.Info("Request received", "request_id", pc.RequestID, "kind", kind)

	verdict := c.gateway.Validate(security.Request{ID: pc.RequestID, Input: input, Kind: kind})
	pc.Verdict = &verdict
	if !verdict.Allowed {
		c.log.Warn("Request denied", "request_id", pc.RequestID, "reason", verdict.Reason, "risk", verdict.Risk)
		pc.ProcessingTime = time.Since(start)
		return c.errorResult(pc, verdict.Reason)
	}

	resolved, err := c.resolver.Analyze(ctx, textInput(input), kind)
	if err != nil {
		c.log.Warn("Intent resolution failed", "request_id", pc.RequestID, "error", err)
		resolved = intent.Result{Intent: intent.Unknown}
	}
	pc.Intent = resolved.Intent
	pc.Confidence = resolved.Confidence
	pc.Entities = resolved.Entities

	c.fanOut(ctx, pc)

	response, err := c.synth.Synthesize(ctx, pc)
	if err != nil {
		pc.ProcessingTime = time.Since(start)
		return c.errorResult(pc, fmt.Sprintf("synthesize response: %v", err))
	}
	pc.Response = response
	pc.ProcessingTime = time.Since(start)

	c.record(pc)

	c.log.Info("Request completed", "request_id", pc.RequestID, "intent", pc.Intent, "duration", pc.ProcessingTime)

	return Result{
		RequestID:      pc.RequestID,
		Response:       response,
		Intent:         pc.Intent,
		ProcessingTime: pc.ProcessingTime,
		Status:         StatusSuccess,
	}
}

// fanOut issues one bus request per target module concurrently and
// collects results by completion. A failing or timed-out module yields an
// error entry for that module only; siblings are unaffected.
func (c *Coordinator) fanOut(ctx context.Context, pc *ProcessingContext) {
	targets := targetModules(pc.Kind, pc.Intent)
	messageType := "process_" + string(pc.Kind)
	payload := map[string]any{
		"input":    pc.Input,
		"intent":   pc.Intent,
		"entities": pc.Entities,
		"context":  pc.UserContext,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, name := range targets {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			response, err := c.bus.Request(ctx, name, messageType, payload, c.requestTimeout)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.log.Warn("Module request failed", "request_id", pc.RequestID, "module", name, "error", err)
				pc.ModuleResponses[name] = map[string]any{"error": err.Error()}
				return
			}
			pc.ModuleResponses[name] = response
		}(name)
	}
	wg.Wait()
}

// record hands the context to the monitor; a panicking monitor is logged
// and swallowed.
func (c *Coordinator) record(pc *ProcessingContext) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("Metrics recording failed", "request_id", pc.RequestID, "panic", r)
		}
	}()

	c.monitor.RecordRequest(pc)
}

func (c *Coordinator) errorResult(pc *ProcessingContext, reason string) Result {
	response := map[string]any{
		"type":  "error",
		"text":  "Sorry, something went wrong: " + reason,
		"error": reason,
	}
	pc.Response = response

	return Result{
		RequestID:      pc.RequestID,
		Response:       response,
		Intent:         pc.Intent,
		ProcessingTime: pc.ProcessingTime,
		Status:         StatusError,
		Error:          reason,
	}
}

// SystemStatus reports the coordinator's view of the runtime.
func (c *Coordinator) SystemStatus() SystemStatus {
	c.mu.Lock()
	running := c.running
	activeCount := len(c.active)
	c.mu.Unlock()

	return SystemStatus{
		Running:        running,
		ActiveRequests: activeCount,
		Components: map[string]any{
			"bus":      c.bus.Metrics(),
			"modules":  c.modules.Stats(),
			"security": c.gateway.Stats(),
		},
	}
}

// Close unloads all modules and stops the bus. Safe to call twice.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	err := c.modules.Close(ctx)
	c.bus.Close()

	c.log.Info("Coordinator stopped")
	return err
}

func textInput(input any) string {
	switch value := input.(type) {
	case string:
		return value
	case []byte:
		return string(value)
	default:
		return fmt.Sprint(value)
	}
}
