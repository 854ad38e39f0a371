// Package synth turns the collected module responses for one request into
// a single user-facing response. Rendering is template-based per intent;
// module payloads are merged into a data section, and a module that failed
// contributes an error marker instead of derailing synthesis.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"synapse/pkg/config"
	"synapse/pkg/coordinator"
)

var intentTemplates = map[string]string{
	"greeting":    "Hello! How can I help you today?",
	"goodbye":     "Goodbye! Talk to you soon.",
	"weather":     "Here is what I found about the weather{location}.",
	"calculation": "The result is {result}.",
	"time":        "It is {result}.",
	"search":      "Here is what I found: {result}",
	"creative":    "{result}",
	"planning":    "I have noted that. {result}",
	"emotional":   "I hear you. {result}",
}

const fallbackTemplate = "I processed your request but could not produce a specific answer."

// Synthesizer renders final responses. Safe for concurrent use.
type Synthesizer struct {
	cfg config.SynthConfig
	log *slog.Logger
}

// New builds a synthesizer with the configured style.
func New(cfg config.SynthConfig, log *slog.Logger) *Synthesizer {
	if log == nil {
		log = slog.Default()
	}

	return &Synthesizer{
		cfg: cfg,
		log: log.With("component", "synth"),
	}
}

// Synthesize merges the module responses and renders the intent template.
// The returned map always has type, text, intent, and confidence keys; the
// merged module payloads land under data, and every failed module adds a
// "<module>_error" entry.
func (s *Synthesizer) Synthesize(ctx context.Context, pc *coordinator.ProcessingContext) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := make(map[string]any)
	response := map[string]any{
		"type":       "text",
		"intent":     pc.Intent,
		"confidence": pc.Confidence,
	}

	for name, payload := range pc.ModuleResponses {
		if errValue, ok := payload["error"]; ok && len(payload) == 1 {
			response[name+"_error"] = fmt.Sprint(errValue)
			s.log.Warn("Module response missing", "module", name, "error", errValue)
			continue
		}
		for key, value := range payload {
			data[key] = value
		}
	}
	if len(data) > 0 {
		response["data"] = data
	}

	response["text"] = s.render(pc, data)
	return response, nil
}

// render fills the intent template from merged module data, preferring an
// explicit text answer from a module over the template.
func (s *Synthesizer) render(pc *coordinator.ProcessingContext, data map[string]any) string {
	if text, ok := data["text"].(string); ok && text != "" {
		return text
	}

	template, ok := intentTemplates[pc.Intent]
	if !ok {
		return fallbackTemplate
	}

	location := ""
	if value, ok := pc.Entities["location"].(string); ok && value != "" {
		location = " in " + value
	}

	result := ""
	if value, ok := data["result"]; ok {
		result = fmt.Sprint(value)
	}

	rendered := template
	rendered = strings.ReplaceAll(rendered, "{location}", location)
	rendered = strings.ReplaceAll(rendered, "{result}", result)
	rendered = strings.TrimSpace(rendered)

	if rendered == "" || rendered == "." {
		return fallbackTemplate
	}
	return rendered
}
