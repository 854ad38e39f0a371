// Package intent classifies request text into a small fixed set of
// intents using keyword patterns, and extracts simple entities along the
// way. It is deliberately rule-based: cheap, deterministic, and good
// enough to route requests to the right modules.
package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"synapse/pkg/security"
)

// Unknown is the intent assigned when no pattern matches.
const Unknown = "unknown"

// Result is the outcome of analyzing one input.
type Result struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities,omitempty"`
}

// patternsPerIntent is the score ceiling: an intent matching this many
// patterns gets confidence 1.0.
const patternsPerIntent = 5

// intentOrder fixes tie-breaking so analysis is deterministic.
var intentOrder = []string{
	"greeting", "goodbye", "weather", "calculation", "time",
	"search", "creative", "planning", "emotional",
}

var intentPatterns = map[string][]string{
	"greeting": {
		`\b(hello|hi|hey|howdy)\b`,
		`\bgood\s+(morning|afternoon|evening)\b`,
		`\bnice\s+to\s+meet\s+you\b`,
	},
	"goodbye": {
		`\b(bye|goodbye|farewell)\b`,
		`\bsee\s+you\b`,
		`\bgood\s+night\b`,
	},
	"weather": {
		`\b(weather|forecast)\b`,
		`\b(temperature|degrees)\b`,
		`\b(rain|snow|sunny|cloudy|windy)\b`,
	},
	"calculation": {
		`\b(calculate|compute|sum)\b`,
		`\bhow\s+much\s+is\b`,
		`\b(plus|minus|times|divided\s+by)\b`,
		`\d+\s*[-+*/]\s*\d+`,
	},
	"time": {
		`\bwhat\s+time\b`,
		`\bcurrent\s+(time|date)\b`,
		`\bwhat\s+day\s+is\b`,
	},
	"search": {
		`\b(search|look\s+up|find\s+out)\b`,
		`\bwho\s+(is|was)\b`,
		`\bwhat\s+(is|are)\b`,
		`\btell\s+me\s+about\b`,
	},
	"creative": {
		`\b(write|compose)\b`,
		`\b(poem|story|song|joke)\b`,
		`\b(imagine|invent)\b`,
	},
	"planning": {
		`\b(plan|schedule|organize)\b`,
		`\b(remind|reminder)\b`,
		`\b(task|todo|appointment)\b`,
		`\b(goal|goals)\b`,
	},
	"emotional": {
		`\bi\s+(feel|am\s+feeling)\b`,
		`\b(sad|happy|angry|anxious|lonely|stressed|tired)\b`,
		`\b(cheer\s+me\s+up|comfort)\b`,
	},
}

var entityPatterns = map[string]*regexp.Regexp{
	"date":     regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|today|tomorrow|yesterday)\b`),
	"time":     regexp.MustCompile(`\b\d{1,2}:\d{2}\b`),
	"number":   regexp.MustCompile(`\b\d+(?:\.\d+)?\b`),
	"location": regexp.MustCompile(`\b(?:in|at)\s+([A-Z][a-zA-Z]+)`),
}

var expressionPattern = regexp.MustCompile(`\d+(?:\.\d+)?(?:\s*[-+*/]\s*\d+(?:\.\d+)?)+`)

// Resolver classifies inputs. It is safe for concurrent use; all state is
// compiled once at construction.
type Resolver struct {
	log      *slog.Logger
	patterns map[string][]*regexp.Regexp
}

// NewResolver compiles the intent patterns.
func NewResolver(log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}

	compiled := make(map[string][]*regexp.Regexp, len(intentPatterns))
	for name, raw := range intentPatterns {
		for _, pattern := range raw {
			compiled[name] = append(compiled[name], regexp.MustCompile(pattern))
		}
	}

	return &Resolver{
		log:      log.With("component", "intent.resolver"),
		patterns: compiled,
	}
}

// Analyze scores every intent against the lowercased input and returns
// the best match with its entities. An input matching nothing resolves to
// Unknown with a floor confidence of 0.1.
func (r *Resolver) Analyze(ctx context.Context, input string, kind security.InputKind) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	lower := strings.ToLower(input)

	best := Unknown
	bestScore := 0
	for _, name := range intentOrder {
		score := 0
		for _, pattern := range r.patterns[name] {
			if pattern.MatchString(lower) {
				score++
			}
		}
		if score > bestScore {
			best = name
			bestScore = score
		}
	}

	confidence := 0.1
	if bestScore > 0 {
		confidence = float64(bestScore) / patternsPerIntent
		if confidence > 1.0 {
			confidence = 1.0
		}
	}

	result := Result{
		Intent:     best,
		Confidence: confidence,
		Entities:   extractEntities(input, best),
	}

	r.log.Debug("Intent resolved", "intent", result.Intent, "confidence", result.Confidence, "kind", kind)
	return result, nil
}

// extractEntities pulls generic entities from the raw input plus the
// intent-specific ones that downstream modules expect.
func extractEntities(input, resolvedIntent string) map[string]any {
	entities := make(map[string]any)

	if match := entityPatterns["date"].FindString(strings.ToLower(input)); match != "" {
		entities["date"] = match
	}
	if match := entityPatterns["time"].FindString(input); match != "" {
		entities["time"] = match
	}
	if numbers := entityPatterns["number"].FindAllString(input, -1); len(numbers) > 0 {
		entities["numbers"] = numbers
	}
	if match := entityPatterns["location"].FindStringSubmatch(input); len(match) == 2 {
		entities["location"] = match[1]
	}

	switch resolvedIntent {
	case "calculation":
		if expr := expressionPattern.FindString(input); expr != "" {
			entities["expression"] = expr
		}
	case "weather":
		if _, ok := entities["location"]; !ok {
			entities["location"] = ""
		}
	}

	if len(entities) == 0 {
		return nil
	}
	return entities
}
