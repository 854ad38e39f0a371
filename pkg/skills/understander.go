package skills

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"synapse/pkg/bus"
)

const understanderName = "text_understander"

// stopwords are excluded from keyword extraction.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "and": true, "or": true, "to": true,
	"of": true, "in": true, "on": true, "for": true, "it": true,
	"my": true, "me": true, "i": true, "you": true, "what": true,
}

// TextUnderstander answers process_text requests with a lightweight
// linguistic breakdown of the input: normalized text, word count, and
// extracted keywords.
type TextUnderstander struct {
	log         *slog.Logger
	maxKeywords int
	cancel      func()
}

// NewTextUnderstander builds the module. Settings: max_keywords (int).
func NewTextUnderstander(settings map[string]any, log *slog.Logger) *TextUnderstander {
	if log == nil {
		log = slog.Default()
	}

	maxKeywords := 5
	if value, ok := settings["max_keywords"].(float64); ok && value > 0 {
		maxKeywords = int(value)
	}

	return &TextUnderstander{
		log:         log.With("component", "module."+understanderName),
		maxKeywords: maxKeywords,
	}
}

// Initialize subscribes to text processing requests.
func (u *TextUnderstander) Initialize(ctx context.Context, b *bus.Bus) error {
	u.cancel = b.Subscribe("process_text", func(msg bus.Message) {
		if !msg.AddressedTo(understanderName) {
			return
		}

		input, _ := msg.Payload["input"].(string)
		reply := bus.Reply(msg, understanderName, u.analyze(input))
		if _, err := b.Publish(context.Background(), reply); err != nil {
			u.log.Warn("Reply publish failed", "request", msg.ID, "error", err)
		}
	})

	u.log.Info("Text understander ready", "max_keywords", u.maxKeywords)
	return nil
}

func (u *TextUnderstander) analyze(input string) map[string]any {
	normalized := strings.Join(strings.Fields(strings.ToLower(input)), " ")
	words := strings.Fields(normalized)

	counts := make(map[string]int)
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" || stopwords[word] {
			continue
		}
		counts[word]++
	}

	keywords := make([]string, 0, len(counts))
	for word := range counts {
		keywords = append(keywords, word)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > u.maxKeywords {
		keywords = keywords[:u.maxKeywords]
	}

	return map[string]any{
		"processed_text": normalized,
		"word_count":     len(words),
		"keywords":       keywords,
	}
}

// Shutdown drops the bus subscription.
func (u *TextUnderstander) Shutdown(context.Context) error {
	if u.cancel != nil {
		u.cancel()
	}
	return nil
}

// Status reports module configuration.
func (u *TextUnderstander) Status() map[string]any {
	return map[string]any{"max_keywords": u.maxKeywords}
}
