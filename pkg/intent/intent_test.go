package intent

import (
	"context"
	"testing"

	"synapse/pkg/security"
)

func analyze(t *testing.T, input string) Result {
	t.Helper()

	r := NewResolver(nil)
	result, err := r.Analyze(context.Background(), input, security.KindText)
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	return result
}

func TestAnalyzeClassifiesCommonIntents(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"Hello there!", "greeting"},
		{"Good morning", "greeting"},
		{"What is the weather forecast for tomorrow?", "weather"},
		{"calculate 2 + 2 for me", "calculation"},
		{"what time is it?", "time"},
		{"tell me about black holes", "search"},
		{"write a short poem", "creative"},
		{"schedule a reminder for my appointment", "planning"},
		{"I feel sad and lonely", "emotional"},
		{"goodbye, see you later", "goodbye"},
	}

	for _, tc := range cases {
		got := analyze(t, tc.input)
		if got.Intent != tc.want {
			t.Errorf("Analyze(%q) intent = %q, want %q", tc.input, got.Intent, tc.want)
		}
		if got.Confidence <= 0.1 {
			t.Errorf("Analyze(%q) confidence = %v, want > 0.1", tc.input, got.Confidence)
		}
	}
}

func TestAnalyzeUnmatchedInputIsUnknown(t *testing.T) {
	got := analyze(t, "zzz qqq xxx")

	if got.Intent != Unknown {
		t.Fatalf("intent = %q, want %q", got.Intent, Unknown)
	}
	if got.Confidence != 0.1 {
		t.Fatalf("confidence = %v, want 0.1", got.Confidence)
	}
}

func TestAnalyzeConfidenceScalesWithMatches(t *testing.T) {
	one := analyze(t, "any forecast?")
	three := analyze(t, "what is the weather forecast, will it rain, what temperature?")

	if three.Confidence <= one.Confidence {
		t.Fatalf("confidence %v should exceed %v with more matching patterns", three.Confidence, one.Confidence)
	}
	if three.Confidence > 1.0 {
		t.Fatalf("confidence = %v, want <= 1.0", three.Confidence)
	}
}

func TestAnalyzeExtractsEntities(t *testing.T) {
	got := analyze(t, "calculate 12 + 30 at 14:45 tomorrow")

	if got.Entities == nil {
		t.Fatal("expected entities")
	}
	if got.Entities["expression"] != "12 + 30" {
		t.Fatalf("expression = %v, want %q", got.Entities["expression"], "12 + 30")
	}
	if got.Entities["time"] != "14:45" {
		t.Fatalf("time = %v, want %q", got.Entities["time"], "14:45")
	}
	if got.Entities["date"] != "tomorrow" {
		t.Fatalf("date = %v, want %q", got.Entities["date"], "tomorrow")
	}
}

func TestAnalyzeExtractsLocation(t *testing.T) {
	got := analyze(t, "what is the weather in Helsinki")

	if got.Intent != "weather" {
		t.Fatalf("intent = %q, want weather", got.Intent)
	}
	if got.Entities["location"] != "Helsinki" {
		t.Fatalf("location = %v, want Helsinki", got.Entities["location"])
	}
}

func TestAnalyzeHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(nil)
	if _, err := r.Analyze(ctx, "hello", security.KindText); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
