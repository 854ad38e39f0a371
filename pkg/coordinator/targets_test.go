package coordinator

import (
	"reflect"
	"testing"

	"synapse/pkg/security"
)

func TestTargetModulesUnionsBaselineAndIntent(t *testing.T) {
	got := targetModules(security.KindText, "weather")
	want := []string{"api_caller", "memory_short_term", "search_agent", "text_understander"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("targets = %v, want %v", got, want)
	}
}

func TestTargetModulesDeduplicates(t *testing.T) {
	got := targetModules(security.KindAudio, "unknown")
	want := []string{"memory_short_term", "speech_recognizer", "text_understander"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("targets = %v, want %v", got, want)
	}
}

func TestTargetModulesUnknownKindHasNoBaseline(t *testing.T) {
	if got := targetModules(security.InputKind("video"), "calculation"); !reflect.DeepEqual(got, []string{"logic_analyzer"}) {
		t.Fatalf("targets = %v, want intent targets only", got)
	}
}
