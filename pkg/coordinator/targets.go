package coordinator

import (
	"sort"

	"synapse/pkg/security"
)

// baselineTargets maps an input kind to the modules that always see it.
var baselineTargets = map[security.InputKind][]string{
	security.KindText:  {"text_understander", "memory_short_term"},
	security.KindAudio: {"speech_recognizer", "text_understander", "memory_short_term"},
	security.KindImage: {"visual_processor", "memory_short_term"},
}

// intentTargets maps a resolved intent to the modules it pulls in on top
// of the baseline.
var intentTargets = map[string][]string{
	"weather":     {"search_agent", "api_caller"},
	"calculation": {"logic_analyzer"},
	"creative":    {"creativity"},
	"planning":    {"task_planner", "goals"},
	"emotional":   {"emotional_engine"},
}

// targetModules is the deduplicated union of baseline and intent targets,
// sorted so fan-out is deterministic.
func targetModules(kind security.InputKind, intent string) []string {
	seen := make(map[string]bool)
	var targets []string

	add := func(names []string) {
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				targets = append(targets, name)
			}
		}
	}

	add(baselineTargets[kind])
	add(intentTargets[intent])

	sort.Strings(targets)
	return targets
}
