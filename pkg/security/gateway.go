// Package security gates every inbound request through an ordered,
// short-circuiting pipeline of independent checks; the first failing check
// determines the verdict.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"synapse/pkg/config"
)

// InputKind classifies the raw input of one request.
type InputKind string

const (
	KindText  InputKind = "text"
	KindAudio InputKind = "audio"
	KindImage InputKind = "image"
)

// Recognized reports whether the kind is one the pipeline understands.
func (k InputKind) Recognized() bool {
	switch k {
	case KindText, KindAudio, KindImage:
		return true
	default:
		return false
	}
}

// Risk is the severity tier attached to a verdict.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Request is the gateway's view of one inbound request.
type Request struct {
	ID    string
	Input any
	Kind  InputKind
}

// Verdict is the allow/deny outcome for one request.
type Verdict struct {
	Allowed      bool     `json:"allowed"`
	Reason       string   `json:"reason"`
	Risk         Risk     `json:"risk"`
	ChecksPassed []string `json:"checks_passed"`
	ChecksFailed []string `json:"checks_failed"`
}

// Activity is one suspicious-activity record.
type Activity struct {
	At      time.Time      `json:"at"`
	Type    string         `json:"type"`
	Details map[string]any `json:"details,omitempty"`
}

const (
	checkRateLimit        = "rate_limit"
	checkContentSafety    = "content_safety"
	checkRequestStructure = "request_structure"
	checkAdvanced         = "advanced_checks"
)

var defaultPatterns = []string{
	`(?i)(drop\s+table|insert\s+into|select\s+\*|union\s+select)`,
	`(?i)(<script|javascript:|onload=|onerror=)`,
	`(?i)(\.\./|\.\.\\|/etc/passwd)`,
	`(?i)(bash|cmd\.exe|powershell)\s+`,
	`(?i)(phishing|malware|trojan)`,
}

var defaultKeywords = []string{
	"password", "credit card", "social security", "confidential",
	"hack", "exploit", "vulnerability", "backdoor",
}

// Gateway runs the validation pipeline and owns the rate-limit window and
// the bounded suspicious-activity log.
type Gateway struct {
	cfg     config.SecurityConfig
	log     *slog.Logger
	limiter *slidingWindow

	patterns []*regexp.Regexp
	keywords []string

	mu         sync.Mutex
	level      string
	activities []Activity
}

// NewGateway compiles the denylist and builds the pipeline from config.
func NewGateway(cfg config.SecurityConfig, log *slog.Logger) (*Gateway, error) {
	if log == nil {
		log = slog.Default()
	}

	raw := append(append([]string(nil), defaultPatterns...), cfg.ExtraPatterns...)
	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, pattern := range raw {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile denylist pattern %q: %w", pattern, err)
		}
		patterns = append(patterns, compiled)
	}

	return &Gateway{
		cfg:      cfg,
		log:      log.With("component", "security.gateway"),
		limiter:  newSlidingWindow(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second),
		patterns: patterns,
		keywords: append(append([]string(nil), defaultKeywords...), cfg.ExtraKeywords...),
		level:    cfg.Level,
	}, nil
}

// Validate runs the fixed pipeline: rate limit, content safety, structural
// validity, then advanced checks at the high security level. The first
// failing check short-circuits with its severity; a clean run allows with
// risk low.
func (g *Gateway) Validate(req Request) Verdict {
	var passed, failed []string

	deny := func(check string, reason string, risk Risk) Verdict {
		failed = append(failed, check)
		return Verdict{Reason: reason, Risk: risk, ChecksPassed: passed, ChecksFailed: failed}
	}

	clientID := deriveClientID(req.ID)
	if ok, count := g.limiter.allow(clientID); !ok {
		g.recordActivity("rate_limit_exceeded", map[string]any{"client_id": clientID, "request_count": count})
		return deny(checkRateLimit, "request rate limit exceeded", RiskHigh)
	}
	passed = append(passed, checkRateLimit)

	if reason, risk, ok := g.checkContent(req); !ok {
		return deny(checkContentSafety, reason, risk)
	}
	passed = append(passed, checkContentSafety)

	if !g.checkStructure(req) {
		return deny(checkRequestStructure, "malformed request structure", RiskMedium)
	}
	passed = append(passed, checkRequestStructure)

	if g.Level() == "high" {
		if reason, risk, ok := g.checkAdvanced(req); !ok {
			return deny(checkAdvanced, reason, risk)
		}
		passed = append(passed, checkAdvanced)
	}

	return Verdict{Allowed: true, Reason: "all checks passed", Risk: RiskLow, ChecksPassed: passed, ChecksFailed: failed}
}

func (g *Gateway) checkContent(req Request) (string, Risk, bool) {
	switch req.Kind {
	case KindText:
		return g.checkText(textOf(req.Input))
	case KindAudio:
		return g.checkBinary(req.Input, g.cfg.MaxAudioBytes, "audio")
	case KindImage:
		return g.checkBinary(req.Input, g.cfg.MaxImageBytes, "image")
	default:
		return fmt.Sprintf("unknown input kind: %s", req.Kind), RiskMedium, false
	}
}

func (g *Gateway) checkText(text string) (string, Risk, bool) {
	lower := strings.ToLower(text)

	g.mu.Lock()
	patterns := g.patterns
	g.mu.Unlock()

	for _, pattern := range patterns {
		if pattern.MatchString(lower) {
			g.recordActivity("malicious_pattern_detected", map[string]any{
				"pattern": pattern.String(),
				"sample":  truncate(text, 100),
			})
			return fmt.Sprintf("denylisted pattern matched: %s", pattern.String()), RiskHigh, false
		}
	}

	var found []string
	for _, keyword := range g.keywords {
		if strings.Contains(lower, keyword) {
			found = append(found, keyword)
		}
	}
	if len(found) > 0 {
		g.recordActivity("suspicious_keywords_detected", map[string]any{
			"keywords": found,
			"sample":   truncate(text, 100),
		})
		if len(found) >= 3 {
			return fmt.Sprintf("suspicious keywords detected: %s", strings.Join(found, ", ")), RiskHigh, false
		}
		g.log.Warn("Suspicious keywords below denial threshold", "keywords", found)
	}

	if len(text) > g.cfg.MaxTextLength {
		return "text input exceeds maximum length", RiskMedium, false
	}

	return "", RiskLow, true
}

func (g *Gateway) checkBinary(input any, limit int64, kind string) (string, Risk, bool) {
	size, ok := byteSize(input)
	if !ok {
		return "", RiskLow, true
	}
	if size > limit {
		return fmt.Sprintf("%s input exceeds maximum size", kind), RiskMedium, false
	}
	return "", RiskLow, true
}

func (g *Gateway) checkStructure(req Request) bool {
	if req.ID == "" || !req.Kind.Recognized() {
		return false
	}

	switch input := req.Input.(type) {
	case nil:
		return false
	case string:
		return input != ""
	case []byte:
		return len(input) > 0
	default:
		return true
	}
}

// checkAdvanced is the extension point for behavioral and contextual
// checks; it currently passes everything.
func (g *Gateway) checkAdvanced(Request) (string, Risk, bool) {
	return "", RiskLow, true
}

// Level returns the active security level.
func (g *Gateway) Level() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

// SetLevel switches the security level; only low, medium, and high are
// accepted.
func (g *Gateway) SetLevel(level string) error {
	switch level {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("unsupported security level %q", level)
	}

	g.mu.Lock()
	g.level = level
	g.mu.Unlock()

	g.log.Info("Security level changed", "level", level)
	return nil
}

// AddPattern appends one denylist pattern at runtime.
func (g *Gateway) AddPattern(pattern string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile denylist pattern %q: %w", pattern, err)
	}

	g.mu.Lock()
	g.patterns = append(g.patterns, compiled)
	g.mu.Unlock()

	g.log.Info("Denylist pattern added", "pattern", pattern)
	return nil
}

func (g *Gateway) recordActivity(activityType string, details map[string]any) {
	g.mu.Lock()
	g.activities = append(g.activities, Activity{At: time.Now().UTC(), Type: activityType, Details: details})
	if max := g.cfg.ActivityBuffer; max > 0 && len(g.activities) > max {
		g.activities = g.activities[len(g.activities)-max:]
	}
	g.mu.Unlock()

	g.log.Warn("Suspicious activity", "type", activityType)
}

// RecentActivities returns up to limit of the newest suspicious-activity
// records, oldest first.
func (g *Gateway) RecentActivities(limit int) []Activity {
	g.mu.Lock()
	defer g.mu.Unlock()

	if limit <= 0 || limit > len(g.activities) {
		limit = len(g.activities)
	}

	out := make([]Activity, limit)
	copy(out, g.activities[len(g.activities)-limit:])
	return out
}

// Stats reports gateway counters for status queries.
func (g *Gateway) Stats() map[string]any {
	g.mu.Lock()
	activities := len(g.activities)
	level := g.level
	patterns := len(g.patterns)
	g.mu.Unlock()

	return map[string]any{
		"level":                 level,
		"denylist_patterns":     patterns,
		"suspicious_keywords":   len(g.keywords),
		"suspicious_activities": activities,
		"rate_limits_tracked":   g.limiter.tracked(),
	}
}

// deriveClientID maps a request id onto a stable client identity.
func deriveClientID(requestID string) string {
	sum := sha256.Sum256([]byte(requestID))
	return hex.EncodeToString(sum[:])[:8]
}

func textOf(input any) string {
	switch value := input.(type) {
	case string:
		return value
	case []byte:
		return string(value)
	default:
		return fmt.Sprint(value)
	}
}

func byteSize(input any) (int64, bool) {
	switch value := input.(type) {
	case []byte:
		return int64(len(value)), true
	case string:
		return int64(len(value)), true
	default:
		return 0, false
	}
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}
