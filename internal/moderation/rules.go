// Package moderation decides whether submitted confessions may be published.
// The gate runs an ordered list of strategies: a deterministic rule scan
// first, then an optional external classifier. The rule scan never fails,
// so the gate always yields a decision.
package moderation

import (
	"regexp"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// Reason codes produced by the deterministic rule engine.
const (
	ReasonContainsPII   = "contains_pii"
	ReasonBannedTerm    = "banned_term"
	ReasonHarmfulIntent = "harmful_intent"
)

// Built-in banned terms. Matching is case-insensitive and substring-based;
// the config may extend this list.
var defaultBannedTerms = []string{
	"kill yourself",
	"kill myself",
	"hate speech",
	"terrorist attack",
	"bomb threat",
}

// PII patterns: phone numbers, email addresses, long digit runs that look
// like government identifiers.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b\d{10,12}\b`),
}

// Patterns that indicate harmful intent regardless of classifier scores.
var harmfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:kill|murder|hurt)\b.{0,40}\b(?:yourself|myself|themselves|himself|herself)\b`),
	regexp.MustCompile(`(?i)\b(?:rape|assault|abuse)\b.{0,40}\b(?:threat|plan|going to)\b`),
}

// RuleEngine is the deterministic first stage of the moderation gate:
// cheap, never errors, and any match blocks immediately.
type RuleEngine struct {
	matcher *ahocorasick.Matcher
	terms   []string
}

// NewRuleEngine builds the banned-term automaton from the built-in list
// plus any extra terms.
func NewRuleEngine(extraTerms []string) *RuleEngine {
	terms := make([]string, 0, len(defaultBannedTerms)+len(extraTerms))
	seen := make(map[string]struct{}, len(defaultBannedTerms)+len(extraTerms))
	for _, t := range append(append([]string{}, defaultBannedTerms...), extraTerms...) {
		normalized := strings.ToLower(strings.TrimSpace(t))
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		terms = append(terms, normalized)
	}

	var matcher *ahocorasick.Matcher
	if len(terms) > 0 {
		matcher = ahocorasick.NewStringMatcher(terms)
	}
	return &RuleEngine{matcher: matcher, terms: terms}
}

// Scan returns the reason codes triggered by the content, in order of
// severity. An empty result means the content passed the deterministic scan.
func (e *RuleEngine) Scan(content string) []string {
	var reasons []string
	lowered := strings.ToLower(content)

	for _, pat := range piiPatterns {
		if pat.MatchString(content) {
			reasons = append(reasons, ReasonContainsPII)
			break
		}
	}

	for _, pat := range harmfulPatterns {
		if pat.MatchString(lowered) {
			reasons = append(reasons, ReasonHarmfulIntent)
			break
		}
	}

	if e.matcher != nil {
		if hits := e.matcher.Match([]byte(lowered)); len(hits) > 0 {
			reasons = append(reasons, ReasonBannedTerm)
		}
	}

	return reasons
}
