package errprompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is the error prompt matcher's own rule type. Kind optionally
// restricts the rule to one error kind (for example "timeout"); an empty
// Kind matches every kind.
type Rule struct {
	Pattern string
	Kind    string
	Message string
}

type compiledRule struct {
	pattern *regexp.Regexp
	kind    string
	message string
}

// Matcher checks error messages against patterns and returns guidance prompts.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher creates a new Matcher. Panics on invalid regex patterns.
func NewMatcher(rules []Rule) *Matcher {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			panic(fmt.Sprintf("errprompt: invalid regex pattern %q: %v", r.Pattern, err))
		}
		compiled[i] = compiledRule{pattern: re, kind: r.Kind, message: r.Message}
	}
	return &Matcher{rules: compiled}
}

// Match checks an error of the given kind against all rules (top to bottom).
// Returns all matching prompt messages joined with newline separators.
// Returns empty string if no match.
func (m *Matcher) Match(kind, errMsg string) string {
	var matches []string
	for _, rule := range m.rules {
		if rule.kind != "" && rule.kind != kind {
			continue
		}
		if rule.pattern.MatchString(errMsg) {
			matches = append(matches, rule.message)
		}
	}
	return strings.Join(matches, "\n")
}

// MatchedPatterns returns the regex patterns that matched the given error.
// Returns nil if no match.
func (m *Matcher) MatchedPatterns(kind, errMsg string) []string {
	var patterns []string
	for _, rule := range m.rules {
		if rule.kind != "" && rule.kind != kind {
			continue
		}
		if rule.pattern.MatchString(errMsg) {
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return patterns
}
