package timeout

import (
	"fmt"
	"regexp"
	"time"
)

// Rule is the timeout manager's own rule type.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

// Config is the timeout manager's own config type.
type Config struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	Rules          []Rule
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Manager resolves query timeouts from per-call overrides and SQL pattern
// matching.
type Manager struct {
	rules          []compiledRule
	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

// NewManager creates a new Manager. Panics on invalid regex patterns.
func NewManager(config Config) *Manager {
	compiled := make([]compiledRule, len(config.Rules))
	for i, r := range config.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			panic(fmt.Sprintf("timeout: invalid regex pattern %q: %v", r.Pattern, err))
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Manager{rules: compiled, defaultTimeout: config.DefaultTimeout, maxTimeout: config.MaxTimeout}
}

// Resolve returns the timeout for the given SQL together with the pattern
// of the rule that decided it (empty for overrides and the default).
// A positive override wins over rules but is clamped to MaxTimeout.
func (m *Manager) Resolve(sql string, override time.Duration) (time.Duration, string) {
	if override > 0 {
		if m.maxTimeout > 0 && override > m.maxTimeout {
			return m.maxTimeout, ""
		}
		return override, ""
	}
	for _, rule := range m.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.pattern.String()
		}
	}
	return m.defaultTimeout, ""
}

// GetTimeout returns the timeout for the given SQL without an override.
// First matching rule wins. Falls back to default.
func (m *Manager) GetTimeout(sql string) time.Duration {
	d, _ := m.Resolve(sql, 0)
	return d
}
