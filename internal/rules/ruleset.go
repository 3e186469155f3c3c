package rules

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"budgetdash/internal/core"
)

// CompiledRule caches the matcher built when the rule was saved.
type CompiledRule struct {
	Rule    core.Rule
	pattern string
	re      *regexp.Regexp
	broken  bool
}

// Compile validates a rule and builds its matcher. Regex rules are compiled
// case-insensitively against the uppercased description.
func Compile(r core.Rule) (*CompiledRule, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRule, err)
	}
	cr := &CompiledRule{Rule: r, pattern: strings.ToUpper(strings.TrimSpace(r.Pattern))}
	if r.MatchType == core.MatchRegex {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: bad regex %q: %v", core.ErrInvalidRule, r.Pattern, err)
		}
		cr.re = re
	}
	return cr, nil
}

// Matches reports whether the uppercased description satisfies the rule.
func (c *CompiledRule) Matches(upperDesc string) bool {
	if c.broken {
		return false
	}
	switch c.Rule.MatchType {
	case core.MatchContains:
		return strings.Contains(upperDesc, c.pattern)
	case core.MatchStartsWith:
		return strings.HasPrefix(upperDesc, c.pattern)
	case core.MatchEndsWith:
		return strings.HasSuffix(upperDesc, c.pattern)
	case core.MatchExact:
		return upperDesc == c.pattern
	case core.MatchRegex:
		return c.re != nil && c.re.MatchString(upperDesc)
	}
	return false
}

// RuleSet evaluates unified rules: manual before automatic, insertion order
// otherwise, first active match wins.
type RuleSet struct {
	rules []*CompiledRule
}

// NewRuleSet compiles the persisted rules. A rule that fails to compile is
// kept but never matches, so one broken rule cannot stop classification.
func NewRuleSet(rs []core.Rule) *RuleSet {
	set := &RuleSet{rules: make([]*CompiledRule, 0, len(rs))}
	for _, r := range rs {
		cr, err := Compile(r)
		if err != nil {
			slog.Warn("Rule treated as non-matching", "rule_id", r.ID, "pattern", r.Pattern, "error", err)
			cr = &CompiledRule{Rule: r, broken: true}
		}
		set.rules = append(set.rules, cr)
	}
	sort.SliceStable(set.rules, func(i, j int) bool {
		return !set.rules[i].Rule.IsAutomatic && set.rules[j].Rule.IsAutomatic
	})
	return set
}

// Match returns the first active rule matching the description.
func (s *RuleSet) Match(description string) (core.Rule, bool) {
	if s == nil {
		return core.Rule{}, false
	}
	upper := strings.ToUpper(strings.TrimSpace(description))
	if upper == "" {
		return core.Rule{}, false
	}
	for _, cr := range s.rules {
		if !cr.Rule.Active {
			continue
		}
		if cr.Matches(upper) {
			return cr.Rule, true
		}
	}
	return core.Rule{}, false
}

// Len returns the number of rules, active or not.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}
