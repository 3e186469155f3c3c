package rules

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"budgetdash/internal/core"
)

// LeadingToken returns the uppercased first segment of a description,
// splitting on whitespace, '#' and '*'.
func LeadingToken(description string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(description), func(r rune) bool {
		return r == '#' || r == '*' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// LearnFromMove derives an automatic contains-rule from a manual category
// move. It returns false when the description yields no token or an
// identical pattern+action rule already exists.
func LearnFromMove(existing []core.Rule, description, target string) (core.Rule, bool) {
	pattern := LeadingToken(description)
	if pattern == "" || strings.TrimSpace(target) == "" {
		return core.Rule{}, false
	}
	for _, r := range existing {
		if strings.EqualFold(r.Pattern, pattern) && r.Action == target {
			return core.Rule{}, false
		}
	}
	return core.Rule{
		ID:          uuid.NewString(),
		Pattern:     pattern,
		MatchType:   core.MatchContains,
		Action:      target,
		Active:      true,
		IsAutomatic: true,
		CreatedAt:   time.Now().UTC(),
	}, true
}

// AddLearned appends a learned rule, dropping earlier automatic rules with
// the same pattern so the latest move decides future classification.
// Manual rules are kept.
func AddLearned(existing []core.Rule, learned core.Rule) []core.Rule {
	out := make([]core.Rule, 0, len(existing)+1)
	for _, r := range existing {
		if r.IsAutomatic && strings.EqualFold(r.Pattern, learned.Pattern) && r.MatchType == learned.MatchType {
			continue
		}
		out = append(out, r)
	}
	return append(out, learned)
}
