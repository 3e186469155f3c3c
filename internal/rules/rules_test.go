package rules

import (
	"errors"
	"strings"
	"testing"

	"budgetdash/internal/core"
)

func TestDefaultCategoriesOrdering(t *testing.T) {
	cats := DefaultCategories()
	if cats[0].Name != CategoryOnceAYear || cats[1].Name != CategoryGroceries || cats[2].Name != CategoryGas {
		t.Fatalf("unexpected priority head: %s, %s, %s", cats[0].Name, cats[1].Name, cats[2].Name)
	}
	if cats[len(cats)-1].Name != core.OthersCategory {
		t.Fatalf("Others must be last, got %s", cats[len(cats)-1].Name)
	}
	seen := map[string]bool{}
	for _, c := range cats {
		if seen[c.Name] {
			t.Fatalf("duplicate category %s", c.Name)
		}
		seen[c.Name] = true
	}
}

func TestCompiledRuleMatchTypes(t *testing.T) {
	tests := []struct {
		name  string
		rule  core.Rule
		desc  string
		match bool
	}{
		{"contains", core.Rule{Pattern: "coffee", MatchType: core.MatchContains}, "BLUE BOTTLE COFFEE", true},
		{"contains miss", core.Rule{Pattern: "tea", MatchType: core.MatchContains}, "BLUE BOTTLE COFFEE", false},
		{"startsWith", core.Rule{Pattern: "blue", MatchType: core.MatchStartsWith}, "BLUE BOTTLE", true},
		{"startsWith miss", core.Rule{Pattern: "bottle", MatchType: core.MatchStartsWith}, "BLUE BOTTLE", false},
		{"endsWith", core.Rule{Pattern: "bottle", MatchType: core.MatchEndsWith}, "BLUE BOTTLE", true},
		{"exact", core.Rule{Pattern: "Blue Bottle", MatchType: core.MatchExact}, "BLUE BOTTLE", true},
		{"exact miss", core.Rule{Pattern: "Blue", MatchType: core.MatchExact}, "BLUE BOTTLE", false},
		{"regex", core.Rule{Pattern: `^blue\s+b`, MatchType: core.MatchRegex}, "BLUE BOTTLE", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr, err := Compile(tt.rule)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if got := cr.Matches(tt.desc); got != tt.match {
				t.Errorf("Matches(%q) = %v, want %v", tt.desc, got, tt.match)
			}
		})
	}
}

func TestCompileRejectsBadRegex(t *testing.T) {
	_, err := Compile(core.Rule{Pattern: "([", MatchType: core.MatchRegex})
	if !errors.Is(err, core.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestRuleSetManualBeforeAutomatic(t *testing.T) {
	set := NewRuleSet([]core.Rule{
		{ID: "auto", Pattern: "SHELL", MatchType: core.MatchContains, Action: "Gas", Active: true, IsAutomatic: true},
		{ID: "inactive", Pattern: "SHELL", MatchType: core.MatchContains, Action: "Travel", Active: false},
		{ID: "manual", Pattern: "SHELL", MatchType: core.MatchContains, Action: "Food & Drink", Active: true},
	})
	r, ok := set.Match("shell oil 123")
	if !ok || r.ID != "manual" {
		t.Fatalf("expected manual rule to win, got %+v ok=%v", r, ok)
	}
}

func TestRuleSetBrokenRuleDoesNotMatch(t *testing.T) {
	set := NewRuleSet([]core.Rule{
		{ID: "broken", Pattern: "([", MatchType: core.MatchRegex, Action: "Gas", Active: true},
		{ID: "ok", Pattern: "SHELL", MatchType: core.MatchContains, Action: "Gas", Active: true},
	})
	r, ok := set.Match("SHELL")
	if !ok || r.ID != "ok" {
		t.Fatalf("expected fallthrough to working rule, got %+v", r)
	}
	if set.Len() != 2 {
		t.Fatalf("broken rule should be kept, len=%d", set.Len())
	}
}

func TestLeadingToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"STARBUCKS #123", "STARBUCKS"},
		{"starbucks#456", "STARBUCKS"},
		{"TST* JOES DINER", "TST"},
		{"*SQ COFFEE", "SQ"},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := LeadingToken(tt.in); got != tt.want {
				t.Errorf("LeadingToken(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLearnFromMove(t *testing.T) {
	r, ok := LearnFromMove(nil, "STARBUCKS #123", "Coffee and Tea")
	if !ok {
		t.Fatal("expected a learned rule")
	}
	if r.Pattern != "STARBUCKS" || r.MatchType != core.MatchContains || !r.IsAutomatic || !r.Active || r.Action != "Coffee and Tea" {
		t.Fatalf("unexpected rule %+v", r)
	}

	if _, ok := LearnFromMove([]core.Rule{r}, "starbucks #999", "Coffee and Tea"); ok {
		t.Fatal("same pattern and action should be a no-op")
	}
	if _, ok := LearnFromMove([]core.Rule{r}, "STARBUCKS #999", "Food & Drink"); !ok {
		t.Fatal("different action should create a new rule")
	}
}

func TestAddLearned(t *testing.T) {
	existing := []core.Rule{
		{ID: "manual", Pattern: "STARBUCKS", MatchType: core.MatchContains, Action: "Food & Drink", Active: true},
		{ID: "old", Pattern: "starbucks", MatchType: core.MatchContains, Action: "Food & Drink", Active: true, IsAutomatic: true},
		{ID: "other", Pattern: "KROGER", MatchType: core.MatchContains, Action: CategoryGroceries, Active: true, IsAutomatic: true},
	}
	learned, ok := LearnFromMove(existing, "STARBUCKS #2", "Coffee and Tea")
	if !ok {
		t.Fatal("a new target should be learned")
	}
	got := AddLearned(existing, learned)

	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if want := []string{"manual", "other", learned.ID}; strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("rules = %v, want %v", ids, want)
	}
	if len(existing) != 3 || existing[1].ID != "old" {
		t.Error("input slice modified")
	}
}

func TestHeuristics(t *testing.T) {
	if !LooksLikeFood("TST* THE LOCAL SPOT") {
		t.Error("toast POS prefix should look like food")
	}
	if !LooksLikeFood("SQ *CORNER STAND") {
		t.Error("square POS prefix should look like food")
	}
	if !LooksLikeGas("QUICK STOP FUEL 0042") {
		t.Error("fuel with store number should look like gas")
	}
	if LooksLikeGas("QUICK STOP FUEL") {
		t.Error("gas heuristic requires a store number")
	}
}
