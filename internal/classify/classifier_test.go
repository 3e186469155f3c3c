package classify

import (
	"testing"

	"budgetdash/internal/core"
	"budgetdash/internal/rules"
)

type overrideMap map[core.MonthKey]map[string]string

func (m overrideMap) Override(month core.MonthKey, txID string) (string, bool) {
	cat, ok := m[month][txID]
	return cat, ok
}

func (m overrideMap) AnyOverride(txID string) (string, bool) {
	for _, byTx := range m {
		if cat, ok := byTx[txID]; ok {
			return cat, true
		}
	}
	return "", false
}

func newDefault(t *testing.T, rs []core.Rule, ov OverrideLookup) *Classifier {
	t.Helper()
	return New(Config{
		Categories: rules.DefaultCategories(),
		Rules:      rules.NewRuleSet(rs),
		Overrides:  ov,
	})
}

func TestClassifyStages(t *testing.T) {
	c := newDefault(t, []core.Rule{
		{ID: "r1", Pattern: "ACME CORP", MatchType: core.MatchContains, Action: rules.CategoryShopping, Active: true},
		{ID: "r2", Pattern: "INTERNAL TRANSFER", MatchType: core.MatchStartsWith, Action: "", Active: true},
	}, nil)

	tests := []struct {
		name      string
		subject   Subject
		wantCat   string
		wantStage Stage
		wantDel   bool
	}{
		{"rule categorize", Subject{Description: "ACME CORP 123", Amount: 40}, rules.CategoryShopping, StageRule, false},
		{"rule delete", Subject{Description: "Internal Transfer to savings", Amount: 500}, "", StageRule, true},
		{"keyword", Subject{Description: "KROGER #442", Amount: 80}, rules.CategoryGroceries, StageKeyword, false},
		{"keyword priority", Subject{Description: "COSTCO MEMBERSHIP FEE", Amount: 60}, rules.CategoryOnceAYear, StageKeyword, false},
		{"source category", Subject{Description: "ZZZ VENDOR", Amount: 30, SourceCategory: "health"}, rules.CategoryHealth, StageSourceCategory, false},
		{"smart fallback", Subject{Description: "JOES BISTRO", Amount: 30}, rules.CategoryFoodDrink, StageSmart, false},
		{"food heuristic", Subject{Description: "TST* LA ROSA", Amount: 30}, rules.CategoryFoodDrink, StageSmart, false},
		{"default", Subject{Description: "XYZ HOLDINGS", Amount: 30}, core.OthersCategory, StageDefault, false},
		{"empty description", Subject{Description: "   ", Amount: 30}, core.OthersCategory, StageDefault, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.subject)
			if got.Category != tt.wantCat || got.Stage != tt.wantStage || got.Delete != tt.wantDel {
				t.Errorf("Classify(%q) = {%q %s %v}, want {%q %s %v}",
					tt.subject.Description, got.Category, got.Stage, got.Delete, tt.wantCat, tt.wantStage, tt.wantDel)
			}
		})
	}
}

func TestGasRedirect(t *testing.T) {
	c := newDefault(t, nil, nil)

	tests := []struct {
		name    string
		subject Subject
		want    string
	}{
		{"small purchase", Subject{Description: "SHELL OIL 57444", Amount: 5}, rules.CategoryFoodDrink},
		{"small return", Subject{Description: "SHELL OIL 57444", Amount: 5, IsReturn: true}, rules.CategoryGas},
		{"at minimum", Subject{Description: "SHELL OIL 57444", Amount: 20}, rules.CategoryGas},
		{"negative sign ignored", Subject{Description: "CHEVRON 0091", Amount: -5}, rules.CategoryFoodDrink},
		{"source category", Subject{Description: "ZZZ", Amount: 3, SourceCategory: "Gas"}, rules.CategoryFoodDrink},
		{"smart gas", Subject{Description: "QUICK STOP FUEL 0042", Amount: 45}, rules.CategoryGas},
		{"smart gas small", Subject{Description: "QUICK STOP FUEL 0042", Amount: 4.5}, rules.CategoryFoodDrink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.subject).Category; got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigurableGasMinimum(t *testing.T) {
	c := New(Config{Categories: rules.DefaultCategories(), GasMinimum: 3})
	if got := c.Classify(Subject{Description: "SHELL 1", Amount: 5}).Category; got != rules.CategoryGas {
		t.Fatalf("got %q, want Gas", got)
	}
}

func TestOverrideWinsOverEverything(t *testing.T) {
	ov := overrideMap{
		"2024-01": {"tx-1": rules.CategoryTravel},
		"2023-12": {"tx-2": rules.CategoryHome},
	}
	c := newDefault(t, []core.Rule{
		{ID: "del", Pattern: "KROGER", MatchType: core.MatchContains, Action: "", Active: true},
	}, ov)

	got := c.Classify(Subject{Description: "KROGER #1", TransactionID: "tx-1", Month: "2024-01", Amount: 10})
	if got.Category != rules.CategoryTravel || got.Stage != StageOverride || got.Delete {
		t.Fatalf("month override: got %+v", got)
	}

	got = c.Classify(Subject{Description: "KROGER #1", TransactionID: "tx-2", Month: "2024-01", Amount: 10})
	if got.Category != rules.CategoryHome || got.Stage != StageOverride {
		t.Fatalf("cross-month override: got %+v", got)
	}

	got = c.Classify(Subject{Description: "", TransactionID: "tx-1", Month: "2024-01"})
	if got.Category != rules.CategoryTravel {
		t.Fatalf("override on empty description: got %+v", got)
	}
}

func TestSmartStages(t *testing.T) {
	c := newDefault(t, nil, nil)
	tests := []struct {
		desc  string
		smart bool
	}{
		{"KROGER", false},
		{"JOES BISTRO", true},
		{"XYZ HOLDINGS", true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := c.Classify(Subject{Description: tt.desc, Amount: 1}); got.Smart() != tt.smart {
				t.Errorf("Classify(%q) = %+v, smart %v", tt.desc, got, tt.smart)
			}
		})
	}
}

func TestWholeWordKeywords(t *testing.T) {
	c := newDefault(t, nil, nil)
	tests := []struct {
		desc string
		want string
	}{
		{"RENT PAYMENT", rules.CategoryHome},
		{"PARENT TEACHER ASSOC", core.OthersCategory},
		{"CURRENT ACCOUNT FEE", core.OthersCategory},
		{"ARCO #123", rules.CategoryGas},
		{"MARCO'S PIZZA", rules.CategoryFoodDrink},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := c.Classify(Subject{Description: tt.desc, Amount: 45}); got.Category != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.desc, got.Category, tt.want)
			}
		})
	}
}

func TestOthersNeverMatchesKeywords(t *testing.T) {
	cats := []core.Category{
		{Name: "Books", Keywords: []string{"BOOK"}},
		{Name: core.OthersCategory, Keywords: []string{"ANYTHING"}},
	}
	c := New(Config{Categories: cats, Fallback: []rules.FallbackRule{}})
	got := c.Classify(Subject{Description: "ANYTHING GOES", Amount: 1})
	if got.Stage != StageDefault {
		t.Fatalf("Others keywords must be ignored, got %+v", got)
	}
}
