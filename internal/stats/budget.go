package stats

import (
	"sort"

	"budgetdash/internal/core"
)

type BudgetLine struct {
	Category    string  `json:"category"`
	Target      float64 `json:"target"`
	Spent       float64 `json:"spent"`
	Remaining   float64 `json:"remaining"`
	PercentUsed float64 `json:"percentUsed"`
	Over        bool    `json:"over"`
}

type BudgetReport struct {
	Month core.MonthKey `json:"month"`
	Lines []BudgetLine  `json:"lines"`
	Total *BudgetLine   `json:"total,omitempty"`
}

// BudgetStatus compares targets with actual totals. A budgeted category
// with no spending, including one that no longer exists, counts as 0.
func BudgetStatus(month core.MonthKey, totals map[string]float64, totalExpenses float64, b core.MonthBudget) BudgetReport {
	r := BudgetReport{Month: month}
	names := make([]string, 0, len(b.Categories))
	for name := range b.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.Lines = append(r.Lines, budgetLine(name, b.Categories[name], totals[name]))
	}
	if b.Total != nil {
		line := budgetLine("Total", *b.Total, totalExpenses)
		r.Total = &line
	}
	return r
}

func budgetLine(name string, target, spent float64) BudgetLine {
	l := BudgetLine{
		Category:  name,
		Target:    core.Round2(target),
		Spent:     core.Round2(spent),
		Remaining: core.Round2(target - spent),
	}
	switch {
	case target > 0:
		l.PercentUsed = core.Round2(spent / target * 100)
	case spent > 0:
		l.PercentUsed = 100
	}
	l.Over = spent > target
	return l
}
