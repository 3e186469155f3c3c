// Package sheets defines the outbound ports for publishing month summaries
// to a spreadsheet.
package sheets

import (
	"context"
	"sort"

	"budgetdash/internal/core"
)

type (
	CategoryTotal struct {
		Name   string  `json:"name"`
		Amount float64 `json:"amount"`
	}

	// MonthSummary is one month column of the exported dashboard.
	MonthSummary struct {
		Month      core.MonthKey   `json:"month"`
		Label      string          `json:"label"`
		Categories []CategoryTotal `json:"categories"`
		Spending   float64         `json:"spending"`
	}
)

// Ports for outbound adapters.
type (
	SummaryWriter interface {
		// WriteMonthSummaries replaces the given months; other months are
		// left as they are.
		WriteMonthSummaries(ctx context.Context, summaries []MonthSummary) error
	}

	SummaryReader interface {
		ReadMonthSummary(ctx context.Context, month core.MonthKey) (MonthSummary, error)
	}
)

// NewMonthSummary builds a summary from category totals, listing
// categories by name.
func NewMonthSummary(month core.MonthKey, totals map[string]float64, spending float64) MonthSummary {
	s := MonthSummary{Month: month, Label: month.Label(), Spending: core.Round2(spending)}
	for name, amt := range totals {
		s.Categories = append(s.Categories, CategoryTotal{Name: name, Amount: core.Round2(amt)})
	}
	sort.Slice(s.Categories, func(i, j int) bool { return s.Categories[i].Name < s.Categories[j].Name })
	return s
}

// Amount returns a category's total, 0 when absent.
func (s MonthSummary) Amount(category string) float64 {
	for _, c := range s.Categories {
		if c.Name == category {
			return c.Amount
		}
	}
	return 0
}
