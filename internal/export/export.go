// Package export writes dashboard views as CSV transaction lists or JSON
// analysis reports.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"budgetdash/internal/aggregate"
	"budgetdash/internal/core"
	"budgetdash/internal/services"
	"budgetdash/internal/stats"
)

// Format names accepted by ParseFormat.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatDoc  = "doc"
)

var csvHeader = []string{"Category", "Date", "Description", "Amount"}

// ParseFormat validates an export format name.
func ParseFormat(s string) (string, error) {
	switch s {
	case FormatCSV, FormatJSON, FormatDoc:
		return s, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q: must be csv, json or doc", s)
	}
}

// WriteCSV writes one row per classified transaction. Categories follow
// order; categories missing from order come after it, sorted by name.
func WriteCSV(w io.Writer, v aggregate.View, order []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, name := range categoryOrder(v, order) {
		for _, d := range v.CategoryDetails[name] {
			row := []string{name, d.Date.String(), d.Name, formatAmount(d.Amount)}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// CategoryReport is one category line of a Report.
type CategoryReport struct {
	Name     string                 `json:"name"`
	Total    float64                `json:"total"`
	Share    float64                `json:"share"`
	Count    int                    `json:"count"`
	Analysis stats.CategoryAnalysis `json:"analysis"`
}

// Report is the JSON analysis object for one dashboard view.
type Report struct {
	GeneratedAt      time.Time           `json:"generatedAt"`
	Label            string              `json:"label"`
	Window           services.Window     `json:"window"`
	TotalExpenses    float64             `json:"totalExpenses"`
	TotalIncome      float64             `json:"totalIncome"`
	Spending         float64             `json:"spending"`
	TransactionCount int                 `json:"transactionCount"`
	SmartCategorized int                 `json:"smartCategorized"`
	Summary          stats.Summary       `json:"summary"`
	Categories       []CategoryReport    `json:"categories"`
	Budget           *stats.BudgetReport `json:"budget,omitempty"`
}

// BuildReport derives the analysis report of a dashboard. Categories with
// no transactions are left out.
func BuildReport(d *services.Dashboard, order []string, now time.Time) Report {
	r := Report{
		GeneratedAt:      now.UTC(),
		Label:            d.Label,
		Window:           d.Window,
		TotalExpenses:    d.View.TotalExpenses,
		TotalIncome:      d.View.TotalIncome,
		Spending:         d.Spending(),
		TransactionCount: d.View.TransactionCount,
		SmartCategorized: d.View.SmartCategorized,
		Summary:          d.Summary,
		Budget:           d.Budget,
	}
	for _, name := range categoryOrder(d.View, order) {
		details := d.View.CategoryDetails[name]
		if len(details) == 0 {
			continue
		}
		total := d.View.CategoryTotals[name]
		share := 0.0
		if d.View.TotalExpenses > 0 {
			share = core.Round2(total / d.View.TotalExpenses * 100)
		}
		r.Categories = append(r.Categories, CategoryReport{
			Name:     name,
			Total:    total,
			Share:    share,
			Count:    len(details),
			Analysis: stats.AnalyzeCategory(name, details),
		})
	}
	return r
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func categoryOrder(v aggregate.View, order []string) []string {
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(v.CategoryDetails))
	for _, name := range order {
		if _, ok := v.CategoryDetails[name]; ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	var rest []string
	for name := range v.CategoryDetails {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
