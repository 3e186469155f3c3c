package google

import (
	"fmt"
	"strconv"
	"strings"

	"budgetdash/internal/core"
	ports "budgetdash/internal/sheets"
)

var monthHeaders = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

const (
	categoryHeader = "Category"
	totalLabel     = "Total"
)

// grid is a yearly dashboard: one row per category, one column per month
// and a trailing Total row holding each month's spending.
type grid struct {
	order    []string
	values   map[string]*[12]float64
	spending [12]float64
}

func newGrid() *grid {
	return &grid{values: make(map[string]*[12]float64)}
}

// parseGrid reads a values matrix as returned by the Sheets API. An empty
// matrix is an empty grid.
func parseGrid(values [][]any) (*grid, error) {
	g := newGrid()
	if len(values) == 0 {
		return g, nil
	}
	headers := toStrings(values[0])
	colCategory := indexOf(headers, categoryHeader)
	if colCategory == -1 {
		return nil, fmt.Errorf("unexpected dashboard header: missing %s; got headers=%v", categoryHeader, headers)
	}
	var cols [12]int
	for i, h := range monthHeaders {
		if cols[i] = indexOf(headers, h); cols[i] == -1 {
			return nil, fmt.Errorf("unexpected dashboard header: missing %s; got headers=%v", h, headers)
		}
	}

	for _, raw := range values[1:] {
		row := toStrings(raw)
		name := safeGet(row, colCategory)
		if name == "" {
			continue
		}
		var amounts [12]float64
		for m, col := range cols {
			amounts[m] = parseAmount(safeGet(row, col))
		}
		if strings.EqualFold(name, totalLabel) {
			g.spending = amounts
			continue
		}
		g.row(name)
		*g.values[name] = amounts
	}
	return g, nil
}

func (g *grid) row(name string) *[12]float64 {
	if v, ok := g.values[name]; ok {
		return v
	}
	v := &[12]float64{}
	g.values[name] = v
	g.order = append(g.order, name)
	return v
}

// apply replaces one month column with the summary.
func (g *grid) apply(s ports.MonthSummary) {
	m := monthIndex(s.Month)
	for _, v := range g.values {
		v[m] = 0
	}
	for _, c := range s.Categories {
		g.row(c.Name)[m] = c.Amount
	}
	g.spending[m] = s.Spending
}

func (g *grid) summary(month core.MonthKey) ports.MonthSummary {
	m := monthIndex(month)
	s := ports.MonthSummary{Month: month, Label: month.Label(), Spending: g.spending[m]}
	for _, name := range g.order {
		if amt := g.values[name][m]; amt != 0 {
			s.Categories = append(s.Categories, ports.CategoryTotal{Name: name, Amount: amt})
		}
	}
	return s
}

// matrix renders the grid for a Values.Update call.
func (g *grid) matrix() [][]any {
	header := make([]any, 0, 13)
	header = append(header, categoryHeader)
	for _, h := range monthHeaders {
		header = append(header, h)
	}
	out := [][]any{header}
	for _, name := range g.order {
		out = append(out, g.line(name, g.values[name]))
	}
	return append(out, g.line(totalLabel, &g.spending))
}

func (g *grid) line(name string, v *[12]float64) []any {
	row := make([]any, 0, 13)
	row = append(row, name)
	for _, amt := range v {
		row = append(row, amt)
	}
	return row
}

func monthIndex(k core.MonthKey) int {
	return int(k.Start().Month()) - 1
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// parseAmount reads a cell rendered by the Sheets API; blanks and text are
// 0.
func parseAmount(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if v, perr := core.ParseAmount(s); perr == nil {
			return v
		}
		return 0
	}
	return core.Round2(f)
}
