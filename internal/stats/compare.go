package stats

import (
	"math"
	"sort"

	"budgetdash/internal/core"
)

// MonthTotals is one point of a cross-month series.
type MonthTotals struct {
	Month  core.MonthKey      `json:"month"`
	Label  string             `json:"label"`
	Totals map[string]float64 `json:"totals"`
	Total  float64            `json:"total"`
}

type CategoryTrend struct {
	Category   string     `json:"category"`
	Values     []float64  `json:"values"`
	Total      float64    `json:"total"`
	Average    float64    `json:"average"`
	Trend      Trend      `json:"trend"`
	Volatility Volatility `json:"volatility"`
}

// CategoryTrends runs the half trend and volatility over each category's
// totals across the series. Months where a category is absent count as 0.
// Results are ordered by total, largest first.
func CategoryTrends(series []MonthTotals) []CategoryTrend {
	seen := make(map[string]bool)
	var names []string
	for _, m := range series {
		for name := range m.Totals {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)

	out := make([]CategoryTrend, 0, len(names))
	for _, name := range names {
		values := make([]float64, len(series))
		var total float64
		for i, m := range series {
			values[i] = m.Totals[name]
			total += values[i]
		}
		out = append(out, CategoryTrend{
			Category:   name,
			Values:     values,
			Total:      core.Round2(total),
			Average:    core.Round2(Mean(values)),
			Trend:      HalfTrend(values),
			Volatility: ComputeVolatility(values),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}

// OverallTrend is the half trend of the series' month totals.
func OverallTrend(series []MonthTotals) Trend {
	values := make([]float64, len(series))
	for i, m := range series {
		values[i] = m.Total
	}
	return HalfTrend(values)
}

type Comparison struct {
	Category      string  `json:"category"`
	Current       float64 `json:"current"`
	Previous      float64 `json:"previous"`
	Delta         float64 `json:"delta"`
	PercentChange float64 `json:"percentChange"`
}

// CompareMonths computes per-category deltas between two months, sorted by
// absolute delta descending.
func CompareMonths(current, previous map[string]float64) []Comparison {
	names := make(map[string]bool)
	for k := range current {
		names[k] = true
	}
	for k := range previous {
		names[k] = true
	}

	out := make([]Comparison, 0, len(names))
	for name := range names {
		cur, prev := current[name], previous[name]
		out = append(out, Comparison{
			Category:      name,
			Current:       cur,
			Previous:      prev,
			Delta:         core.Round2(cur - prev),
			PercentChange: PercentChange(cur, prev),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := math.Abs(out[i].Delta), math.Abs(out[j].Delta)
		if di != dj {
			return di > dj
		}
		return out[i].Category < out[j].Category
	})
	return out
}
