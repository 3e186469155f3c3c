package stats

import (
	"math"
	"sort"
	"strings"

	"budgetdash/internal/aggregate"
	"budgetdash/internal/core"
)

type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

type MerchantCount struct {
	Merchant string `json:"merchant"`
	Count    int    `json:"count"`
}

// Summary holds the single-window headline numbers.
type Summary struct {
	Highest            CategoryAmount   `json:"highest"`
	Lowest             CategoryAmount   `json:"lowest"`
	AvgPerDay          float64          `json:"avgPerDay"`
	DaysSpanned        int              `json:"daysSpanned"`
	LargestTransaction aggregate.Detail `json:"largestTransaction"`
	MostFrequent       MerchantCount    `json:"mostFrequent"`
}

// Summarize computes highest/lowest non-zero category, average per day over
// the inclusive date span, the largest transaction by magnitude and the
// most frequent merchant. Income categories are left out of highest and
// lowest.
func Summarize(v aggregate.View, incomeCategories map[string]bool) Summary {
	s := Summary{
		Highest:      CategoryAmount{Name: NotAvailable},
		Lowest:       CategoryAmount{Name: NotAvailable},
		MostFrequent: MerchantCount{Merchant: NotAvailable},
		DaysSpanned:  1,
	}

	names := make([]string, 0, len(v.CategoryTotals))
	for name, total := range v.CategoryTotals {
		if total > 0 && !incomeCategories[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		total := v.CategoryTotals[name]
		if s.Highest.Name == NotAvailable || total > s.Highest.Amount {
			s.Highest = CategoryAmount{Name: name, Amount: total}
		}
		if s.Lowest.Name == NotAvailable || total < s.Lowest.Amount {
			s.Lowest = CategoryAmount{Name: name, Amount: total}
		}
	}

	var first, last core.Date
	counts := make(map[string]int)
	for _, cat := range sortedKeys(v.CategoryDetails) {
		for _, d := range v.CategoryDetails[cat] {
			if first.IsZero() || d.Date.Before(first.Time) {
				first = d.Date
			}
			if last.IsZero() || d.Date.After(last.Time) {
				last = d.Date
			}
			if math.Abs(d.Amount) > math.Abs(s.LargestTransaction.Amount) {
				s.LargestTransaction = d
			}
			if m := merchant(d.Name); m != "" {
				counts[m]++
			}
		}
	}
	if !first.IsZero() {
		s.DaysSpanned = first.DaysUntil(last) + 1
	}
	if s.DaysSpanned < 1 {
		s.DaysSpanned = 1
	}
	s.AvgPerDay = core.Round2(v.TotalExpenses / float64(s.DaysSpanned))

	for _, m := range sortedKeys(counts) {
		if counts[m] > s.MostFrequent.Count {
			s.MostFrequent = MerchantCount{Merchant: m, Count: counts[m]}
		}
	}
	return s
}

// merchant is the first whitespace-delimited token of a description.
func merchant(desc string) string {
	fields := strings.Fields(desc)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
