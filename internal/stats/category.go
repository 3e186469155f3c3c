package stats

import (
	"sort"

	"budgetdash/internal/aggregate"
	"budgetdash/internal/core"
)

// CategoryAnalysis is the deep-dive for one category.
type CategoryAnalysis struct {
	Name         string                    `json:"name"`
	Count        int                       `json:"count"`
	Total        float64                   `json:"total"`
	Average      float64                   `json:"average"`
	Min          float64                   `json:"min"`
	Max          float64                   `json:"max"`
	P25          float64                   `json:"p25"`
	Median       float64                   `json:"median"`
	P75          float64                   `json:"p75"`
	P90          float64                   `json:"p90"`
	Fences       Fences                    `json:"fences"`
	Outliers     []aggregate.Detail        `json:"outliers"`
	Volatility   Volatility                `json:"volatility"`
	ByMonth      map[core.MonthKey]float64 `json:"byMonth"`
	ByWeekday    []WeekdayTotal            `json:"byWeekday"`
	ByWeek       []WeekTotal               `json:"byWeek"`
	Frequency    Frequency                 `json:"frequency"`
	AmountTrend  Trend                     `json:"amountTrend"`
	MonthlyTrend Trend                     `json:"monthlyTrend"`
	Seasonality  SeasonalityResult         `json:"seasonality"`
	TopMerchants []MerchantTotal           `json:"topMerchants"`
}

type MerchantTotal struct {
	Merchant string  `json:"merchant"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// topMerchantLimit caps CategoryAnalysis.TopMerchants.
const topMerchantLimit = 5

// AnalyzeCategory computes the deep-dive statistics of a category. Grouped
// totals net refunds against spending; the amount distribution (average,
// percentiles, outliers, volatility, amount trend) covers purchases only.
func AnalyzeCategory(name string, details []aggregate.Detail) CategoryAnalysis {
	a := CategoryAnalysis{
		Name:         name,
		Count:        len(details),
		ByMonth:      GroupByMonth(details),
		ByWeekday:    GroupByWeekday(details),
		ByWeek:       GroupByWeek(details),
		Volatility:   Volatility{Level: NotAvailable},
		Frequency:    Frequency{Pattern: InsufficientData},
		AmountTrend:  Trend{Direction: InsufficientData},
		MonthlyTrend: Trend{Direction: InsufficientData},
		Seasonality:  SeasonalityResult{Status: InsufficientData},
	}
	if len(details) == 0 {
		return a
	}

	byDate := make([]aggregate.Detail, len(details))
	copy(byDate, details)
	sort.SliceStable(byDate, func(i, j int) bool { return byDate[i].Date.Before(byDate[j].Date.Time) })

	var (
		amounts   []float64
		purchases []aggregate.Detail
		total     float64
	)
	dates := make([]core.Date, len(byDate))
	for i, d := range byDate {
		dates[i] = d.Date
		total += d.Amount
		if d.Amount > 0 {
			amounts = append(amounts, d.Amount)
			purchases = append(purchases, d)
		}
	}
	a.Total = clampTotal(total)
	a.Frequency = FrequencyPattern(dates)
	a.MonthlyTrend = MonthlyTrend(monthSeries(a.ByMonth))
	a.Seasonality = Seasonality(a.ByMonth)
	a.TopMerchants = topMerchants(byDate)
	if len(amounts) == 0 {
		return a
	}

	sorted := sortedCopy(amounts)
	a.Average = core.Round2(Mean(amounts))
	a.Min = sorted[0]
	a.Max = sorted[len(sorted)-1]
	a.P25 = core.Round2(Percentile(sorted, 25))
	a.Median = core.Round2(Percentile(sorted, 50))
	a.P75 = core.Round2(Percentile(sorted, 75))
	a.P90 = core.Round2(Percentile(sorted, 90))
	a.Fences = TukeyFences(amounts)
	for i, d := range purchases {
		if a.Fences.Outside(amounts[i]) {
			a.Outliers = append(a.Outliers, d)
		}
	}
	a.Volatility = ComputeVolatility(amounts)
	a.AmountTrend = AmountTrend(amounts)
	return a
}

func monthSeries(byMonth map[core.MonthKey]float64) []float64 {
	keys := make([]core.MonthKey, 0, len(byMonth))
	for k := range byMonth {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = byMonth[k]
	}
	return out
}

func topMerchants(details []aggregate.Detail) []MerchantTotal {
	idx := make(map[string]int)
	var out []MerchantTotal
	for _, d := range details {
		m := merchant(d.Name)
		if m == "" {
			continue
		}
		i, ok := idx[m]
		if !ok {
			i = len(out)
			idx[m] = i
			out = append(out, MerchantTotal{Merchant: m})
		}
		out[i].Total += d.Amount
		out[i].Count++
	}
	for i := range out {
		out[i].Total = clampTotal(out[i].Total)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	if len(out) > topMerchantLimit {
		out = out[:topMerchantLimit]
	}
	return out
}
