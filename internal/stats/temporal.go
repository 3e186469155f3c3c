package stats

import (
	"math"
	"sort"
	"time"

	"budgetdash/internal/aggregate"
	"budgetdash/internal/core"
)

// WeekNumber returns ceil((daysSinceJan1 + weekdayOfJan1 + 1) / 7), with
// Sunday as weekday 0.
func WeekNumber(d core.Date) int {
	jan1 := time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	days := float64(d.YearDay() - 1)
	return int(math.Ceil((days + float64(jan1.Weekday()) + 1) / 7))
}

// GroupByMonth sums detail effects per month. Refunds reduce a month and
// each month is clamped at zero, as category totals are.
func GroupByMonth(details []aggregate.Detail) map[core.MonthKey]float64 {
	out := make(map[core.MonthKey]float64)
	for _, d := range details {
		k := core.MonthKeyOf(d.Date)
		out[k] += d.Amount
	}
	for k, v := range out {
		out[k] = clampTotal(v)
	}
	return out
}

func clampTotal(v float64) float64 {
	return core.Round2(math.Max(0, v))
}

// WeekdayTotal is the spending and count for one weekday.
type WeekdayTotal struct {
	Weekday string  `json:"weekday"`
	Total   float64 `json:"total"`
	Count   int     `json:"count"`
}

// GroupByWeekday returns seven entries, Sunday first.
func GroupByWeekday(details []aggregate.Detail) []WeekdayTotal {
	out := make([]WeekdayTotal, 7)
	for i := range out {
		out[i].Weekday = time.Weekday(i).String()
	}
	for _, d := range details {
		w := d.Date.Weekday()
		out[w].Total += d.Amount
		out[w].Count++
	}
	for i := range out {
		out[i].Total = clampTotal(out[i].Total)
	}
	return out
}

// WeekTotal is the spending of one week of a year.
type WeekTotal struct {
	Year  int     `json:"year"`
	Week  int     `json:"week"`
	Total float64 `json:"total"`
}

// GroupByWeek sums per (year, week number), ordered chronologically.
func GroupByWeek(details []aggregate.Detail) []WeekTotal {
	type key struct{ year, week int }
	sums := make(map[key]float64)
	for _, d := range details {
		k := key{d.Date.Year(), WeekNumber(d.Date)}
		sums[k] += d.Amount
	}
	out := make([]WeekTotal, 0, len(sums))
	for k, v := range sums {
		out = append(out, WeekTotal{Year: k.year, Week: k.week, Total: clampTotal(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Week < out[j].Week
	})
	return out
}

const (
	FrequencyDaily        = "Daily"
	FrequencyVeryFrequent = "Very Frequent"
	FrequencyWeekly       = "Weekly"
	FrequencyBiweekly     = "Bi-weekly"
	FrequencyMonthly      = "Monthly"
	FrequencyInfrequent   = "Infrequent"
)

// Frequency describes how often transactions recur.
type Frequency struct {
	Pattern     string  `json:"pattern"`
	AverageDays float64 `json:"averageDays"`
}

// FrequencyPattern classifies the mean gap in days between consecutive
// dates. Fewer than two dates is insufficient data.
func FrequencyPattern(dates []core.Date) Frequency {
	if len(dates) < 2 {
		return Frequency{Pattern: InsufficientData}
	}
	sorted := make([]core.Date, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j].Time) })

	var gaps float64
	for i := 1; i < len(sorted); i++ {
		gaps += float64(sorted[i-1].DaysUntil(sorted[i]))
	}
	avg := gaps / float64(len(sorted)-1)

	f := Frequency{AverageDays: core.Round2(avg)}
	switch {
	case avg <= 1:
		f.Pattern = FrequencyDaily
	case avg <= 3:
		f.Pattern = FrequencyVeryFrequent
	case avg <= 7:
		f.Pattern = FrequencyWeekly
	case avg <= 14:
		f.Pattern = FrequencyBiweekly
	case avg <= 30:
		f.Pattern = FrequencyMonthly
	default:
		f.Pattern = FrequencyInfrequent
	}
	return f
}
