package stats

import (
	"math"
	"sort"

	"budgetdash/internal/core"
)

const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Thresholds, in percent, for the different trend call sites. Half trends
// are used across months; quarter trends inside a category deep-dive.
const (
	HalfTrendThreshold    = 10.0
	AmountTrendThreshold  = 15.0
	MonthlyTrendThreshold = 20.0
)

type Trend struct {
	Direction     string  `json:"direction"`
	ChangePercent float64 `json:"changePercent"`
	FirstAverage  float64 `json:"firstAverage"`
	LastAverage   float64 `json:"lastAverage"`
}

// HalfTrend compares the average of the first half of a series with the
// second half at a 10% threshold. Needs at least 3 points.
func HalfTrend(values []float64) Trend {
	if len(values) < 3 {
		return Trend{Direction: InsufficientData}
	}
	half := len(values) / 2
	return classifyTrend(Mean(values[:half]), Mean(values[half:]), HalfTrendThreshold)
}

// QuarterTrend compares the first and last quarter of a series at the given
// threshold. Needs at least 4 points.
func QuarterTrend(values []float64, threshold float64) Trend {
	n := len(values)
	if n < 4 {
		return Trend{Direction: InsufficientData}
	}
	q := n / 4
	return classifyTrend(Mean(values[:q]), Mean(values[n-q:]), threshold)
}

// AmountTrend is the quarter trend of transaction amounts ordered by date.
func AmountTrend(values []float64) Trend {
	return QuarterTrend(values, AmountTrendThreshold)
}

// MonthlyTrend is the quarter trend of a category's month totals.
func MonthlyTrend(values []float64) Trend {
	return QuarterTrend(values, MonthlyTrendThreshold)
}

func classifyTrend(first, last, threshold float64) Trend {
	t := Trend{FirstAverage: core.Round2(first), LastAverage: core.Round2(last)}
	t.ChangePercent = PercentChange(last, first)
	switch {
	case t.ChangePercent > threshold:
		t.Direction = TrendIncreasing
	case t.ChangePercent < -threshold:
		t.Direction = TrendDecreasing
	default:
		t.Direction = TrendStable
	}
	return t
}

// SeasonalityMinMonths is the number of months needed to look for a season.
const SeasonalityMinMonths = 6

type SeasonalityResult struct {
	Status   string          `json:"status"`
	Detected bool            `json:"detected"`
	Average  float64         `json:"average"`
	Peaks    []core.MonthKey `json:"peaks,omitempty"`
	Lows     []core.MonthKey `json:"lows,omitempty"`
}

// Seasonality flags months above 1.5x or below 0.5x the cross-month
// average.
func Seasonality(monthTotals map[core.MonthKey]float64) SeasonalityResult {
	if len(monthTotals) < SeasonalityMinMonths {
		return SeasonalityResult{Status: InsufficientData}
	}
	keys := make([]core.MonthKey, 0, len(monthTotals))
	var sum float64
	for k, v := range monthTotals {
		keys = append(keys, k)
		sum += v
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	avg := sum / float64(len(keys))

	res := SeasonalityResult{Status: "ok", Average: core.Round2(avg)}
	if avg == 0 || math.IsNaN(avg) {
		return res
	}
	for _, k := range keys {
		switch v := monthTotals[k]; {
		case v > 1.5*avg:
			res.Peaks = append(res.Peaks, k)
		case v < 0.5*avg:
			res.Lows = append(res.Lows, k)
		}
	}
	res.Detected = len(res.Peaks) > 0 || len(res.Lows) > 0
	return res
}
