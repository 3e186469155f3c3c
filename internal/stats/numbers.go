// Package stats derives summary, deep-dive and cross-month statistics from
// aggregated views. Every division is guarded; empty or degenerate input
// yields 0, "N/A" or "insufficient_data" instead of NaN or Inf.
package stats

import (
	"math"
	"sort"

	"budgetdash/internal/core"
)

const (
	NotAvailable     = "N/A"
	InsufficientData = "insufficient_data"
)

// Percentile interpolates linearly on an ascending slice:
// index = p/100*(n-1), value = a[floor]*(1-frac) + a[ceil]*frac.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	p = math.Max(0, math.Min(100, p))
	idx := p / 100 * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Quartiles returns p25, p50 and p75 of an ascending slice.
func Quartiles(sorted []float64) (q1, median, q3 float64) {
	return Percentile(sorted, 25), Percentile(sorted, 50), Percentile(sorted, 75)
}

// Fences are Tukey's outlier bounds.
type Fences struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	IQR   float64 `json:"iqr"`
}

// TukeyFences computes p25-1.5*IQR and p75+1.5*IQR.
func TukeyFences(values []float64) Fences {
	sorted := sortedCopy(values)
	q1, _, q3 := Quartiles(sorted)
	iqr := q3 - q1
	return Fences{Lower: q1 - 1.5*iqr, Upper: q3 + 1.5*iqr, IQR: iqr}
}

// Outside reports whether v falls outside the fences.
func (f Fences) Outside(v float64) bool {
	return v < f.Lower || v > f.Upper
}

// Outliers returns the values outside the Tukey fences, in input order.
func Outliers(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	f := TukeyFences(values)
	var out []float64
	for _, v := range values {
		if f.Outside(v) {
			out = append(out, v)
		}
	}
	return out
}

// HighVolatilityPercent is the coefficient of variation above which a
// series is flagged highly volatile.
const HighVolatilityPercent = 50.0

type Volatility struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	// CV is stdDev/mean*100; 0 when the mean is 0.
	CV             float64 `json:"cv"`
	Level          string  `json:"level"`
	HighlyVolatile bool    `json:"highlyVolatile"`
}

// ComputeVolatility uses the population standard deviation.
func ComputeVolatility(values []float64) Volatility {
	if len(values) == 0 {
		return Volatility{Level: NotAvailable}
	}
	mean := Mean(values)
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	std := math.Sqrt(sq / float64(len(values)))
	vol := Volatility{Mean: core.Round2(mean), StdDev: core.Round2(std)}
	if mean == 0 {
		vol.Level = NotAvailable
		return vol
	}
	vol.CV = core.Round2(std / math.Abs(mean) * 100)
	vol.HighlyVolatile = vol.CV > HighVolatilityPercent
	switch {
	case vol.HighlyVolatile:
		vol.Level = "high"
	case vol.CV > 25:
		vol.Level = "moderate"
	default:
		vol.Level = "low"
	}
	return vol
}

// Mean returns 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PercentChange is (current-previous)/previous*100. A zero previous yields
// 100 when current grew and 0 otherwise.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return core.Round2((current - previous) / math.Abs(previous) * 100)
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}
