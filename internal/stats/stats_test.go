package stats

import (
	"math"
	"testing"

	"budgetdash/internal/aggregate"
	"budgetdash/internal/core"
)

func TestPercentile(t *testing.T) {
	data := []float64{10, 20, 30, 40, 50}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{25, 20},
		{50, 30},
		{75, 40},
		{100, 50},
		{10, 14},
	}
	for _, tt := range tests {
		if got := Percentile(data, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("empty percentile = %v", got)
	}
	if got := Percentile([]float64{7}, 90); got != 7 {
		t.Errorf("single percentile = %v", got)
	}
}

func TestOutliers(t *testing.T) {
	got := Outliers([]float64{10, 12, 11, 13, 12, 95})
	if len(got) != 1 || got[0] != 95 {
		t.Fatalf("Outliers = %v", got)
	}
	if got := Outliers([]float64{5, 5, 5, 5}); len(got) != 0 {
		t.Fatalf("flat series outliers = %v", got)
	}
}

func TestVolatility(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		cv     float64
		high   bool
		level  string
	}{
		{"flat", []float64{10, 10, 10}, 0, false, "low"},
		{"volatile", []float64{1, 100}, 98.02, true, "high"},
		{"zero mean", []float64{0, 0}, 0, false, NotAvailable},
		{"empty", nil, 0, false, NotAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ComputeVolatility(tt.values)
			if v.CV != tt.cv || v.HighlyVolatile != tt.high || v.Level != tt.level {
				t.Errorf("got %+v", v)
			}
			if math.IsNaN(v.CV) || math.IsInf(v.CV, 0) {
				t.Error("CV must be finite")
			}
		})
	}
}

func TestHalfTrend(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   string
	}{
		{"increasing", []float64{100, 100, 100, 200, 200, 200}, TrendIncreasing},
		{"flat", []float64{100, 100, 100, 100, 100, 100}, TrendStable},
		{"decreasing", []float64{200, 200, 100, 100}, TrendDecreasing},
		{"within threshold", []float64{100, 100, 109, 109}, TrendStable},
		{"too short", []float64{1, 2}, InsufficientData},
		{"from zero", []float64{0, 0, 50, 50}, TrendIncreasing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HalfTrend(tt.values).Direction; got != tt.want {
				t.Errorf("HalfTrend(%v) = %s, want %s", tt.values, got, tt.want)
			}
		})
	}
}

func TestQuarterTrendThresholds(t *testing.T) {
	// First quarter 100, last quarter 118: above 15%, below 20%.
	values := []float64{100, 150, 150, 118}
	if got := AmountTrend(values).Direction; got != TrendIncreasing {
		t.Errorf("AmountTrend = %s, want increasing", got)
	}
	if got := MonthlyTrend(values).Direction; got != TrendStable {
		t.Errorf("MonthlyTrend = %s, want stable", got)
	}
	if got := QuarterTrend([]float64{1, 2, 3}, 15).Direction; got != InsufficientData {
		t.Errorf("3 points = %s", got)
	}
}

func TestSeasonality(t *testing.T) {
	months := map[core.MonthKey]float64{
		"2024-01": 100, "2024-02": 100, "2024-03": 100,
		"2024-04": 100, "2024-05": 100, "2024-06": 400,
	}
	res := Seasonality(months)
	if !res.Detected || len(res.Peaks) != 1 || res.Peaks[0] != "2024-06" {
		t.Fatalf("Seasonality = %+v", res)
	}
	delete(months, "2024-06")
	if got := Seasonality(months).Status; got != InsufficientData {
		t.Fatalf("5 months status = %s", got)
	}
}

func TestWeekNumber(t *testing.T) {
	tests := []struct {
		date core.Date
		want int
	}{
		// 2024-01-01 is a Monday.
		{core.NewDate(2024, 1, 1), 1},
		{core.NewDate(2024, 1, 6), 1},
		{core.NewDate(2024, 1, 7), 2},
		// 2023-01-01 is a Sunday.
		{core.NewDate(2023, 1, 1), 1},
		{core.NewDate(2023, 1, 8), 2},
	}
	for _, tt := range tests {
		if got := WeekNumber(tt.date); got != tt.want {
			t.Errorf("WeekNumber(%s) = %d, want %d", tt.date, got, tt.want)
		}
	}
}

func TestFrequencyPattern(t *testing.T) {
	d := func(day int) core.Date { return core.NewDate(2024, 1, day) }
	tests := []struct {
		name  string
		dates []core.Date
		want  string
	}{
		{"daily", []core.Date{d(1), d(2), d(3)}, FrequencyDaily},
		{"very frequent", []core.Date{d(1), d(4), d(7)}, FrequencyVeryFrequent},
		{"weekly", []core.Date{d(1), d(8), d(15)}, FrequencyWeekly},
		{"bi-weekly", []core.Date{d(1), d(15), d(29)}, FrequencyBiweekly},
		{"monthly", []core.Date{core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 31)}, FrequencyMonthly},
		{"infrequent", []core.Date{core.NewDate(2024, 1, 1), core.NewDate(2024, 3, 1)}, FrequencyInfrequent},
		{"single", []core.Date{d(1)}, InsufficientData},
		{"unsorted", []core.Date{d(15), d(1), d(8)}, FrequencyWeekly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FrequencyPattern(tt.dates).Pattern; got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCompareMonths(t *testing.T) {
	got := CompareMonths(
		map[string]float64{"Groceries": 150, "Gas": 40, "Travel": 300},
		map[string]float64{"Groceries": 100, "Gas": 80, "Health": 0},
	)
	if len(got) != 4 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Category != "Travel" || got[0].PercentChange != 100 {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Category != "Groceries" || got[1].PercentChange != 50 {
		t.Fatalf("second = %+v", got[1])
	}
	if got[2].Category != "Gas" || got[2].Delta != -40 || got[2].PercentChange != -50 {
		t.Fatalf("third = %+v", got[2])
	}
	if got[3].Category != "Health" || got[3].PercentChange != 0 {
		t.Fatalf("both zero = %+v", got[3])
	}
}

func TestCategoryTrends(t *testing.T) {
	series := []MonthTotals{
		{Month: "2024-01", Totals: map[string]float64{"Gas": 100, "Travel": 500}},
		{Month: "2024-02", Totals: map[string]float64{"Gas": 100}},
		{Month: "2024-03", Totals: map[string]float64{"Gas": 100}},
		{Month: "2024-04", Totals: map[string]float64{"Gas": 200, "Travel": 50}},
	}
	trends := CategoryTrends(series)
	if len(trends) != 2 || trends[0].Category != "Travel" {
		t.Fatalf("trends = %+v", trends)
	}
	if trends[0].Values[1] != 0 {
		t.Fatal("absent month should be 0")
	}
	if trends[1].Trend.Direction != TrendIncreasing {
		t.Fatalf("gas trend = %+v", trends[1].Trend)
	}
}

func TestSummarize(t *testing.T) {
	v := aggregate.View{
		CategoryTotals: map[string]float64{"Groceries": 70, "Gas": 30, "Travel": 0, "Income": 1000},
		CategoryDetails: map[string][]aggregate.Detail{
			"Groceries": {
				{ID: "1", Name: "KROGER #1", Date: core.NewDate(2024, 1, 1), Amount: 40},
				{ID: "2", Name: "KROGER #2", Date: core.NewDate(2024, 1, 5), Amount: 30},
			},
			"Gas":    {{ID: "3", Name: "SHELL 1", Date: core.NewDate(2024, 1, 10), Amount: 30}},
			"Income": {{ID: "4", Name: "PAYROLL", Date: core.NewDate(2024, 1, 3), Amount: 1000, IsIncome: true}},
		},
		TotalExpenses: 100,
	}
	s := Summarize(v, map[string]bool{"Income": true})
	if s.Highest.Name != "Groceries" || s.Lowest.Name != "Gas" {
		t.Fatalf("highest=%v lowest=%v", s.Highest, s.Lowest)
	}
	if s.DaysSpanned != 10 || s.AvgPerDay != 10 {
		t.Fatalf("days=%d avg=%v", s.DaysSpanned, s.AvgPerDay)
	}
	if s.MostFrequent.Merchant != "KROGER" || s.MostFrequent.Count != 2 {
		t.Fatalf("most frequent = %+v", s.MostFrequent)
	}
	if s.LargestTransaction.ID != "4" {
		t.Fatalf("largest = %+v", s.LargestTransaction)
	}

	empty := Summarize(aggregate.View{}, nil)
	if empty.Highest.Name != NotAvailable || empty.AvgPerDay != 0 || empty.DaysSpanned != 1 {
		t.Fatalf("empty summary = %+v", empty)
	}
}

func TestAnalyzeCategory(t *testing.T) {
	var details []aggregate.Detail
	for i, amt := range []float64{10, 20, 30, 40, 50} {
		details = append(details, aggregate.Detail{
			ID:     string(rune('a' + i)),
			Name:   "KROGER #1",
			Date:   core.NewDate(2024, 1, 1+7*i),
			Amount: amt,
		})
	}
	a := AnalyzeCategory("Groceries", details)
	if a.P25 != 20 || a.Median != 30 || a.P75 != 40 {
		t.Fatalf("quartiles = %v %v %v", a.P25, a.Median, a.P75)
	}
	if a.Total != 150 || a.Average != 30 || a.Min != 10 || a.Max != 50 {
		t.Fatalf("basic stats = %+v", a)
	}
	if a.Frequency.Pattern != FrequencyWeekly {
		t.Fatalf("frequency = %+v", a.Frequency)
	}
	if a.AmountTrend.Direction != TrendIncreasing {
		t.Fatalf("amount trend = %+v", a.AmountTrend)
	}
	if a.MonthlyTrend.Direction != InsufficientData || a.Seasonality.Status != InsufficientData {
		t.Fatal("single month must be insufficient")
	}
	if len(a.TopMerchants) != 1 || a.TopMerchants[0].Count != 5 {
		t.Fatalf("top merchants = %+v", a.TopMerchants)
	}

	empty := AnalyzeCategory("None", nil)
	if empty.Count != 0 || empty.Volatility.Level != NotAvailable {
		t.Fatalf("empty analysis = %+v", empty)
	}
}

func TestRefundsNetAgainstSpending(t *testing.T) {
	details := []aggregate.Detail{
		{ID: "a", Name: "TARGET", Date: core.NewDate(2024, 1, 2), Amount: 30},
		{ID: "b", Name: "TARGET RETURN", Date: core.NewDate(2024, 1, 2), Amount: -10},
		{ID: "c", Name: "AMAZON", Date: core.NewDate(2024, 2, 5), Amount: 5},
		{ID: "d", Name: "AMAZON", Date: core.NewDate(2024, 2, 6), Amount: -25},
	}

	byMonth := GroupByMonth(details)
	if byMonth["2024-01"] != 20 || byMonth["2024-02"] != 0 {
		t.Errorf("by month = %v, want 20 and a clamped 0", byMonth)
	}
	if wd := GroupByWeekday(details)[details[0].Date.Weekday()]; wd.Total != 20 || wd.Count != 2 {
		t.Errorf("weekday = %+v", wd)
	}
	if weeks := GroupByWeek(details); weeks[0].Total != 20 {
		t.Errorf("weeks = %+v", weeks)
	}

	a := AnalyzeCategory("Shopping", details)
	if a.Total != 0 {
		t.Errorf("total = %v, want clamped 0", a.Total)
	}
	if a.Min != 5 || a.Max != 30 || a.Average != 17.5 {
		t.Errorf("purchase stats = min %v max %v avg %v", a.Min, a.Max, a.Average)
	}
	want := map[string]float64{"TARGET": 20, "AMAZON": 0}
	for _, m := range a.TopMerchants {
		if m.Total != want[m.Merchant] {
			t.Errorf("merchant %s total = %v, want %v", m.Merchant, m.Total, want[m.Merchant])
		}
	}

	onlyRefunds := AnalyzeCategory("Shopping", details[1:2])
	if onlyRefunds.Count != 1 || onlyRefunds.Max != 0 || onlyRefunds.Outliers != nil {
		t.Errorf("refund-only analysis = %+v", onlyRefunds)
	}
}

func TestBudgetStatus(t *testing.T) {
	total := 500.0
	r := BudgetStatus("2024-01",
		map[string]float64{"Groceries": 250, "Gas": 20},
		270,
		core.MonthBudget{Total: &total, Categories: map[string]float64{"Groceries": 200, "Gas": 50, "Deleted": 30}},
	)
	if len(r.Lines) != 3 {
		t.Fatalf("lines = %d", len(r.Lines))
	}
	byName := map[string]BudgetLine{}
	for _, l := range r.Lines {
		byName[l.Category] = l
	}
	if g := byName["Groceries"]; !g.Over || g.Remaining != -50 || g.PercentUsed != 125 {
		t.Fatalf("groceries = %+v", g)
	}
	if d := byName["Deleted"]; d.Spent != 0 || d.Over {
		t.Fatalf("missing category = %+v", d)
	}
	if r.Total == nil || r.Total.Remaining != 230 || r.Total.Over {
		t.Fatalf("total = %+v", r.Total)
	}
}
