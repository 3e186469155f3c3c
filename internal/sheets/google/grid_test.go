package google

import (
	"testing"

	ports "budgetdash/internal/sheets"
)

func header() []any {
	h := []any{"Category"}
	for _, m := range monthHeaders {
		h = append(h, m)
	}
	return h
}

func TestParseGrid(t *testing.T) {
	tests := []struct {
		name    string
		values  [][]any
		wantErr bool
		rows    int
	}{
		{name: "empty sheet", values: nil, rows: 0},
		{name: "header only", values: [][]any{header()}, rows: 0},
		{
			name: "categories and total",
			values: [][]any{
				header(),
				{"Groceries", "40", "1,200.50"},
				{"", "skipped"},
				{"Total", "40", "1200.5"},
			},
			rows: 1,
		},
		{name: "missing month column", values: [][]any{{"Category", "Jan"}}, wantErr: true},
		{name: "missing category column", values: [][]any{{"Name"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := parseGrid(tt.values)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(g.order) != tt.rows {
				t.Errorf("rows = %d, want %d", len(g.order), tt.rows)
			}
		})
	}
}

func TestParseGridAmounts(t *testing.T) {
	g, err := parseGrid([][]any{
		header(),
		{"Groceries", "40", "1,200.50", "n/a"},
		{"Total", 40.0, "1200.5"},
	})
	if err != nil {
		t.Fatal(err)
	}
	v := g.values["Groceries"]
	if v[0] != 40 || v[1] != 1200.5 || v[2] != 0 {
		t.Errorf("groceries = %v", v)
	}
	if g.spending[1] != 1200.5 {
		t.Errorf("spending = %v", g.spending)
	}
}

func TestGridApplyReplacesMonthColumn(t *testing.T) {
	g, err := parseGrid([][]any{
		header(),
		{"Groceries", "40", "60"},
		{"Dining", "25", "10"},
		{"Total", "65", "70"},
	})
	if err != nil {
		t.Fatal(err)
	}

	feb := ports.NewMonthSummary("2024-02", map[string]float64{"Groceries": 80, "Travel": 300}, 380)
	g.apply(feb)

	if got := g.values["Dining"][1]; got != 0 {
		t.Errorf("Dining Feb = %v, want cleared", got)
	}
	if got := g.values["Dining"][0]; got != 25 {
		t.Errorf("Dining Jan = %v, want untouched", got)
	}
	if got := g.values["Travel"][1]; got != 300 {
		t.Errorf("Travel Feb = %v", got)
	}
	if g.spending[1] != 380 || g.spending[0] != 65 {
		t.Errorf("spending = %v", g.spending)
	}

	s := g.summary("2024-02")
	if s.Label != "February 2024" || len(s.Categories) != 2 || s.Amount("Groceries") != 80 {
		t.Errorf("summary = %+v", s)
	}
}

func TestGridMatrixRoundTrip(t *testing.T) {
	g := newGrid()
	g.apply(ports.NewMonthSummary("2024-03", map[string]float64{"Groceries": 12.5}, 12.5))

	m := g.matrix()
	if len(m) != 3 {
		t.Fatalf("matrix rows = %d, want header, one category and total", len(m))
	}
	if m[0][0] != "Category" || m[0][12] != "Dec" || m[2][0] != "Total" {
		t.Errorf("matrix layout = %v", m)
	}

	back, err := parseGrid(m)
	if err != nil {
		t.Fatal(err)
	}
	if got := back.summary("2024-03"); got.Amount("Groceries") != 12.5 || got.Spending != 12.5 {
		t.Errorf("round trip summary = %+v", got)
	}
}
