package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"budgetdash/internal/aggregate"
	"budgetdash/internal/core"
	"budgetdash/internal/services"
)

func testView() aggregate.View {
	return aggregate.View{
		CategoryTotals: map[string]float64{
			"Groceries": 60,
			"Dining":    40,
			"Zeta":      0,
		},
		CategoryDetails: map[string][]aggregate.Detail{
			"Groceries": {
				{ID: "g1", Name: "KROGER #123", Date: core.NewDate(2024, 3, 2), Amount: 45.5},
				{ID: "g2", Name: "KROGER #123", Date: core.NewDate(2024, 3, 9), Amount: 14.5},
			},
			"Dining": {
				{ID: "d1", Name: "CHIPOTLE", Date: core.NewDate(2024, 3, 4), Amount: 40},
			},
			"Zeta": {},
		},
		TotalExpenses:    100,
		TransactionCount: 3,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: FormatCSV},
		{in: "csv", want: FormatCSV},
		{in: "json", want: FormatJSON},
		{in: "doc", want: FormatDoc},
		{in: "xlsx", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) err = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testView(), []string{"Dining", "Groceries"}); err != nil {
		t.Fatal(err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"Category", "Date", "Description", "Amount"},
		{"Dining", "2024-03-04", "CHIPOTLE", "40.00"},
		{"Groceries", "2024-03-02", "KROGER #123", "45.50"},
		{"Groceries", "2024-03-09", "KROGER #123", "14.50"},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d: %v", len(rows), len(want), rows)
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Errorf("row %d col %d = %q, want %q", i, j, rows[i][j], want[i][j])
			}
		}
	}
}

func TestCategoryOrderAppendsUnlisted(t *testing.T) {
	got := categoryOrder(testView(), []string{"Groceries", "Missing"})
	want := []string{"Groceries", "Dining", "Zeta"}
	if len(got) != len(want) {
		t.Fatalf("categoryOrder = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("categoryOrder[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildReport(t *testing.T) {
	d := &services.Dashboard{
		Window: services.MonthWindow("2024-03"),
		Label:  "March 2024",
		View:   testView(),
	}
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	r := BuildReport(d, []string{"Groceries", "Dining"}, now)

	if !r.GeneratedAt.Equal(now) || r.Label != "March 2024" {
		t.Errorf("report header = %v %q", r.GeneratedAt, r.Label)
	}
	if r.Spending != 100 {
		t.Errorf("Spending = %v, want 100", r.Spending)
	}
	if len(r.Categories) != 2 {
		t.Fatalf("categories = %+v, want Groceries and Dining only", r.Categories)
	}
	if r.Categories[0].Name != "Groceries" || r.Categories[0].Share != 60 || r.Categories[0].Count != 2 {
		t.Errorf("first category = %+v", r.Categories[0])
	}
	if r.Categories[1].Analysis.Count != 1 {
		t.Errorf("Dining analysis count = %d, want 1", r.Categories[1].Analysis.Count)
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, r); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded["label"] != "March 2024" {
		t.Errorf("decoded label = %v", decoded["label"])
	}
}
