package aggregate

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"budgetdash/internal/classify"
	"budgetdash/internal/core"
	"budgetdash/internal/rules"
)

func newAggregator(rs []core.Rule) *Aggregator {
	cats := rules.DefaultCategories()
	c := classify.New(classify.Config{Categories: cats, Rules: rules.NewRuleSet(rs)})
	return New(c, cats)
}

func tx(id, desc string, day int, amount float64) core.Transaction {
	return core.Transaction{ID: id, Description: desc, Date: core.NewDate(2024, 1, day), Amount: amount}
}

func sampleTransactions() []core.Transaction {
	return []core.Transaction{
		tx("1", "KROGER #1", 2, -50.25),
		tx("2", "KROGER #1", 3, -20.10),
		tx("3", "KROGER #1", 4, 15.00), // refund
		tx("4", "NETFLIX.COM", 5, -15.99),
		tx("5", "TARGET RETURN", 6, 80.00), // refund larger than spending
		tx("6", "TARGET", 7, -30.00),
		tx("7", "XYZ HOLDINGS", 8, -5.55),
		tx("8", "INTERNAL TRANSFER", 9, -1000),
	}
}

func TestAggregateTotals(t *testing.T) {
	a := newAggregator([]core.Rule{
		{ID: "del", Pattern: "INTERNAL TRANSFER", MatchType: core.MatchContains, Active: true},
	})
	v := a.Aggregate(sampleTransactions())

	tests := []struct {
		category string
		want     float64
	}{
		{rules.CategoryGroceries, 55.35},
		{rules.CategorySubscriptions, 15.99},
		{rules.CategoryShopping, 0},
		{core.OthersCategory, 5.55},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			if got := v.CategoryTotals[tt.category]; got != tt.want {
				t.Errorf("total = %v, want %v", got, tt.want)
			}
		})
	}
	if v.TransactionCount != 7 || v.Deleted != 1 {
		t.Fatalf("count=%d deleted=%d", v.TransactionCount, v.Deleted)
	}
	if v.TotalExpenses != 76.89 {
		t.Fatalf("TotalExpenses = %v", v.TotalExpenses)
	}
	if v.SmartCategorized != 1 {
		t.Fatalf("SmartCategorized = %d", v.SmartCategorized)
	}
}

func TestAggregateIdempotent(t *testing.T) {
	a := newAggregator(nil)
	txs := sampleTransactions()
	first := a.Aggregate(txs)
	second := a.Aggregate(txs)
	for cat, total := range first.CategoryTotals {
		if second.CategoryTotals[cat] != total {
			t.Fatalf("%s: %v != %v", cat, total, second.CategoryTotals[cat])
		}
	}
	if first.TotalExpenses != second.TotalExpenses || len(first.CategoryTotals) != len(second.CategoryTotals) {
		t.Fatal("aggregation is not idempotent")
	}
}

func TestAggregateNonNegative(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	descs := []string{"KROGER", "TARGET", "SHELL 0001", "NETFLIX", "XYZ"}
	var txs []core.Transaction
	for i := 0; i < 500; i++ {
		amt := core.Round2(r.Float64()*200 - 100)
		if amt == 0 {
			amt = 1
		}
		txs = append(txs, tx(fmt.Sprint(i), descs[r.Intn(len(descs))], 1+r.Intn(28), amt))
	}
	v := newAggregator(nil).Aggregate(txs)
	for cat, total := range v.CategoryTotals {
		if total < 0 {
			t.Fatalf("%s total %v < 0", cat, total)
		}
	}
}

func TestIncomeCategory(t *testing.T) {
	a := newAggregator(nil)
	v := a.Aggregate([]core.Transaction{
		{ID: "p", Description: "ACME PAYROLL", Date: core.NewDate(2024, 1, 15), Amount: 2500, IsIncome: true},
		tx("k", "KROGER", 16, -40),
	})
	if v.CategoryTotals[core.IncomeCategory] != 2500 || v.TotalIncome != 2500 {
		t.Fatalf("income total = %v / %v", v.CategoryTotals[core.IncomeCategory], v.TotalIncome)
	}
	if v.TotalExpenses != 2540 {
		t.Fatalf("TotalExpenses = %v", v.TotalExpenses)
	}
}

func TestMoveAndDelete(t *testing.T) {
	v := newAggregator(nil).Aggregate(sampleTransactions()[:4])

	d, err := v.Move("4", rules.CategorySubscriptions, rules.CategoryEntertainment)
	if err != nil {
		t.Fatal(err)
	}
	if d.Amount != 15.99 {
		t.Fatalf("moved detail amount = %v", d.Amount)
	}
	if _, ok := v.CategoryTotals[rules.CategorySubscriptions]; ok {
		t.Fatal("empty source category should be dropped")
	}
	if v.CategoryTotals[rules.CategoryEntertainment] != 15.99 {
		t.Fatalf("target total = %v", v.CategoryTotals[rules.CategoryEntertainment])
	}

	if _, err := v.Move("missing", rules.CategoryGroceries, core.OthersCategory); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}

	if _, err := v.Delete("1", rules.CategoryGroceries); err != nil {
		t.Fatal(err)
	}
	if got := v.CategoryTotals[rules.CategoryGroceries]; got != 5.10 {
		t.Fatalf("groceries after delete = %v, want 5.10", got)
	}
	if v.TransactionCount != 3 || v.TotalExpenses != 21.09 {
		t.Fatalf("count=%d total=%v", v.TransactionCount, v.TotalExpenses)
	}
}

func TestRandomMovesStayConsistent(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	var txs []core.Transaction
	for i := 0; i < 50; i++ {
		amt := -core.Round2(0.01 + r.Float64()*9.99)
		if i%5 == 0 {
			amt = -amt * 3 // refund
		}
		desc := "KROGER"
		if i%2 == 1 {
			desc = "TARGET"
		}
		txs = append(txs, tx(fmt.Sprint(i), desc, 1+i%28, amt))
	}
	v := newAggregator(nil).Aggregate(txs)
	cats := [2]string{rules.CategoryGroceries, rules.CategoryShopping}

	for i := 0; i < 1000; i++ {
		from := cats[r.Intn(2)]
		to := cats[0]
		if from == to {
			to = cats[1]
		}
		details := v.CategoryDetails[from]
		if len(details) == 0 {
			from, to = to, from
			details = v.CategoryDetails[from]
		}
		if _, err := v.Move(details[r.Intn(len(details))].ID, from, to); err != nil {
			t.Fatal(err)
		}
	}

	for _, cat := range cats {
		var sum float64
		for _, d := range v.CategoryDetails[cat] {
			sum += d.Amount
		}
		if math.Abs(clamp(sum)-v.CategoryTotals[cat]) > 0.01 {
			t.Fatalf("%s: details sum %v, total %v", cat, sum, v.CategoryTotals[cat])
		}
	}
}

func TestMoveRefundRecomputesFromDetails(t *testing.T) {
	v := newAggregator(nil).Aggregate([]core.Transaction{
		tx("buy", "TARGET", 2, -5),
		tx("ret", "TARGET RETURN", 3, 15),
	})
	if v.CategoryTotals[rules.CategoryShopping] != 0 {
		t.Fatalf("Shopping = %v, want clamped 0", v.CategoryTotals[rules.CategoryShopping])
	}

	if _, err := v.Move("ret", rules.CategoryShopping, core.OthersCategory); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		category string
		want     float64
	}{
		{rules.CategoryShopping, 5},
		{core.OthersCategory, 0},
	}
	for _, tt := range tests {
		if got := v.CategoryTotals[tt.category]; got != tt.want {
			t.Errorf("%s = %v, want %v", tt.category, got, tt.want)
		}
	}
	if v.TotalExpenses != 5 {
		t.Errorf("TotalExpenses = %v, want 5", v.TotalExpenses)
	}

	d, err := v.Move("ret", core.OthersCategory, core.IncomeCategory)
	if err != nil {
		t.Fatal(err)
	}
	if d.Amount != 15 || v.TotalIncome != 15 {
		t.Errorf("refund moved to income: amount %v, income %v", d.Amount, v.TotalIncome)
	}
}

func TestClonePatchesIndependently(t *testing.T) {
	v := newAggregator(nil).Aggregate(sampleTransactions()[:4])
	c := v.Clone()
	if _, err := c.Delete("1", rules.CategoryGroceries); err != nil {
		t.Fatal(err)
	}
	if len(v.CategoryDetails[rules.CategoryGroceries]) != 3 || v.CategoryTotals[rules.CategoryGroceries] != 55.35 {
		t.Errorf("original changed: %v", v.CategoryTotals)
	}
	if cat, ok := v.CategoryOf("4"); !ok || cat != rules.CategorySubscriptions {
		t.Errorf("CategoryOf = %q, %v", cat, ok)
	}
	if _, ok := c.CategoryOf("1"); ok {
		t.Error("deleted transaction still found")
	}
}

func TestWindows(t *testing.T) {
	doc := core.NewDocument(rules.DefaultCategories())
	add := func(y, m, d int, id string) {
		date := core.NewDate(y, m, d)
		b := doc.Bucket(core.MonthKeyOf(date))
		b.Transactions = append(b.Transactions, core.Transaction{ID: id, Date: date, Description: id, Amount: -1})
	}
	add(2024, 1, 5, "a")
	add(2024, 1, 25, "b")
	add(2024, 2, 10, "c")
	add(2024, 3, 1, "d")

	if got := len(ForMonth(doc, "2024-01")); got != 2 {
		t.Fatalf("ForMonth = %d", got)
	}
	all := ForAll(doc)
	if len(all) != 4 || all[0].ID != "a" || all[3].ID != "d" {
		t.Fatalf("ForAll order wrong: %v", all)
	}
	rng := ForRange(doc, core.NewDate(2024, 1, 20), core.NewDate(2024, 2, 28))
	if len(rng) != 2 || rng[0].ID != "b" || rng[1].ID != "c" {
		t.Fatalf("ForRange = %v", rng)
	}
	if got := len(ForMonth(doc, "2023-12")); got != 0 {
		t.Fatalf("missing month = %d", got)
	}
}
