// Package aggregate folds classified transactions into per-category totals
// and detail lists for a time window.
//
// Totals are signed sums of effective amounts (spending positive, refunds
// negative), clamped at zero and rounded to cents after every mutation.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"budgetdash/internal/classify"
	"budgetdash/internal/core"
)

// Detail is one display record inside a category.
type Detail struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Date     core.Date `json:"date"`
	Amount   float64   `json:"amount"`
	IsReturn bool      `json:"isReturn"`
	IsIncome bool      `json:"isIncome,omitempty"`
	// Raw is the stored signed amount; Amount is its effect on the total.
	Raw float64 `json:"raw"`
	// Smart is set when the heuristic stage chose the category.
	Smart bool `json:"smart,omitempty"`
}

// View is the derived state the dashboard renders.
type View struct {
	CategoryTotals   map[string]float64  `json:"categoryTotals"`
	CategoryDetails  map[string][]Detail `json:"categoryDetails"`
	TotalExpenses    float64             `json:"totalExpenses"`
	TotalIncome      float64             `json:"totalIncome"`
	TransactionCount int                 `json:"transactionCount"`
	SmartCategorized int                 `json:"smartCategorized"`
	Deleted          int                 `json:"deleted"`

	income map[string]bool
}

// Aggregator classifies and folds transactions.
type Aggregator struct {
	classifier *classify.Classifier
	income     map[string]bool
}

func New(c *classify.Classifier, categories []core.Category) *Aggregator {
	income := make(map[string]bool)
	for _, cat := range categories {
		if cat.IsIncome {
			income[cat.Name] = true
		}
	}
	return &Aggregator{classifier: c, income: income}
}

// Aggregate classifies each transaction and sums its effect into its
// category. Transactions matched by a delete rule are left out and counted.
// The same input always yields bit-identical totals.
func (a *Aggregator) Aggregate(txs []core.Transaction) View {
	v := View{
		CategoryTotals:  make(map[string]float64),
		CategoryDetails: make(map[string][]Detail),
		income:          a.income,
	}
	raw := make(map[string]float64)

	for _, tx := range txs {
		res := a.classifier.Classify(classify.SubjectOf(tx))
		if res.Delete {
			v.Deleted++
			continue
		}
		if res.Smart() {
			v.SmartCategorized++
		}
		effect := Effect(tx, a.income[res.Category])
		raw[res.Category] += effect
		v.CategoryDetails[res.Category] = append(v.CategoryDetails[res.Category], Detail{
			ID:       tx.ID,
			Name:     tx.Description,
			Date:     tx.Date,
			Amount:   core.Round2(effect),
			IsReturn: tx.IsReturn,
			IsIncome: tx.IsIncome,
			Raw:      tx.Amount,
			Smart:    res.Smart(),
		})
		v.TransactionCount++
	}

	for cat, total := range raw {
		v.CategoryTotals[cat] = clamp(total)
	}
	v.refreshTotals()
	return v
}

// Effect is the contribution of a transaction to its category total.
// Income is counted by magnitude; otherwise spending (negative) adds and
// refunds (positive) subtract.
func Effect(tx core.Transaction, incomeCategory bool) float64 {
	return effect(tx.Amount, incomeCategory || tx.IsIncome)
}

func effect(amount float64, income bool) float64 {
	abs := math.Abs(amount)
	if income || amount < 0 {
		return abs
	}
	return -abs
}

// Categories returns category names ordered by total, largest first.
func (v *View) Categories() []string {
	names := make([]string, 0, len(v.CategoryDetails))
	for name := range v.CategoryDetails {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ti, tj := v.CategoryTotals[names[i]], v.CategoryTotals[names[j]]
		if ti != tj {
			return ti > tj
		}
		return names[i] < names[j]
	})
	return names
}

// Clone returns a deep copy, so a shared view can be patched.
func (v View) Clone() View {
	c := v
	c.CategoryTotals = make(map[string]float64, len(v.CategoryTotals))
	for k, t := range v.CategoryTotals {
		c.CategoryTotals[k] = t
	}
	c.CategoryDetails = make(map[string][]Detail, len(v.CategoryDetails))
	for k, d := range v.CategoryDetails {
		c.CategoryDetails[k] = append([]Detail(nil), d...)
	}
	return c
}

// CategoryOf returns the category holding a transaction.
func (v *View) CategoryOf(txID string) (string, bool) {
	for cat, details := range v.CategoryDetails {
		for _, d := range details {
			if d.ID == txID {
				return cat, true
			}
		}
	}
	return "", false
}

// Move transfers a transaction's detail between categories and recomputes
// both totals from their detail lists. The moved detail's effect follows
// the income flag of its new category; the underlying transaction is not
// touched.
func (v *View) Move(txID, from, to string) (Detail, error) {
	if from == to {
		details := v.CategoryDetails[from]
		for i := range details {
			if details[i].ID == txID {
				if details[i].Smart {
					details[i].Smart = false
					v.SmartCategorized--
				}
				return details[i], nil
			}
		}
		return Detail{}, fmt.Errorf("%w: %s in %s", core.ErrTransactionNotFound, txID, from)
	}
	d, err := v.remove(txID, from)
	if err != nil {
		return Detail{}, err
	}
	if d.Smart {
		d.Smart = false
		v.SmartCategorized--
	}
	d.Amount = core.Round2(effect(d.Raw, v.income[to] || d.IsIncome))
	v.CategoryDetails[to] = append(v.CategoryDetails[to], d)

	v.Recalculate(from)
	v.Recalculate(to)
	return d, nil
}

// Delete drops a transaction from a category and recomputes that category
// from the remaining details.
func (v *View) Delete(txID, category string) (Detail, error) {
	d, err := v.remove(txID, category)
	if err != nil {
		return Detail{}, err
	}
	v.TransactionCount--
	if d.Smart {
		v.SmartCategorized--
	}
	v.Recalculate(category)
	return d, nil
}

// Recalculate rebuilds a category total from its detail list.
func (v *View) Recalculate(category string) {
	details := v.CategoryDetails[category]
	if len(details) == 0 {
		delete(v.CategoryDetails, category)
		delete(v.CategoryTotals, category)
		v.refreshTotals()
		return
	}
	var sum float64
	for _, d := range details {
		sum += d.Amount
	}
	v.CategoryTotals[category] = clamp(sum)
	v.refreshTotals()
}

func (v *View) remove(txID, category string) (Detail, error) {
	details := v.CategoryDetails[category]
	for i, d := range details {
		if d.ID == txID {
			v.CategoryDetails[category] = append(details[:i:i], details[i+1:]...)
			return d, nil
		}
	}
	return Detail{}, fmt.Errorf("%w: %s in %s", core.ErrTransactionNotFound, txID, category)
}

// refreshTotals sums categories in name order so the float result does not
// depend on map iteration.
func (v *View) refreshTotals() {
	names := make([]string, 0, len(v.CategoryTotals))
	for name := range v.CategoryTotals {
		names = append(names, name)
	}
	sort.Strings(names)

	var expenses, income float64
	for _, name := range names {
		expenses += v.CategoryTotals[name]
		if v.income[name] {
			income += v.CategoryTotals[name]
		}
	}
	v.TotalExpenses = core.Round2(expenses)
	v.TotalIncome = core.Round2(income)
}

func clamp(total float64) float64 {
	return core.Round2(math.Max(0, total))
}
