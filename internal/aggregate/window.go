package aggregate

import "budgetdash/internal/core"

// ForMonth returns a copy of the transactions of one month bucket.
func ForMonth(doc *core.Document, month core.MonthKey) []core.Transaction {
	b, ok := doc.Months[month]
	if !ok || b == nil {
		return nil
	}
	out := make([]core.Transaction, len(b.Transactions))
	copy(out, b.Transactions)
	return out
}

// ForAll returns every stored transaction, oldest month first.
func ForAll(doc *core.Document) []core.Transaction {
	var out []core.Transaction
	for _, key := range doc.MonthKeys() {
		out = append(out, doc.Months[key].Transactions...)
	}
	return out
}

// ForRange returns transactions dated within [from, to], both inclusive.
func ForRange(doc *core.Document, from, to core.Date) []core.Transaction {
	if to.Before(from.Time) {
		from, to = to, from
	}
	var out []core.Transaction
	for _, key := range doc.MonthKeys() {
		start := key.Start()
		if start.After(to.Time) || start.AddDate(0, 1, 0).Before(from.Time) {
			continue
		}
		for _, tx := range doc.Months[key].Transactions {
			if tx.Date.Before(from.Time) || tx.Date.After(to.Time) {
				continue
			}
			out = append(out, tx)
		}
	}
	return out
}
