package services

import (
	"fmt"

	"budgetdash/internal/aggregate"
	"budgetdash/internal/core"
)

// Window selects the transactions a dashboard view covers: one month, an
// inclusive date range, or everything when both are unset.
type Window struct {
	Month core.MonthKey `json:"month,omitempty"`
	From  core.Date     `json:"from,omitempty"`
	To    core.Date     `json:"to,omitempty"`
}

func MonthWindow(month core.MonthKey) Window { return Window{Month: month} }

func RangeWindow(from, to core.Date) Window {
	if to.Before(from.Time) {
		from, to = to, from
	}
	return Window{From: from, To: to}
}

func AllWindow() Window { return Window{} }

func (w Window) IsMonth() bool { return w.Month != "" }

func (w Window) IsRange() bool { return w.Month == "" && !w.From.IsZero() && !w.To.IsZero() }

func (w Window) IsAll() bool { return !w.IsMonth() && !w.IsRange() }

// Key identifies the window in the view cache.
func (w Window) Key() string {
	switch {
	case w.IsMonth():
		return "month:" + string(w.Month)
	case w.IsRange():
		return "range:" + w.From.String() + ":" + w.To.String()
	default:
		return "all"
	}
}

func (w Window) Label() string {
	switch {
	case w.IsMonth():
		return w.Month.Label()
	case w.IsRange():
		return fmt.Sprintf("%s to %s", w.From, w.To)
	default:
		return "All months"
	}
}

func (w Window) transactions(doc *core.Document) []core.Transaction {
	switch {
	case w.IsMonth():
		return aggregate.ForMonth(doc, w.Month)
	case w.IsRange():
		return aggregate.ForRange(doc, w.From, w.To)
	default:
		return aggregate.ForAll(doc)
	}
}
