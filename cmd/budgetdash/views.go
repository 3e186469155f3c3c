package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"budgetdash/internal/core"
	"budgetdash/internal/export"
	"budgetdash/internal/services"
)

func cmdMonths(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "months")
	if err := parse(fs, args); err != nil {
		return err
	}
	months := e.svc.Months()
	if len(months) == 0 {
		fmt.Fprintln(e.stdout, "no months stored; import a CSV first")
		return nil
	}
	tw := table(e.stdout)
	fmt.Fprintln(tw, "MONTH\tLABEL\tTRANSACTIONS")
	for _, m := range months {
		b, _ := e.svc.Bucket(m)
		fmt.Fprintf(tw, "%s\t%s\t%d\n", m, m.Label(), len(b.Transactions))
	}
	return tw.Flush()
}

func cmdTransactions(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "transactions")
	month := fs.String("month", "", "month `YYYY-MM`")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	key, err := requireMonth(*month)
	if err != nil {
		return err
	}
	b, ok := e.svc.Bucket(key)
	if !ok {
		return fmt.Errorf("%w: %s", services.ErrMonthNotFound, key)
	}
	if *asJSON {
		return printJSON(e.stdout, b)
	}

	d, err := e.svc.MonthView(ctx, key)
	if err != nil {
		return err
	}
	category := make(map[string]string)
	for name, details := range d.View.CategoryDetails {
		for _, det := range details {
			category[det.ID] = name
		}
	}

	tw := table(e.stdout)
	fmt.Fprintln(tw, "ID\tDATE\tAMOUNT\tCATEGORY\tDESCRIPTION")
	for _, tx := range b.Transactions {
		cat, ok := category[tx.ID]
		if !ok {
			cat = "(deleted by rule)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.Date, money(tx.Amount), cat, tx.Description)
	}
	return tw.Flush()
}

func cmdSummary(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "summary")
	var wf windowFlags
	wf.register(fs)
	asJSON := fs.Bool("json", false, "print the analysis report as JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	win, err := wf.window()
	if err != nil {
		return err
	}
	d, err := e.svc.View(ctx, win)
	if err != nil {
		return err
	}
	report := export.BuildReport(d, categoryOrder(e.svc), time.Now())
	if *asJSON {
		return export.WriteJSON(e.stdout, report)
	}
	return printReport(e.stdout, report)
}

func printReport(w io.Writer, r export.Report) error {
	fmt.Fprintf(w, "%s: %d transactions, %d smart-categorized\n\n", r.Label, r.TransactionCount, r.SmartCategorized)
	if len(r.Categories) == 0 {
		fmt.Fprintln(w, "no transactions in this window")
		return nil
	}

	tw := table(w)
	fmt.Fprintln(tw, "CATEGORY\tAMOUNT\tSHARE\tCOUNT")
	for _, c := range r.Categories {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%d\n", c.Name, money(c.Total), c.Share, c.Count)
	}
	fmt.Fprintln(tw, "\t\t\t")
	fmt.Fprintf(tw, "Total expenses\t%s\t\t\n", money(r.TotalExpenses))
	if r.TotalIncome != 0 {
		fmt.Fprintf(tw, "Income\t%s\t\t\n", money(r.TotalIncome))
	}
	fmt.Fprintf(tw, "Spending\t%s\t\t\n", money(r.Spending))
	if err := tw.Flush(); err != nil {
		return err
	}

	s := r.Summary
	fmt.Fprintln(w)
	if s.Highest.Name != "" {
		fmt.Fprintf(w, "Highest category:  %s (%s)\n", s.Highest.Name, money(s.Highest.Amount))
		fmt.Fprintf(w, "Lowest category:   %s (%s)\n", s.Lowest.Name, money(s.Lowest.Amount))
	}
	fmt.Fprintf(w, "Average per day:   %s over %d days\n", money(s.AvgPerDay), s.DaysSpanned)
	if s.LargestTransaction.ID != "" {
		fmt.Fprintf(w, "Largest:           %s %s on %s\n", s.LargestTransaction.Name, money(s.LargestTransaction.Amount), s.LargestTransaction.Date)
	}
	if s.MostFrequent.Merchant != "" {
		fmt.Fprintf(w, "Most frequent:     %s (%d)\n", s.MostFrequent.Merchant, s.MostFrequent.Count)
	}

	if r.Budget != nil && len(r.Budget.Lines) > 0 {
		fmt.Fprintln(w)
		return printBudget(w, *r.Budget)
	}
	return nil
}

func cmdCategory(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "category")
	name := fs.String("name", "", "category `name`")
	var wf windowFlags
	wf.register(fs)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *name == "" {
		return usageError("-name is required")
	}
	win, err := wf.window()
	if err != nil {
		return err
	}
	a, err := e.svc.CategoryAnalysis(ctx, win, *name)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(e.stdout, a)
	}

	fmt.Fprintf(e.stdout, "%s: %d transactions, total %s\n\n", a.Name, a.Count, money(a.Total))
	if a.Count == 0 {
		return nil
	}
	tw := table(e.stdout)
	fmt.Fprintf(tw, "Average\t%s\n", money(a.Average))
	fmt.Fprintf(tw, "Min / Max\t%s / %s\n", money(a.Min), money(a.Max))
	fmt.Fprintf(tw, "P25 / Median / P75\t%s / %s / %s\n", money(a.P25), money(a.Median), money(a.P75))
	fmt.Fprintf(tw, "P90\t%s\n", money(a.P90))
	fmt.Fprintf(tw, "Volatility\t%s\n", a.Volatility.Level)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(a.ByMonth) > 1 {
		months := make([]core.MonthKey, 0, len(a.ByMonth))
		for m := range a.ByMonth {
			months = append(months, m)
		}
		sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })
		fmt.Fprintln(e.stdout, "\nBy month:")
		tw = table(e.stdout)
		for _, m := range months {
			fmt.Fprintf(tw, "  %s\t%s\n", m, money(a.ByMonth[m]))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if len(a.Outliers) > 0 {
		fmt.Fprintln(e.stdout, "\nOutliers:")
		for _, o := range a.Outliers {
			fmt.Fprintf(e.stdout, "  %s  %s  %s\n", o.Date, money(o.Amount), o.Name)
		}
	}
	return nil
}

func cmdTrends(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "trends")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	t, err := e.svc.Trends(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(e.stdout, t)
	}
	if len(t.Months) == 0 {
		fmt.Fprintln(e.stdout, "no months stored; import a CSV first")
		return nil
	}

	tw := table(e.stdout)
	fmt.Fprintln(tw, "MONTH\tSPENDING")
	for _, m := range t.Months {
		fmt.Fprintf(tw, "%s\t%s\n", m.Label, money(m.Total))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "\nOverall: %s (%+.1f%%), volatility %s\n\n", t.Overall.Direction, t.Overall.ChangePercent, t.Volatility.Level)

	tw = table(e.stdout)
	fmt.Fprintln(tw, "CATEGORY\tAVERAGE\tTREND\tCHANGE")
	for _, c := range t.Categories {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%+.1f%%\n", c.Category, money(c.Average), c.Trend.Direction, c.Trend.ChangePercent)
	}
	return tw.Flush()
}

func cmdCompare(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "compare")
	current := fs.String("current", "", "month `YYYY-MM` to compare")
	previous := fs.String("previous", "", "baseline month `YYYY-MM` (default: the month before)")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *current == "" {
		return usageError("-current is required")
	}
	cur, err := core.ParseMonthKey(*current)
	if err != nil {
		return usageError("-current: %v", err)
	}
	var prev core.MonthKey
	if *previous != "" {
		if prev, err = core.ParseMonthKey(*previous); err != nil {
			return usageError("-previous: %v", err)
		}
	}
	r, err := e.svc.Compare(ctx, cur, prev)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(e.stdout, r)
	}

	fmt.Fprintf(e.stdout, "%s vs %s: %s vs %s (%+.1f%%)\n\n",
		r.Current.Label(), r.Previous.Label(), money(r.CurrentTotal), money(r.PreviousTotal), r.PercentChange)
	tw := table(e.stdout)
	fmt.Fprintln(tw, "CATEGORY\tCURRENT\tPREVIOUS\tDELTA\tCHANGE")
	for _, c := range r.Categories {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%+.1f%%\n", c.Category, money(c.Current), money(c.Previous), money(c.Delta), c.PercentChange)
	}
	return tw.Flush()
}

func cmdExplain(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "explain")
	var tf txFlags
	tf.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	month, id, err := tf.parse()
	if err != nil {
		return err
	}
	res, err := e.svc.Explain(month, id)
	if err != nil {
		return err
	}
	switch {
	case res.Delete:
		fmt.Fprintf(e.stdout, "%s: deleted by rule %s\n", id, res.RuleID)
	case res.RuleID != "":
		fmt.Fprintf(e.stdout, "%s: %s (stage %s, rule %s)\n", id, res.Category, res.Stage, res.RuleID)
	default:
		fmt.Fprintf(e.stdout, "%s: %s (stage %s)\n", id, res.Category, res.Stage)
	}
	return nil
}

func cmdExport(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "export")
	formatName := fs.String("format", export.FormatCSV, "csv, json or doc (the whole store)")
	out := fs.String("out", "", "write to `file` instead of stdout")
	var wf windowFlags
	wf.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	format, err := export.ParseFormat(*formatName)
	if err != nil {
		return usageError("%v", err)
	}

	var buf bytes.Buffer
	if format == export.FormatDoc {
		data, err := e.svc.Export()
		if err != nil {
			return err
		}
		buf.Write(data)
	} else {
		win, err := wf.window()
		if err != nil {
			return err
		}
		d, err := e.svc.View(ctx, win)
		if err != nil {
			return err
		}
		order := categoryOrder(e.svc)
		if format == export.FormatCSV {
			err = export.WriteCSV(&buf, d.View, order)
		} else {
			err = export.WriteJSON(&buf, export.BuildReport(d, order, time.Now()))
		}
		if err != nil {
			return err
		}
	}

	if *out == "" {
		_, err = buf.WriteTo(e.stdout)
		return err
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(e.stderr, "wrote %s\n", *out)
	return nil
}

func categoryOrder(svc *services.BudgetService) []string {
	cats := svc.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
