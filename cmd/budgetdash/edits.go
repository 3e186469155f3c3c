package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"budgetdash/internal/core"
	"budgetdash/internal/ingest"
	"budgetdash/internal/log"
	"budgetdash/internal/stats"
	"budgetdash/internal/store"
)

func cmdImport(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "import")
	format := fs.String("format", "", "force a known bank `format` instead of detecting it")
	income := fs.Bool("income", false, "detect income for this import even if tracking is off")
	var patterns stringList
	fs.Var(&patterns, "income-pattern", "description `substring` marking income (repeatable)")
	var m ingest.ColumnMapping
	fs.StringVar(&m.Date, "date-col", "", "date `column` for an explicit mapping")
	fs.StringVar(&m.Description, "description-col", "", "description `column`")
	fs.StringVar(&m.Amount, "amount-col", "", "signed amount `column`")
	fs.StringVar(&m.Debit, "debit-col", "", "debit `column`")
	fs.StringVar(&m.Credit, "credit-col", "", "credit `column`")
	fs.StringVar(&m.Category, "category-col", "", "bank category `column`")
	fs.StringVar(&m.Type, "type-col", "", "transaction type `column`")
	sign := fs.String("sign", "", "expenses_negative, expenses_positive or split_debit_credit")
	asJSON := fs.Bool("json", false, "print the import reports as JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageError("at least one FILE is required")
	}

	hints := ingest.Hints{Format: *format, IncomeTracking: *income, IncomePatterns: patterns}
	if m != (ingest.ColumnMapping{}) {
		if m.Date == "" || m.Description == "" {
			return usageError("a column mapping needs -date-col and -description-col")
		}
		conv, err := parseSign(*sign)
		if err != nil {
			return err
		}
		m.Sign = conv
		hints.Mapping = &m
	}

	results, err := e.svc.ImportFiles(ctx, fs.Args(), hints)
	if err != nil {
		return err
	}
	if *asJSON {
		out := make([]importOutput, len(results))
		for i, r := range results {
			out[i] = importOutput{IngestReport: r.IngestReport}
			if r.Err != nil {
				out[i].Error = r.Err.Error()
			}
		}
		return printJSON(e.stdout, out)
	}

	events := log.NewEvents(e.app.Logger)
	failed := 0
	tw := table(e.stdout)
	fmt.Fprintln(tw, "FILE\tFORMAT\tADDED\tDUPLICATES\tSKIPPED\tMONTHS")
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(tw, "%s\terror: %v\t\t\t\t\n", r.Source, r.Err)
			continue
		}
		events.Imported(ctx, r.Source, r.Added, r.Duplicates, r.Skipped)
		months := make([]string, len(r.Months))
		for i, mk := range r.Months {
			months[i] = string(mk)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", r.Source, r.Format, r.Added, r.Duplicates, r.Skipped, strings.Join(months, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files not imported", failed, len(results))
	}
	return nil
}

type importOutput struct {
	store.IngestReport
	Error string `json:"error,omitempty"`
}

func parseSign(s string) (ingest.SignConvention, error) {
	if s == "" {
		return ingest.ExpensesNegative, nil
	}
	for _, c := range []ingest.SignConvention{ingest.ExpensesNegative, ingest.ExpensesPositive, ingest.SplitDebitCredit} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, usageError("unknown sign convention %q", s)
}

func cmdMove(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "move")
	var tf txFlags
	tf.register(fs)
	from := fs.String("from", "", "current `category` (default: as classified)")
	to := fs.String("to", "", "target `category`")
	if err := parse(fs, args); err != nil {
		return err
	}
	month, id, err := tf.parse()
	if err != nil {
		return err
	}
	if *to == "" {
		return usageError("-to is required")
	}
	src := *from
	if src == "" {
		if cur, err := e.svc.Explain(month, id); err == nil {
			src = cur.Category
		}
	}
	res, err := e.svc.Move(ctx, month, id, src, *to)
	if err != nil {
		return err
	}
	log.NewEvents(e.app.Logger).TransactionChanged(ctx, log.OpMove, string(month), id, res.To)

	fmt.Fprintf(e.stdout, "moved %q from %s to %s\n", res.Transaction.Description, res.From, res.To)
	if res.LearnedRule != nil {
		fmt.Fprintf(e.stdout, "learned rule %s: %s %q -> %s\n",
			res.LearnedRule.ID, res.LearnedRule.MatchType, res.LearnedRule.Pattern, res.LearnedRule.Action)
	}
	return nil
}

func cmdSetCategory(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "set-category")
	var tf txFlags
	tf.register(fs)
	category := fs.String("category", "", "override `category`")
	clearOverride := fs.Bool("clear", false, "remove the override")
	if err := parse(fs, args); err != nil {
		return err
	}
	month, id, err := tf.parse()
	if err != nil {
		return err
	}
	switch {
	case *clearOverride && *category != "":
		return usageError("-category and -clear are exclusive")
	case *clearOverride:
		if err := e.svc.ClearOverride(ctx, month, id); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "cleared override for %s\n", id)
	case *category != "":
		if err := e.svc.SetCategory(ctx, month, id, *category); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s is now %s\n", id, *category)
	default:
		return usageError("-category or -clear is required")
	}
	log.NewEvents(e.app.Logger).TransactionChanged(ctx, log.OpMove, string(month), id, *category)
	return nil
}

func cmdDelete(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "delete")
	var tf txFlags
	tf.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	month, id, err := tf.parse()
	if err != nil {
		return err
	}
	tx, err := e.svc.DeleteTransaction(ctx, month, id)
	if err != nil {
		return err
	}
	log.NewEvents(e.app.Logger).TransactionChanged(ctx, log.OpDelete, string(month), id, "")
	fmt.Fprintf(e.stdout, "deleted %s %s %s\n", tx.Date, money(tx.Amount), tx.Description)
	return nil
}

func cmdRules(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "list":
		return rulesList(e, args)
	case "add":
		return rulesAdd(ctx, e, args)
	case "remove":
		fs := newFlagSet(e, "rules remove")
		id := fs.String("id", "", "rule `id`")
		if err := parse(fs, args); err != nil {
			return err
		}
		if *id == "" {
			return usageError("-id is required")
		}
		if err := e.svc.DeleteRule(ctx, *id); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "removed rule %s\n", *id)
		return nil
	case "toggle":
		fs := newFlagSet(e, "rules toggle")
		id := fs.String("id", "", "rule `id`")
		if err := parse(fs, args); err != nil {
			return err
		}
		rule, ok := findRule(e, *id)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrRuleNotFound, *id)
		}
		if err := e.svc.SetRuleActive(ctx, rule.ID, !rule.Active); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "rule %s active=%t\n", rule.ID, !rule.Active)
		return nil
	case "apply-deletes":
		fs := newFlagSet(e, "rules apply-deletes")
		if err := parse(fs, args); err != nil {
			return err
		}
		n, err := e.svc.ApplyDeleteRules(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "deleted %d transactions\n", n)
		return nil
	default:
		return usageError("unknown rules subcommand %q", sub)
	}
}

func rulesList(e *env, args []string) error {
	fs := newFlagSet(e, "rules list")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	rules := e.svc.Rules()
	if *asJSON {
		return printJSON(e.stdout, rules)
	}
	if len(rules) == 0 {
		fmt.Fprintln(e.stdout, "no rules")
		return nil
	}
	tw := table(e.stdout)
	fmt.Fprintln(tw, "ID\tMATCH\tPATTERN\tACTION\tACTIVE\tLEARNED")
	for _, r := range rules {
		action := r.Action
		if r.IsDelete() {
			action = "(delete)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%t\n", r.ID, r.MatchType, r.Pattern, action, r.Active, r.IsAutomatic)
	}
	return tw.Flush()
}

func rulesAdd(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "rules add")
	pattern := fs.String("pattern", "", "description `pattern`")
	match := fs.String("match", string(core.MatchContains), "contains, startsWith, endsWith, exact or regex")
	action := fs.String("action", "", "target `category`")
	del := fs.Bool("delete", false, "delete matching transactions instead of recategorizing")
	inactive := fs.Bool("inactive", false, "add the rule switched off")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *pattern == "" {
		return usageError("-pattern is required")
	}
	if (*action == "") == !*del {
		return usageError("exactly one of -action or -delete is required")
	}
	rule, err := e.svc.AddRule(ctx, core.Rule{
		Pattern:   *pattern,
		MatchType: core.MatchType(*match),
		Action:    *action,
		Active:    !*inactive,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "added rule %s\n", rule.ID)
	return nil
}

func findRule(e *env, id string) (core.Rule, bool) {
	for _, r := range e.svc.Rules() {
		if r.ID == id {
			return r, true
		}
	}
	return core.Rule{}, false
}

func cmdCategories(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	sub, args := args[0], args[1:]
	fs := newFlagSet(e, "categories "+sub)
	switch sub {
	case "list":
		if err := parse(fs, args); err != nil {
			return err
		}
		tw := table(e.stdout)
		fmt.Fprintln(tw, "NAME\tINCOME\tKEYWORDS")
		for _, c := range e.svc.Categories() {
			fmt.Fprintf(tw, "%s\t%t\t%s\n", c.Name, c.IsIncome, strings.Join(c.Keywords, ", "))
		}
		return tw.Flush()
	case "add":
		name := fs.String("name", "", "category `name`")
		keywords := fs.String("keywords", "", "comma-separated `keywords`")
		icon := fs.String("icon", "", "display `icon`")
		income := fs.Bool("income", false, "count the category as income")
		if err := parse(fs, args); err != nil {
			return err
		}
		if *name == "" {
			return usageError("-name is required")
		}
		c := core.Category{Name: *name, Keywords: splitList(*keywords), Icon: *icon, IsIncome: *income}
		if err := e.svc.AddCategory(ctx, c); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "added category %s\n", c.Name)
		return nil
	case "rename":
		from := fs.String("from", "", "current `name`")
		to := fs.String("to", "", "new `name`")
		if err := parse(fs, args); err != nil {
			return err
		}
		if *from == "" || *to == "" {
			return usageError("-from and -to are required")
		}
		if err := e.svc.RenameCategory(ctx, *from, *to); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "renamed %s to %s\n", *from, *to)
		return nil
	case "remove":
		name := fs.String("name", "", "category `name`")
		if err := parse(fs, args); err != nil {
			return err
		}
		if *name == "" {
			return usageError("-name is required")
		}
		if err := e.svc.DeleteCategory(ctx, *name); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "removed category %s\n", *name)
		return nil
	default:
		return usageError("unknown categories subcommand %q", sub)
	}
}

func cmdIncome(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "income")
	enable := fs.Bool("enable", false, "turn income tracking on")
	disable := fs.Bool("disable", false, "turn income tracking off")
	var patterns stringList
	fs.Var(&patterns, "pattern", "income description `substring` (repeatable, replaces the list)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *enable && *disable {
		return usageError("-enable and -disable are exclusive")
	}

	settings := e.svc.IncomeSettings()
	if *enable || *disable || len(patterns) > 0 {
		enabled := settings.Enabled
		if *enable || *disable {
			enabled = *enable
		}
		var list []string
		if len(patterns) > 0 {
			list = patterns
		}
		if err := e.svc.SetIncomeTracking(ctx, enabled, list); err != nil {
			return err
		}
		settings = e.svc.IncomeSettings()
	}
	fmt.Fprintf(e.stdout, "income tracking: %t\npatterns: %s\n", settings.Enabled, strings.Join(settings.Patterns, ", "))
	return nil
}

func cmdBudget(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "budget")
	month := fs.String("month", "", "month `YYYY-MM`")
	total := fs.String("total", "", "overall spending `target`; \"none\" removes it")
	var set, unset stringList
	fs.Var(&set, "set", "category target `CATEGORY=AMOUNT` (repeatable)")
	fs.Var(&unset, "unset", "remove a category `target` (repeatable)")
	clearAll := fs.Bool("clear", false, "remove every target for the month")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	key, err := requireMonth(*month)
	if err != nil {
		return err
	}

	if *clearAll || *total != "" || len(set) > 0 || len(unset) > 0 {
		b, err := editBudget(e, key, *clearAll, *total, set, unset)
		if err != nil {
			return err
		}
		if err := e.svc.SetBudget(ctx, key, b); err != nil {
			return err
		}
	}

	report, err := e.svc.BudgetReport(ctx, key)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(e.stdout, report)
	}
	if report.Total == nil && len(report.Lines) == 0 {
		fmt.Fprintf(e.stdout, "no budget set for %s\n", key)
		return nil
	}
	return printBudget(e.stdout, report)
}

func editBudget(e *env, month core.MonthKey, clearAll bool, total string, set, unset []string) (core.MonthBudget, error) {
	var b core.MonthBudget
	if !clearAll {
		b, _ = e.svc.Budget(month)
	}
	cats := make(map[string]float64, len(b.Categories)+len(set))
	for k, v := range b.Categories {
		cats[k] = v
	}
	b.Categories = cats

	switch total {
	case "":
	case "none":
		b.Total = nil
	default:
		v, err := strconv.ParseFloat(total, 64)
		if err != nil {
			return b, usageError("-total: %v", err)
		}
		b.Total = &v
	}
	for _, s := range set {
		name, amount, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return b, usageError("-set wants CATEGORY=AMOUNT, got %q", s)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
		if err != nil {
			return b, usageError("-set %s: %v", name, err)
		}
		b.Categories[strings.TrimSpace(name)] = v
	}
	for _, name := range unset {
		delete(b.Categories, name)
	}
	if len(b.Categories) == 0 {
		b.Categories = nil
	}
	return b, nil
}

func printBudget(w io.Writer, r stats.BudgetReport) error {
	lines := r.Lines
	if r.Total != nil {
		lines = append(lines[:len(lines):len(lines)], *r.Total)
	}
	tw := table(w)
	fmt.Fprintln(tw, "BUDGET\tTARGET\tSPENT\tREMAINING\tUSED\t")
	for _, l := range lines {
		note := ""
		if l.Over {
			note = "over"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f%%\t%s\n", l.Category, money(l.Target), money(l.Spent), money(l.Remaining), l.PercentUsed, note)
	}
	return tw.Flush()
}

func cmdRestore(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "restore")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError("exactly one FILE is required")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := e.svc.Restore(ctx, data); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "restored %d months from %s\n", len(e.svc.Months()), fs.Arg(0))
	return nil
}

func cmdReset(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "reset")
	yes := fs.Bool("yes", false, "confirm deleting all stored data")
	if err := parse(fs, args); err != nil {
		return err
	}
	if !*yes {
		return usageError("refusing to reset without -yes")
	}
	if err := e.svc.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "store reset")
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func cmdHistory(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "list":
		fs := newFlagSet(e, "history list")
		asJSON := fs.Bool("json", false, "print JSON")
		if err := parse(fs, args); err != nil {
			return err
		}
		snaps, err := e.svc.History(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(e.stdout, snaps)
		}
		if len(snaps) == 0 {
			fmt.Fprintln(e.stdout, "no archived snapshots")
			return nil
		}
		w := table(e.stdout)
		fmt.Fprintln(w, "ID\tVERSION\tSAVED")
		for _, s := range snaps {
			fmt.Fprintf(w, "%d\t%d\t%s\n", s.ID, s.Version, s.SavedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	case "restore":
		fs := newFlagSet(e, "history restore")
		id := fs.Int64("id", 0, "snapshot `id` (see history list)")
		if err := parse(fs, args); err != nil {
			return err
		}
		if *id <= 0 {
			return usageError("-id is required")
		}
		if err := e.svc.RestoreSnapshot(ctx, *id); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "restored snapshot %d (%d months)\n", *id, len(e.svc.Months()))
		return nil
	default:
		return usageError("unknown history subcommand %q", sub)
	}
}
