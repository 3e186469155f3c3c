package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync/atomic"

	"budgetdash/internal/aggregate"
	"budgetdash/internal/amqp"
	"budgetdash/internal/cache"
	"budgetdash/internal/classify"
	"budgetdash/internal/core"
	"budgetdash/internal/ingest"
	"budgetdash/internal/rules"
	"budgetdash/internal/stats"
	"budgetdash/internal/store"
)

var ErrMonthNotFound = errors.New("month not found")

// ChangePublisher announces persisted changes to other processes.
type ChangePublisher interface {
	PublishStoreChanged(ctx context.Context, msg *amqp.StoreChangedMessage) error
}

type Options struct {
	// GasMinimum is the Gas redirect threshold; zero uses the default.
	GasMinimum float64
	// Publisher may be nil; notifications are then skipped.
	Publisher ChangePublisher
	// Views caches dashboards between mutations; nil disables caching.
	Views cache.Cache[*Dashboard]
}

// BudgetService runs user actions against the store and derives the
// dashboard views from its snapshots.
type BudgetService struct {
	store      *store.Store
	publisher  ChangePublisher
	gasMinimum float64
	views      cache.Cache[*Dashboard]
	generation atomic.Uint64
}

func NewBudgetService(st *store.Store, opts Options) *BudgetService {
	return &BudgetService{
		store:      st,
		publisher:  opts.Publisher,
		gasMinimum: opts.GasMinimum,
		views:      opts.Views,
	}
}

// Dashboard is everything rendered for one window. Cached dashboards are
// shared; callers must not modify them.
type Dashboard struct {
	Window  Window              `json:"window"`
	Label   string              `json:"label"`
	View    aggregate.View      `json:"view"`
	Summary stats.Summary       `json:"summary"`
	Budget  *stats.BudgetReport `json:"budget,omitempty"`
}

// Spending is the total excluding income categories.
func (d *Dashboard) Spending() float64 {
	return core.Round2(d.View.TotalExpenses - d.View.TotalIncome)
}

func (s *BudgetService) classifier(doc *core.Document) *classify.Classifier {
	return classify.New(classify.Config{
		Categories: doc.Categories,
		Rules:      rules.NewRuleSet(doc.Rules),
		Overrides:  store.OverrideTable(doc.Overrides),
		GasMinimum: s.gasMinimum,
	})
}

func incomeCategories(cats []core.Category) map[string]bool {
	out := make(map[string]bool)
	for _, c := range cats {
		if c.IsIncome {
			out[c.Name] = true
		}
	}
	return out
}

func (s *BudgetService) build(doc *core.Document, w Window) *Dashboard {
	agg := aggregate.New(s.classifier(doc), doc.Categories)
	return s.dashboard(doc, w, agg.Aggregate(w.transactions(doc)))
}

// dashboard derives the summary and budget status of a view.
func (s *BudgetService) dashboard(doc *core.Document, w Window, view aggregate.View) *Dashboard {
	d := &Dashboard{
		Window:  w,
		Label:   w.Label(),
		View:    view,
		Summary: stats.Summarize(view, incomeCategories(doc.Categories)),
	}
	if w.IsMonth() {
		if b, ok := doc.Budgets[w.Month]; ok {
			r := stats.BudgetStatus(w.Month, view.CategoryTotals, d.Spending(), b)
			d.Budget = &r
		}
	}
	return d
}

// View returns the dashboard of a window, from the cache when the state
// has not changed since it was built.
func (s *BudgetService) View(ctx context.Context, w Window) (*Dashboard, error) {
	gen := s.generation.Load()
	key := viewKey(gen, w)
	if s.views != nil {
		if d, ok := s.views.Get(key); ok {
			return d, nil
		}
	}

	doc := s.store.Snapshot()
	if w.IsMonth() {
		if _, ok := doc.Months[w.Month]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMonthNotFound, w.Month)
		}
	}
	d := s.build(doc, w)
	if s.views != nil {
		s.views.Set(key, d)
	}
	slog.DebugContext(ctx, "Dashboard built",
		"window", w.Key(),
		"transactions", d.View.TransactionCount,
		"smart_categorized", d.View.SmartCategorized)
	return d, nil
}

func viewKey(gen uint64, w Window) string {
	return fmt.Sprintf("%d|%s", gen, w.Key())
}

// patchMonth carries a month dashboard cached before a mutation over to
// the current generation by applying the mutation to a copy of its view.
// Nothing is cached when the month was not cached, another mutation came
// in between, or the patch fails; the next read then rebuilds it.
func (s *BudgetService) patchMonth(ctx context.Context, before uint64, month core.MonthKey, patch func(*aggregate.View) error) {
	if s.views == nil {
		return
	}
	w := MonthWindow(month)
	old, ok := s.views.Get(viewKey(before, w))
	if !ok {
		return
	}
	now := s.generation.Load()
	if now != before+1 {
		return
	}
	view := old.View.Clone()
	if err := patch(&view); err != nil {
		slog.DebugContext(ctx, "Cached view not patched", "window", w.Key(), "error", err)
		return
	}
	s.views.Set(viewKey(now, w), s.dashboard(s.store.Snapshot(), w, view))
	slog.DebugContext(ctx, "Cached view patched", "window", w.Key())
}

func (s *BudgetService) MonthView(ctx context.Context, month core.MonthKey) (*Dashboard, error) {
	if month == "" {
		return nil, fmt.Errorf("%w: empty month key", ErrMonthNotFound)
	}
	return s.View(ctx, MonthWindow(month))
}

func (s *BudgetService) RangeView(ctx context.Context, from, to core.Date) (*Dashboard, error) {
	return s.View(ctx, RangeWindow(from, to))
}

func (s *BudgetService) AllView(ctx context.Context) (*Dashboard, error) {
	return s.View(ctx, AllWindow())
}

func (s *BudgetService) MonthSummary(ctx context.Context, month core.MonthKey) (stats.Summary, error) {
	d, err := s.MonthView(ctx, month)
	if err != nil {
		return stats.Summary{}, err
	}
	return d.Summary, nil
}

// CategoryAnalysis runs the deep-dive statistics for one category over a
// window.
func (s *BudgetService) CategoryAnalysis(ctx context.Context, w Window, category string) (stats.CategoryAnalysis, error) {
	if _, ok := s.store.Snapshot().Category(category); !ok {
		return stats.CategoryAnalysis{}, fmt.Errorf("%w: %s", core.ErrUnknownCategory, category)
	}
	d, err := s.View(ctx, w)
	if err != nil {
		return stats.CategoryAnalysis{}, err
	}
	return stats.AnalyzeCategory(category, d.View.CategoryDetails[category]), nil
}

// TrendsReport is the cross-month view.
type TrendsReport struct {
	Months     []stats.MonthTotals   `json:"months"`
	Categories []stats.CategoryTrend `json:"categories"`
	Overall    stats.Trend           `json:"overall"`
	Volatility stats.Volatility      `json:"volatility"`
}

// Trends builds one MonthTotals point per stored month, oldest first.
func (s *BudgetService) Trends(ctx context.Context) (TrendsReport, error) {
	series, err := s.MonthSeries(ctx)
	if err != nil {
		return TrendsReport{}, err
	}
	totals := make([]float64, len(series))
	for i, m := range series {
		totals[i] = m.Total
	}
	return TrendsReport{
		Months:     series,
		Categories: stats.CategoryTrends(series),
		Overall:    stats.OverallTrend(series),
		Volatility: stats.ComputeVolatility(totals),
	}, nil
}

// MonthSeries returns per-month category totals and spending, oldest first.
func (s *BudgetService) MonthSeries(ctx context.Context) ([]stats.MonthTotals, error) {
	months := s.store.Months()
	series := make([]stats.MonthTotals, 0, len(months))
	for _, m := range months {
		d, err := s.MonthView(ctx, m)
		if errors.Is(err, ErrMonthNotFound) {
			// Removed concurrently.
			continue
		}
		if err != nil {
			return nil, err
		}
		series = append(series, stats.MonthTotals{
			Month:  m,
			Label:  d.Label,
			Totals: d.View.CategoryTotals,
			Total:  d.Spending(),
		})
	}
	return series, nil
}

// CompareReport is a month-over-month comparison.
type CompareReport struct {
	Current       core.MonthKey      `json:"current"`
	Previous      core.MonthKey      `json:"previous"`
	CurrentTotal  float64            `json:"currentTotal"`
	PreviousTotal float64            `json:"previousTotal"`
	Change        float64            `json:"change"`
	PercentChange float64            `json:"percentChange"`
	Categories    []stats.Comparison `json:"categories"`
}

// Compare compares current with previous, which defaults to the calendar
// month before current. A missing previous month compares against zero.
func (s *BudgetService) Compare(ctx context.Context, current, previous core.MonthKey) (CompareReport, error) {
	if previous == "" {
		previous = current.Previous()
	}
	cur, err := s.MonthView(ctx, current)
	if err != nil {
		return CompareReport{}, err
	}

	prevTotals := map[string]float64{}
	prevSpending := 0.0
	prev, err := s.MonthView(ctx, previous)
	switch {
	case err == nil:
		prevTotals = prev.View.CategoryTotals
		prevSpending = prev.Spending()
	case !errors.Is(err, ErrMonthNotFound):
		return CompareReport{}, err
	}

	return CompareReport{
		Current:       current,
		Previous:      previous,
		CurrentTotal:  cur.Spending(),
		PreviousTotal: prevSpending,
		Change:        core.Round2(cur.Spending() - prevSpending),
		PercentChange: stats.PercentChange(cur.Spending(), prevSpending),
		Categories:    stats.CompareMonths(cur.View.CategoryTotals, prevTotals),
	}, nil
}

// BudgetReport compares a month's budget with its spending. A month with
// no transactions reports zero spending on every line.
func (s *BudgetService) BudgetReport(ctx context.Context, month core.MonthKey) (stats.BudgetReport, error) {
	b, _ := s.store.Budget(month)
	d, err := s.MonthView(ctx, month)
	if errors.Is(err, ErrMonthNotFound) {
		return stats.BudgetStatus(month, nil, 0, b), nil
	}
	if err != nil {
		return stats.BudgetReport{}, err
	}
	return stats.BudgetStatus(month, d.View.CategoryTotals, d.Spending(), b), nil
}

// Read-through accessors.

func (s *BudgetService) Months() []core.MonthKey { return s.store.Months() }
func (s *BudgetService) Rules() []core.Rule { return s.store.Rules() }
func (s *BudgetService) Categories() []core.Category { return s.store.Categories() }
func (s *BudgetService) IncomeSettings() core.IncomeSettings { return s.store.IncomeSettings() }
func (s *BudgetService) Export() ([]byte, error) { return s.store.Export() }

func (s *BudgetService) Budget(month core.MonthKey) (core.MonthBudget, bool) {
	return s.store.Budget(month)
}

func (s *BudgetService) Bucket(month core.MonthKey) (core.MonthBucket, bool) {
	return s.store.Bucket(month)
}

// Explain reports which stage classifies a stored transaction.
func (s *BudgetService) Explain(month core.MonthKey, txID string) (classify.Result, error) {
	doc := s.store.Snapshot()
	_, tx := doc.FindTransaction(month, txID)
	if tx == nil {
		return classify.Result{}, fmt.Errorf("%w: %s in %s", core.ErrTransactionNotFound, txID, month)
	}
	return s.classifier(doc).Classify(classify.SubjectOf(*tx)), nil
}

// ImportResult reports one imported file. Err is set when the file could
// not be ingested; other files are still imported.
type ImportResult struct {
	store.IngestReport
	Err error `json:"-"`
}

// ImportFiles reads the files concurrently and ingests them in order.
func (s *BudgetService) ImportFiles(ctx context.Context, paths []string, hints ingest.Hints) ([]ImportResult, error) {
	files, err := ingest.ReadFiles(ctx, paths)
	if err != nil {
		return nil, err
	}

	results := make([]ImportResult, 0, len(files))
	var months []core.MonthKey
	for _, f := range files {
		rep, err := s.store.Ingest(ctx, filepath.Base(f.Path), f.Headers, f.Rows, hints)
		if err != nil {
			slog.WarnContext(ctx, "File not imported", "path", f.Path, "error", err)
			results = append(results, ImportResult{IngestReport: store.IngestReport{Source: filepath.Base(f.Path)}, Err: err})
			continue
		}
		results = append(results, ImportResult{IngestReport: rep})
		if rep.Added > 0 {
			months = append(months, rep.Months...)
		}
	}
	if len(months) > 0 {
		s.changed(ctx, "ingest", months...)
	}
	return results, nil
}

// ImportReader ingests one CSV stream, such as an uploaded file.
func (s *BudgetService) ImportReader(ctx context.Context, source string, r io.Reader, hints ingest.Hints) (store.IngestReport, error) {
	headers, rows, err := ingest.ReadCSV(r)
	if err != nil {
		return store.IngestReport{}, fmt.Errorf("read %s: %w", source, err)
	}
	rep, err := s.store.Ingest(ctx, source, headers, rows, hints)
	if err != nil {
		return store.IngestReport{}, err
	}
	if rep.Added > 0 {
		s.changed(ctx, "ingest", rep.Months...)
	}
	return rep, nil
}

// Move assigns a transaction to a category and learns a rule from it.
// Without a new rule only the month changes, and its cached dashboard is
// patched in place of a rebuild.
func (s *BudgetService) Move(ctx context.Context, month core.MonthKey, txID, from, to string) (store.MoveResult, error) {
	before := s.generation.Load()
	res, err := s.store.Move(ctx, month, txID, from, to)
	if err != nil {
		return store.MoveResult{}, err
	}
	if res.LearnedRule != nil {
		// A new rule can reclassify other months too.
		s.changed(ctx, "move")
		return res, nil
	}
	s.changed(ctx, "move", month)
	s.patchMonth(ctx, before, month, func(v *aggregate.View) error {
		cat, ok := v.CategoryOf(txID)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrTransactionNotFound, txID)
		}
		_, err := v.Move(txID, cat, to)
		return err
	})
	return res, nil
}

func (s *BudgetService) SetCategory(ctx context.Context, month core.MonthKey, txID, category string) error {
	if err := s.store.SetCategory(ctx, month, txID, category); err != nil {
		return err
	}
	s.changed(ctx, "set_category", month)
	return nil
}

func (s *BudgetService) ClearOverride(ctx context.Context, month core.MonthKey, txID string) error {
	if err := s.store.ClearOverride(ctx, month, txID); err != nil {
		return err
	}
	s.changed(ctx, "clear_override", month)
	return nil
}

func (s *BudgetService) DeleteTransaction(ctx context.Context, month core.MonthKey, txID string) (core.Transaction, error) {
	before := s.generation.Load()
	tx, err := s.store.DeleteTransaction(ctx, month, txID)
	if err != nil {
		return core.Transaction{}, err
	}
	s.changed(ctx, "delete_transaction", month)
	s.patchMonth(ctx, before, month, func(v *aggregate.View) error {
		cat, ok := v.CategoryOf(txID)
		if !ok {
			// Already left out by a delete rule.
			return nil
		}
		_, err := v.Delete(txID, cat)
		return err
	})
	return tx, nil
}

func (s *BudgetService) AddRule(ctx context.Context, r core.Rule) (core.Rule, error) {
	r, err := s.store.AddRule(ctx, r)
	if err != nil {
		return core.Rule{}, err
	}
	s.changed(ctx, "add_rule")
	return r, nil
}

func (s *BudgetService) UpdateRule(ctx context.Context, r core.Rule) error {
	if err := s.store.UpdateRule(ctx, r); err != nil {
		return err
	}
	s.changed(ctx, "update_rule")
	return nil
}

func (s *BudgetService) SetRuleActive(ctx context.Context, id string, active bool) error {
	if err := s.store.SetRuleActive(ctx, id, active); err != nil {
		return err
	}
	s.changed(ctx, "toggle_rule")
	return nil
}

func (s *BudgetService) DeleteRule(ctx context.Context, id string) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, "delete_rule")
	return nil
}

func (s *BudgetService) ApplyDeleteRules(ctx context.Context) (int, error) {
	n, err := s.store.ApplyDeleteRules(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.changed(ctx, "apply_delete_rules")
	}
	return n, nil
}

func (s *BudgetService) SetBudget(ctx context.Context, month core.MonthKey, b core.MonthBudget) error {
	if err := s.store.SetBudget(ctx, month, b); err != nil {
		return err
	}
	s.changed(ctx, "set_budget", month)
	return nil
}

func (s *BudgetService) AddCategory(ctx context.Context, c core.Category) error {
	if err := s.store.AddCategory(ctx, c); err != nil {
		return err
	}
	s.changed(ctx, "add_category")
	return nil
}

func (s *BudgetService) RenameCategory(ctx context.Context, oldName, newName string) error {
	if err := s.store.RenameCategory(ctx, oldName, newName); err != nil {
		return err
	}
	s.changed(ctx, "rename_category")
	return nil
}

func (s *BudgetService) DeleteCategory(ctx context.Context, name string) error {
	if err := s.store.DeleteCategory(ctx, name); err != nil {
		return err
	}
	s.changed(ctx, "delete_category")
	return nil
}

func (s *BudgetService) SetIncomeTracking(ctx context.Context, enabled bool, patterns []string) error {
	if err := s.store.SetIncomeTracking(ctx, enabled, patterns); err != nil {
		return err
	}
	s.changed(ctx, "set_income_tracking")
	return nil
}

// Restore replaces the state with an exported document.
func (s *BudgetService) Restore(ctx context.Context, data []byte) error {
	if err := s.store.Import(ctx, data); err != nil {
		return err
	}
	s.changed(ctx, "restore")
	return nil
}

// History lists archived snapshots when the backend keeps them.
func (s *BudgetService) History(ctx context.Context) ([]store.SnapshotInfo, error) {
	return s.store.History(ctx)
}

// RestoreSnapshot rolls the state back to an archived snapshot.
func (s *BudgetService) RestoreSnapshot(ctx context.Context, id int64) error {
	if err := s.store.RestoreSnapshot(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, "restore")
	return nil
}

func (s *BudgetService) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	s.changed(ctx, "reset")
	return nil
}

// Reload picks up a snapshot written by another process.
func (s *BudgetService) Reload(ctx context.Context) error {
	if err := s.store.Reload(ctx); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *BudgetService) invalidate(ctx context.Context) {
	s.generation.Add(1)
	if s.views != nil {
		if n := s.views.Purge(); n > 0 {
			slog.DebugContext(ctx, "View cache invalidated", "entries", n)
		}
	}
}

// changed invalidates cached views and publishes a notification. A failed
// publish is logged; the change is already persisted.
func (s *BudgetService) changed(ctx context.Context, action string, months ...core.MonthKey) {
	s.invalidate(ctx)

	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping change notification", "action", action)
		return
	}
	if err := s.publisher.PublishStoreChanged(ctx, amqp.NewStoreChangedMessage(action, monthStrings(months))); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change notification", "action", action, "error", err)
	}
}

func monthStrings(months []core.MonthKey) []string {
	if len(months) == 0 {
		return nil
	}
	seen := make(map[core.MonthKey]bool, len(months))
	out := make([]string, 0, len(months))
	for _, m := range months {
		if !seen[m] {
			seen[m] = true
			out = append(out, string(m))
		}
	}
	sort.Strings(out)
	return out
}
