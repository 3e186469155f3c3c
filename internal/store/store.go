// Package store owns the mutable budget state: transactions, categories,
// rules, overrides, budgets and income settings.
//
// Every mutating call works on a clone of the current document, persists the
// clone as one snapshot and only then swaps it in. A failed save leaves the
// in-memory state untouched.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetdash/internal/core"
	"budgetdash/internal/ingest"
	"budgetdash/internal/rules"
)

var (
	ErrProtectedCategory = errors.New("category cannot be removed")
	errNoChange          = errors.New("no change")
)

type Store struct {
	mu         sync.RWMutex
	doc        *core.Document
	ruleSet    *rules.RuleSet
	persister  Persister
	normalizer *ingest.Normalizer
}

// DefaultDocument is the state of a fresh install.
func DefaultDocument() *core.Document {
	doc := core.NewDocument(rules.DefaultCategories())
	doc.Income = core.IncomeSettings{Patterns: rules.DefaultIncomePatterns()}
	return doc
}

// Open loads the persisted snapshot, or starts from DefaultDocument when
// nothing was saved. An unreadable snapshot returns core.ErrResetRequired.
func Open(ctx context.Context, p Persister) (*Store, error) {
	doc, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = DefaultDocument()
		slog.InfoContext(ctx, "No saved state, starting fresh")
	}
	ensureOthers(doc)
	return &Store{
		doc:        doc,
		ruleSet:    rules.NewRuleSet(doc.Rules),
		persister:  p,
		normalizer: ingest.NewNormalizer(),
	}, nil
}

// Reload replaces the in-memory state with the persisted snapshot. Another
// process sharing the persister uses it to pick up changes.
func (s *Store) Reload(ctx context.Context) error {
	doc, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = DefaultDocument()
	}
	ensureOthers(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.ruleSet = rules.NewRuleSet(doc.Rules)
	return nil
}

// mutate applies fn to a clone, persists it and swaps it in.
func (s *Store) mutate(ctx context.Context, op string, fn func(doc *core.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	if err := s.persister.Save(ctx, next); err != nil {
		slog.ErrorContext(ctx, "Failed to persist snapshot", "operation", op, "error", err)
		return fmt.Errorf("persist %s: %w", op, err)
	}
	s.doc = next
	s.ruleSet = rules.NewRuleSet(next.Rules)
	slog.DebugContext(ctx, "State updated", "operation", op)
	return nil
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() *core.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// RuleSet returns the compiled rules of the current document.
func (s *Store) RuleSet() *rules.RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ruleSet
}

// Override implements classify.OverrideLookup.
func (s *Store) Override(month core.MonthKey, txID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return OverrideTable(s.doc.Overrides).Override(month, txID)
}

// AnyOverride implements classify.OverrideLookup.
func (s *Store) AnyOverride(txID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return OverrideTable(s.doc.Overrides).AnyOverride(txID)
}

// OverrideTable adapts a document's overrides to classify.OverrideLookup
// without holding the store lock.
type OverrideTable map[core.MonthKey]map[string]string

func (t OverrideTable) Override(month core.MonthKey, txID string) (string, bool) {
	cat, ok := t[month][txID]
	return cat, ok
}

func (t OverrideTable) AnyOverride(txID string) (string, bool) {
	for _, byTx := range t {
		if cat, ok := byTx[txID]; ok {
			return cat, true
		}
	}
	return "", false
}

// Months returns bucket keys in ascending order.
func (s *Store) Months() []core.MonthKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.MonthKeys()
}

// Bucket returns a copy of one month bucket.
func (s *Store) Bucket(month core.MonthKey) (core.MonthBucket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.doc.Months[month]
	if !ok || b == nil {
		return core.MonthBucket{}, false
	}
	out := *b
	out.Transactions = append([]core.Transaction(nil), b.Transactions...)
	return out, true
}

// Categories returns the configured categories in priority order.
func (s *Store) Categories() []core.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Category(nil), s.doc.Categories...)
}

// IngestReport is the outcome of importing one export.
type IngestReport struct {
	Source     string          `json:"source"`
	Format     string          `json:"format"`
	Added      int             `json:"added"`
	Duplicates int             `json:"duplicates"`
	Skipped    int             `json:"skipped"`
	Months     []core.MonthKey `json:"months"`
}

// Ingest normalizes rows, merges them into month buckets and persists. The
// document's income settings drive income detection unless hints override
// the patterns.
func (s *Store) Ingest(ctx context.Context, source string, headers []string, rows []ingest.Row, hints ingest.Hints) (IngestReport, error) {
	report := IngestReport{Source: source}
	err := s.mutate(ctx, "ingest", func(doc *core.Document) error {
		hints.IncomeTracking = hints.IncomeTracking || doc.Income.Enabled
		if len(hints.IncomePatterns) == 0 {
			hints.IncomePatterns = doc.Income.Patterns
		}
		res, err := s.normalizer.Normalize(headers, rows, hints, ingest.NewDedupIndex(doc.Months))
		if err != nil {
			return err
		}
		report.Format = res.Format
		report.Added = res.Added()
		report.Duplicates = res.Duplicates
		report.Skipped = res.Skipped

		for _, month := range sortedMonths(res.ByMonth) {
			b := doc.Bucket(month)
			b.Transactions = append(b.Transactions, res.ByMonth[month]...)
			report.Months = append(report.Months, month)
		}
		for month, byTx := range res.Overrides {
			for id, cat := range byTx {
				setOverride(doc, month, id, cat)
			}
		}
		if report.Added == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return IngestReport{Source: source}, err
	}
	slog.InfoContext(ctx, "Export ingested",
		"source", source,
		"format", report.Format,
		"added", report.Added,
		"duplicates", report.Duplicates,
		"skipped", report.Skipped)
	return report, nil
}

// MoveResult reports a manual category move.
type MoveResult struct {
	Transaction core.Transaction `json:"transaction"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	LearnedRule *core.Rule       `json:"learnedRule,omitempty"`
}

// Move assigns a transaction to a category by override and learns an
// automatic rule from its description. from is informational.
func (s *Store) Move(ctx context.Context, month core.MonthKey, txID, from, to string) (MoveResult, error) {
	res := MoveResult{From: from, To: to}
	err := s.mutate(ctx, "move", func(doc *core.Document) error {
		tx, err := requireTransaction(doc, month, txID)
		if err != nil {
			return err
		}
		if err := requireCategory(doc, to); err != nil {
			return err
		}
		res.Transaction = *tx
		setOverride(doc, month, txID, to)
		if r, ok := rules.LearnFromMove(doc.Rules, tx.Description, to); ok {
			doc.Rules = rules.AddLearned(doc.Rules, r)
			res.LearnedRule = &r
		}
		return nil
	})
	if err != nil {
		return MoveResult{}, err
	}
	if res.LearnedRule != nil {
		slog.InfoContext(ctx, "Rule learned from move",
			"pattern", res.LearnedRule.Pattern,
			"category", to,
			"rule_id", res.LearnedRule.ID)
	}
	return res, nil
}

// SetCategory assigns a category by override without learning a rule.
func (s *Store) SetCategory(ctx context.Context, month core.MonthKey, txID, category string) error {
	return s.mutate(ctx, "set_category", func(doc *core.Document) error {
		if _, err := requireTransaction(doc, month, txID); err != nil {
			return err
		}
		if err := requireCategory(doc, category); err != nil {
			return err
		}
		setOverride(doc, month, txID, category)
		return nil
	})
}

// ClearOverride drops a manual category so the transaction is classified
// again.
func (s *Store) ClearOverride(ctx context.Context, month core.MonthKey, txID string) error {
	return s.mutate(ctx, "clear_override", func(doc *core.Document) error {
		if _, ok := doc.Overrides[month][txID]; !ok {
			return errNoChange
		}
		delete(doc.Overrides[month], txID)
		if len(doc.Overrides[month]) == 0 {
			delete(doc.Overrides, month)
		}
		return nil
	})
}

// DeleteTransaction removes a transaction and its override.
func (s *Store) DeleteTransaction(ctx context.Context, month core.MonthKey, txID string) (core.Transaction, error) {
	var removed core.Transaction
	err := s.mutate(ctx, "delete_transaction", func(doc *core.Document) error {
		idx, tx := doc.FindTransaction(month, txID)
		if tx == nil {
			return fmt.Errorf("%w: %s in %s", core.ErrTransactionNotFound, txID, month)
		}
		removed = *tx
		b := doc.Months[month]
		b.Transactions = append(b.Transactions[:idx], b.Transactions[idx+1:]...)
		delete(doc.Overrides[month], txID)
		return nil
	})
	return removed, err
}

// Rules returns a copy of the unified rules in stored order.
func (s *Store) Rules() []core.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Rule(nil), s.doc.Rules...)
}

// AddRule validates and stores a rule. A bad pattern is rejected here so a
// broken rule never reaches classification.
func (s *Store) AddRule(ctx context.Context, r core.Rule) (core.Rule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if _, err := rules.Compile(r); err != nil {
		return core.Rule{}, err
	}
	err := s.mutate(ctx, "add_rule", func(doc *core.Document) error {
		if !r.IsDelete() {
			if err := requireCategory(doc, r.Action); err != nil {
				return err
			}
		}
		doc.Rules = append(doc.Rules, r)
		return nil
	})
	if err != nil {
		return core.Rule{}, err
	}
	return r, nil
}

// UpdateRule replaces a rule with the same ID.
func (s *Store) UpdateRule(ctx context.Context, r core.Rule) error {
	if _, err := rules.Compile(r); err != nil {
		return err
	}
	return s.mutate(ctx, "update_rule", func(doc *core.Document) error {
		if !r.IsDelete() {
			if err := requireCategory(doc, r.Action); err != nil {
				return err
			}
		}
		for i := range doc.Rules {
			if doc.Rules[i].ID == r.ID {
				if r.CreatedAt.IsZero() {
					r.CreatedAt = doc.Rules[i].CreatedAt
				}
				doc.Rules[i] = r
				return nil
			}
		}
		return fmt.Errorf("%w: %s", core.ErrRuleNotFound, r.ID)
	})
}

// SetRuleActive toggles a rule.
func (s *Store) SetRuleActive(ctx context.Context, id string, active bool) error {
	return s.mutate(ctx, "toggle_rule", func(doc *core.Document) error {
		for i := range doc.Rules {
			if doc.Rules[i].ID == id {
				if doc.Rules[i].Active == active {
					return errNoChange
				}
				doc.Rules[i].Active = active
				return nil
			}
		}
		return fmt.Errorf("%w: %s", core.ErrRuleNotFound, id)
	})
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete_rule", func(doc *core.Document) error {
		for i := range doc.Rules {
			if doc.Rules[i].ID == id {
				doc.Rules = append(doc.Rules[:i], doc.Rules[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", core.ErrRuleNotFound, id)
	})
}

// ApplyDeleteRules permanently removes stored transactions matched by an
// active delete rule. Transactions with an override are kept.
func (s *Store) ApplyDeleteRules(ctx context.Context) (int, error) {
	removed := 0
	err := s.mutate(ctx, "apply_delete_rules", func(doc *core.Document) error {
		set := rules.NewRuleSet(doc.Rules)
		for month, b := range doc.Months {
			kept := b.Transactions[:0]
			for _, tx := range b.Transactions {
				if _, ok := doc.Overrides[month][tx.ID]; !ok {
					if r, ok := set.Match(tx.Description); ok && r.IsDelete() {
						removed++
						continue
					}
				}
				kept = append(kept, tx)
			}
			b.Transactions = kept
		}
		if removed == 0 {
			return errNoChange
		}
		return nil
	})
	return removed, err
}

// Budget returns the budget of a month; absent means no limits.
func (s *Store) Budget(month core.MonthKey) (core.MonthBudget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.doc.Budgets[month]
	return b, ok
}

// SetBudget stores a month budget. An empty budget removes it.
func (s *Store) SetBudget(ctx context.Context, month core.MonthKey, b core.MonthBudget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx, "set_budget", func(doc *core.Document) error {
		if b.Total == nil && len(b.Categories) == 0 {
			delete(doc.Budgets, month)
			return nil
		}
		doc.Budgets[month] = b
		return nil
	})
}

// AddCategory inserts a category just before Others.
func (s *Store) AddCategory(ctx context.Context, c core.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("category name is required")
	}
	return s.mutate(ctx, "add_category", func(doc *core.Document) error {
		if _, ok := doc.Category(c.Name); ok {
			return fmt.Errorf("%w: %s", core.ErrCategoryExists, c.Name)
		}
		n := len(doc.Categories)
		if n > 0 && doc.Categories[n-1].Name == core.OthersCategory {
			doc.Categories = append(doc.Categories[:n-1], c, doc.Categories[n-1])
		} else {
			doc.Categories = append(doc.Categories, c)
		}
		return nil
	})
}

// RenameCategory renames a category and every name reference to it in
// rules, overrides and budgets.
func (s *Store) RenameCategory(ctx context.Context, oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("category name is required")
	}
	if oldName == core.OthersCategory {
		return fmt.Errorf("%w: %s", ErrProtectedCategory, oldName)
	}
	return s.mutate(ctx, "rename_category", func(doc *core.Document) error {
		if err := requireCategory(doc, oldName); err != nil {
			return err
		}
		if _, ok := doc.Category(newName); ok {
			return fmt.Errorf("%w: %s", core.ErrCategoryExists, newName)
		}
		for i := range doc.Categories {
			if doc.Categories[i].Name == oldName {
				doc.Categories[i].Name = newName
			}
		}
		for i := range doc.Rules {
			if doc.Rules[i].Action == oldName {
				doc.Rules[i].Action = newName
			}
		}
		for _, byTx := range doc.Overrides {
			for id, cat := range byTx {
				if cat == oldName {
					byTx[id] = newName
				}
			}
		}
		for month, b := range doc.Budgets {
			if v, ok := b.Categories[oldName]; ok {
				delete(b.Categories, oldName)
				b.Categories[newName] = v
				doc.Budgets[month] = b
			}
		}
		return nil
	})
}

// DeleteCategory removes a category together with the rules, overrides and
// budget lines that name it. Others cannot be removed.
func (s *Store) DeleteCategory(ctx context.Context, name string) error {
	if name == core.OthersCategory {
		return fmt.Errorf("%w: %s", ErrProtectedCategory, name)
	}
	return s.mutate(ctx, "delete_category", func(doc *core.Document) error {
		if err := requireCategory(doc, name); err != nil {
			return err
		}
		cats := doc.Categories[:0]
		for _, c := range doc.Categories {
			if c.Name != name {
				cats = append(cats, c)
			}
		}
		doc.Categories = cats

		kept := doc.Rules[:0]
		for _, r := range doc.Rules {
			if r.Action != name {
				kept = append(kept, r)
			}
		}
		doc.Rules = kept

		for _, byTx := range doc.Overrides {
			for id, cat := range byTx {
				if cat == name {
					delete(byTx, id)
				}
			}
		}
		for _, b := range doc.Budgets {
			delete(b.Categories, name)
		}
		return nil
	})
}

// IncomeSettings returns the income tracking configuration.
func (s *Store) IncomeSettings() core.IncomeSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.doc.Income
	out.Patterns = append([]string(nil), out.Patterns...)
	return out
}

// SetIncomeTracking updates income settings. Nil patterns keep the current
// list.
func (s *Store) SetIncomeTracking(ctx context.Context, enabled bool, patterns []string) error {
	return s.mutate(ctx, "set_income_tracking", func(doc *core.Document) error {
		doc.Income.Enabled = enabled
		if patterns != nil {
			doc.Income.Patterns = patterns
		}
		return nil
	})
}

// Export serializes the whole document.
func (s *Store) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.EncodeDocument(s.doc)
}

// Import replaces the state with a previously exported document.
func (s *Store) Import(ctx context.Context, data []byte) error {
	doc, err := core.DecodeDocument(data)
	if err != nil {
		return err
	}
	ensureOthers(doc)
	return s.mutate(ctx, "import", func(next *core.Document) error {
		*next = *doc
		return nil
	})
}

// Reset replaces the state with DefaultDocument.
func (s *Store) Reset(ctx context.Context) error {
	return s.mutate(ctx, "reset", func(next *core.Document) error {
		*next = *DefaultDocument()
		return nil
	})
}

func requireTransaction(doc *core.Document, month core.MonthKey, txID string) (*core.Transaction, error) {
	_, tx := doc.FindTransaction(month, txID)
	if tx == nil {
		return nil, fmt.Errorf("%w: %s in %s", core.ErrTransactionNotFound, txID, month)
	}
	return tx, nil
}

func requireCategory(doc *core.Document, name string) error {
	if _, ok := doc.Category(name); !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownCategory, name)
	}
	return nil
}

func setOverride(doc *core.Document, month core.MonthKey, txID, category string) {
	if doc.Overrides[month] == nil {
		doc.Overrides[month] = make(map[string]string)
	}
	doc.Overrides[month][txID] = category
}

// ensureOthers keeps the catch-all category present and last.
func ensureOthers(doc *core.Document) {
	var others *core.Category
	cats := make([]core.Category, 0, len(doc.Categories)+1)
	for _, c := range doc.Categories {
		if c.Name == core.OthersCategory {
			c := c
			others = &c
			continue
		}
		cats = append(cats, c)
	}
	if others == nil {
		others = &core.Category{Name: core.OthersCategory}
	}
	doc.Categories = append(cats, *others)
}

func sortedMonths(m map[core.MonthKey][]core.Transaction) []core.MonthKey {
	keys := make([]core.MonthKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
