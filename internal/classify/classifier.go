// Package classify assigns exactly one category to a transaction.
//
// Stages are evaluated in a fixed order and the first hit wins:
// per-transaction override, unified rules, the curated keyword table, the
// category column of the source CSV, smart heuristics, and finally Others.
package classify

import (
	"math"
	"regexp"
	"strings"

	"budgetdash/internal/core"
	"budgetdash/internal/rules"
)

// Stage identifies which step produced a classification.
type Stage int

const (
	StageOverride Stage = iota + 1
	StageRule
	StageKeyword
	StageSourceCategory
	StageSmart
	StageDefault
)

func (s Stage) String() string {
	switch s {
	case StageOverride:
		return "override"
	case StageRule:
		return "rule"
	case StageKeyword:
		return "keyword"
	case StageSourceCategory:
		return "source_category"
	case StageSmart:
		return "smart"
	case StageDefault:
		return "default"
	}
	return "unknown"
}

// OverrideLookup resolves manual per-transaction categories.
type OverrideLookup interface {
	// Override checks the given month only.
	Override(month core.MonthKey, txID string) (string, bool)
	// AnyOverride searches every month.
	AnyOverride(txID string) (string, bool)
}

// Subject carries everything the stages look at.
type Subject struct {
	Description    string
	TransactionID  string
	Month          core.MonthKey
	Amount         float64
	IsReturn       bool
	SourceCategory string
}

// SubjectOf builds a Subject from a canonical transaction.
func SubjectOf(tx core.Transaction) Subject {
	return Subject{
		Description:    tx.Description,
		TransactionID:  tx.ID,
		Month:          tx.Month(),
		Amount:         tx.Amount,
		IsReturn:       tx.IsReturn,
		SourceCategory: tx.SourceCategory,
	}
}

type Result struct {
	Category string
	Stage    Stage
	// Delete is set when a delete rule matched; Category is empty then.
	Delete bool
	RuleID string
}

// Smart reports whether the result came from the heuristic or default stage.
func (r Result) Smart() bool {
	return r.Stage == StageSmart || r.Stage == StageDefault
}

type Config struct {
	Categories []core.Category
	Rules      *rules.RuleSet
	Overrides  OverrideLookup
	Fallback   []rules.FallbackRule
	GasMinimum float64
}

type keywordEntry struct {
	name     string
	keywords []string
	patterns []*regexp.Regexp
}

type Classifier struct {
	keywords   []keywordEntry
	known      map[string]string // upper name -> configured name
	rules      *rules.RuleSet
	overrides  OverrideLookup
	fallback   []rules.FallbackRule
	gasMinimum float64
}

// New builds a classifier. Keyword entries keep the configured category
// order; Others never takes part in the keyword pass.
func New(cfg Config) *Classifier {
	c := &Classifier{
		known:      make(map[string]string, len(cfg.Categories)),
		rules:      cfg.Rules,
		overrides:  cfg.Overrides,
		fallback:   cfg.Fallback,
		gasMinimum: cfg.GasMinimum,
	}
	if c.fallback == nil {
		c.fallback = rules.DefaultSmartFallback()
	}
	if c.gasMinimum <= 0 {
		c.gasMinimum = rules.DefaultGasMinimum
	}
	for _, cat := range cfg.Categories {
		c.known[strings.ToUpper(cat.Name)] = cat.Name
		if cat.Name == core.OthersCategory {
			continue
		}
		entry := keywordEntry{name: cat.Name}
		for _, kw := range cat.Keywords {
			if kw = strings.ToUpper(kw); strings.TrimSpace(kw) != "" {
				entry.keywords = append(entry.keywords, kw)
			}
		}
		for _, p := range cat.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				continue
			}
			entry.patterns = append(entry.patterns, re)
		}
		c.keywords = append(c.keywords, entry)
	}
	return c
}

// Classify runs the stages in order. Empty descriptions go to Others
// unless an override exists for the transaction.
func (c *Classifier) Classify(s Subject) Result {
	if cat, ok := c.lookupOverride(s); ok {
		return Result{Category: cat, Stage: StageOverride}
	}

	upper := strings.ToUpper(strings.TrimSpace(s.Description))
	if upper == "" {
		return Result{Category: core.OthersCategory, Stage: StageDefault}
	}

	if r, ok := c.rules.Match(upper); ok {
		if r.IsDelete() {
			return Result{Stage: StageRule, Delete: true, RuleID: r.ID}
		}
		return Result{Category: r.Action, Stage: StageRule, RuleID: r.ID}
	}

	if cat, ok := c.matchKeywords(upper); ok {
		return Result{Category: c.redirectGas(cat, s), Stage: StageKeyword}
	}

	if cat, ok := c.known[strings.ToUpper(strings.TrimSpace(s.SourceCategory))]; ok && cat != core.OthersCategory {
		return Result{Category: c.redirectGas(cat, s), Stage: StageSourceCategory}
	}

	if cat, ok := c.matchFallback(upper); ok {
		return Result{Category: c.redirectGas(cat, s), Stage: StageSmart}
	}
	if rules.LooksLikeFood(upper) {
		return Result{Category: rules.CategoryFoodDrink, Stage: StageSmart}
	}
	if rules.LooksLikeGas(upper) {
		return Result{Category: c.redirectGas(rules.CategoryGas, s), Stage: StageSmart}
	}

	return Result{Category: core.OthersCategory, Stage: StageDefault}
}

func (c *Classifier) lookupOverride(s Subject) (string, bool) {
	if c.overrides == nil || s.TransactionID == "" {
		return "", false
	}
	if s.Month != "" {
		if cat, ok := c.overrides.Override(s.Month, s.TransactionID); ok {
			return cat, true
		}
	}
	return c.overrides.AnyOverride(s.TransactionID)
}

func (c *Classifier) matchKeywords(upper string) (string, bool) {
	for _, e := range c.keywords {
		for _, kw := range e.keywords {
			if strings.Contains(upper, kw) {
				return e.name, true
			}
		}
		for _, re := range e.patterns {
			if re.MatchString(upper) {
				return e.name, true
			}
		}
	}
	return "", false
}

func (c *Classifier) matchFallback(upper string) (string, bool) {
	for _, fr := range c.fallback {
		for _, kw := range fr.Keywords {
			if strings.Contains(upper, kw) {
				return fr.Category, true
			}
		}
		for _, re := range fr.Patterns {
			if re.MatchString(upper) {
				return fr.Category, true
			}
		}
	}
	return "", false
}

// redirectGas sends small non-return gas station purchases to Food & Drink.
func (c *Classifier) redirectGas(cat string, s Subject) string {
	if cat != rules.CategoryGas || s.IsReturn {
		return cat
	}
	if math.Abs(s.Amount) < c.gasMinimum {
		return rules.CategoryFoodDrink
	}
	return cat
}
