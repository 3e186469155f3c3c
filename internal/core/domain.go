package core

import (
	"errors"
	"strings"
	"time"
)

const (
	// OthersCategory is the catch-all category evaluated last.
	OthersCategory = "Others"
	// IncomeCategory receives income transactions when income tracking is on.
	IncomeCategory = "Income"
)

const (
	MatchContains   MatchType = "contains"
	MatchStartsWith MatchType = "startsWith"
	MatchEndsWith   MatchType = "endsWith"
	MatchExact      MatchType = "exact"
	MatchRegex      MatchType = "regex"
)

type (
	MatchType string

	// Transaction is the canonical record every downstream component works on.
	// Amount is negative for money leaving the account.
	Transaction struct {
		ID             string            `json:"id"`
		Date           Date              `json:"date"`
		Description    string            `json:"description"`
		Amount         float64           `json:"amount"`
		IsIncome       bool              `json:"isIncome"`
		IsReturn       bool              `json:"isReturn,omitempty"`
		SourceCategory string            `json:"sourceCategory,omitempty"`
		Source         string            `json:"source,omitempty"`
		RawSource      map[string]string `json:"rawSource,omitempty"`
	}

	Category struct {
		Name     string   `json:"name"`
		Keywords []string `json:"keywords"`
		Patterns []string `json:"patterns,omitempty"` // regular expressions
		Icon     string   `json:"icon,omitempty"`
		IsIncome bool     `json:"isIncome,omitempty"`
	}

	// Rule either recategorizes (Action is a category name) or deletes
	// (Action is empty) matching transactions.
	Rule struct {
		ID          string    `json:"id"`
		Pattern     string    `json:"pattern"`
		MatchType   MatchType `json:"matchType"`
		Action      string    `json:"action"`
		Active      bool      `json:"active"`
		IsAutomatic bool      `json:"isAutomatic"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	MonthBucket struct {
		Key          MonthKey      `json:"key"`
		Label        string        `json:"label"`
		Transactions []Transaction `json:"transactions"`
	}

	// MonthBudget holds optional targets; a missing category means no limit.
	MonthBudget struct {
		Total      *float64           `json:"total,omitempty"`
		Categories map[string]float64 `json:"categories,omitempty"`
	}

	IncomeSettings struct {
		Enabled  bool     `json:"enabled"`
		Patterns []string `json:"patterns,omitempty"`
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrZeroAmount          = errors.New("zero amount")
	ErrInvalidDate         = errors.New("invalid date")
	ErrEmptyDescription    = errors.New("empty description")
	ErrUnknownCategory     = errors.New("unknown category")
	ErrCategoryExists      = errors.New("category already exists")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrRuleNotFound        = errors.New("rule not found")
	ErrInvalidRule         = errors.New("invalid rule")
	ErrUnrecognizedSchema  = errors.New("unrecognized csv schema")
	ErrResetRequired       = errors.New("stored data is corrupt: reset required")
)

// IsDelete reports whether the rule removes matching transactions.
func (r Rule) IsDelete() bool {
	return strings.TrimSpace(r.Action) == ""
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if t.Amount == 0 {
		return ErrZeroAmount
	}
	return nil
}

// Month returns the bucket key the transaction belongs to.
func (t Transaction) Month() MonthKey {
	return MonthKeyOf(t.Date)
}

// Merchant is the first whitespace-delimited token of the description.
func (t Transaction) Merchant() string {
	fields := strings.Fields(t.Description)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func (r Rule) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return errors.New("rule pattern cannot be empty")
	}
	switch r.MatchType {
	case MatchContains, MatchStartsWith, MatchEndsWith, MatchExact, MatchRegex:
	default:
		return errors.New("invalid match type: " + string(r.MatchType))
	}
	return nil
}

// Validate rejects negative targets.
func (b MonthBudget) Validate() error {
	if b.Total != nil && *b.Total < 0 {
		return errors.New("budget total cannot be negative")
	}
	for name, v := range b.Categories {
		if v < 0 {
			return errors.New("budget for " + name + " cannot be negative")
		}
	}
	return nil
}
