// Package ingest turns bank CSV exports into canonical transactions.
//
// This file holds the bank format registry. Each format declares the
// columns that identify it and how its amounts are signed; DetectFormat picks
// the first registered format whose identifying columns are all present and
// falls back to alias resolution for unknown exports.
package ingest

import (
	"fmt"
	"strings"
	"sync"

	"budgetdash/internal/core"
)

// SignConvention describes how a format encodes spending.
type SignConvention int

const (
	// ExpensesNegative keeps amounts as-is (the internal convention).
	ExpensesNegative SignConvention = iota
	// ExpensesPositive negates amounts so spending becomes negative.
	ExpensesPositive
	// SplitDebitCredit reads spending from a debit column and refunds
	// from a credit column, both written as positive numbers.
	SplitDebitCredit
)

func (s SignConvention) String() string {
	switch s {
	case ExpensesNegative:
		return "expenses_negative"
	case ExpensesPositive:
		return "expenses_positive"
	case SplitDebitCredit:
		return "split_debit_credit"
	}
	return "unknown"
}

// Format describes one bank export layout.
type Format struct {
	Name string
	// Detect lists the headers that must all be present for this format.
	Detect             []string
	DateColumns        []string
	DescriptionColumns []string
	AmountColumn       string
	DebitColumn        string
	CreditColumn       string
	CategoryColumn     string
	TypeColumn         string
	Sign               SignConvention
	// IncomeTypes are Type column values that flag income.
	IncomeTypes []string
	// ReturnTypes are Type column values that flag a refund.
	ReturnTypes []string
}

// ColumnMapping is the result of an interactive column-mapping step for an
// export no registered format recognizes.
type ColumnMapping struct {
	Date        string
	Description string
	Amount      string
	Debit       string
	Credit      string
	Category    string
	Type        string
	Sign        SignConvention
}

// Format converts the mapping into an ad-hoc format.
func (m ColumnMapping) Format() Format {
	f := Format{
		Name:               "mapped",
		DateColumns:        []string{m.Date},
		DescriptionColumns: []string{m.Description},
		AmountColumn:       m.Amount,
		DebitColumn:        m.Debit,
		CreditColumn:       m.Credit,
		CategoryColumn:     m.Category,
		TypeColumn:         m.Type,
		Sign:               m.Sign,
		ReturnTypes:        defaultReturnTypes,
	}
	if m.Amount == "" && (m.Debit != "" || m.Credit != "") {
		f.Sign = SplitDebitCredit
	}
	return f
}

// Validate checks that the mapping names the required columns.
func (m ColumnMapping) Validate() error {
	var missing []string
	if strings.TrimSpace(m.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(m.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(m.Amount) == "" && strings.TrimSpace(m.Debit) == "" && strings.TrimSpace(m.Credit) == "" {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return fmt.Errorf("column mapping missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// GenericFormat is the name reported for alias-resolved exports.
const GenericFormat = "generic"

// Column aliases tried in order when no registered format matches.
var (
	dateAliases        = []string{"Transaction Date", "Posting Date", "Post Date", "Date", "date", "Trans Date", "Trans. Date", "Posted Date"}
	amountAliases      = []string{"Amount", "amount"}
	descriptionAliases = []string{"Description", "description", "original_name", "nickname", "Payee", "Memo"}
	categoryAliases    = []string{"Category", "category"}
	typeAliases        = []string{"Type", "type", "Transaction Type"}
	defaultReturnTypes = []string{"Return", "Refund"}
)

var (
	formatsMu sync.RWMutex
	formats   []Format
)

func init() {
	for _, f := range builtinFormats() {
		RegisterFormat(f)
	}
}

func builtinFormats() []Format {
	return []Format{
		{
			Name:               "capitalone",
			Detect:             []string{"Transaction Date", "Description", "Debit", "Credit"},
			DateColumns:        []string{"Transaction Date", "Posted Date"},
			DescriptionColumns: []string{"Description"},
			DebitColumn:        "Debit",
			CreditColumn:       "Credit",
			CategoryColumn:     "Category",
			Sign:               SplitDebitCredit,
		},
		{
			Name:               "chase",
			Detect:             []string{"Transaction Date", "Post Date", "Description", "Amount", "Type"},
			DateColumns:        []string{"Transaction Date", "Post Date"},
			DescriptionColumns: []string{"Description"},
			AmountColumn:       "Amount",
			CategoryColumn:     "Category",
			TypeColumn:         "Type",
			Sign:               ExpensesNegative,
			ReturnTypes:        defaultReturnTypes,
		},
		{
			Name:               "discover",
			Detect:             []string{"Trans. Date", "Post Date", "Description", "Amount"},
			DateColumns:        []string{"Trans. Date", "Post Date"},
			DescriptionColumns: []string{"Description"},
			AmountColumn:       "Amount",
			CategoryColumn:     "Category",
			Sign:               ExpensesPositive,
		},
		{
			Name:               "amex",
			Detect:             []string{"Date", "Description", "Card Member", "Amount"},
			DateColumns:        []string{"Date"},
			DescriptionColumns: []string{"Description"},
			AmountColumn:       "Amount",
			CategoryColumn:     "Category",
			Sign:               ExpensesPositive,
		},
		{
			Name:               "app-export",
			Detect:             []string{"date", "amount", "type"},
			DateColumns:        []string{"date"},
			DescriptionColumns: []string{"original_name", "nickname", "description"},
			AmountColumn:       "amount",
			CategoryColumn:     "category",
			TypeColumn:         "type",
			Sign:               ExpensesPositive,
			IncomeTypes:        []string{"income"},
			ReturnTypes:        []string{"refund", "return"},
		},
	}
}

// RegisterFormat adds a format or replaces one with the same name. New
// formats are tried after the ones already registered.
func RegisterFormat(f Format) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	for i := range formats {
		if formats[i].Name == f.Name {
			formats[i] = f
			return
		}
	}
	formats = append(formats, f)
}

// LookupFormat returns a registered format by name.
func LookupFormat(name string) (Format, error) {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	for _, f := range formats {
		if f.Name == name {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("unknown format: %s", name)
}

// Formats lists registered format names in detection order.
func Formats() []string {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, f.Name)
	}
	return names
}

// DetectFormat resolves the layout of an export from its header row.
func DetectFormat(headers []string) (Format, error) {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	formatsMu.RLock()
	for _, f := range formats {
		if len(f.Detect) > 0 && hasAll(present, f.Detect) {
			formatsMu.RUnlock()
			return f, nil
		}
	}
	formatsMu.RUnlock()

	return genericFormat(present)
}

func genericFormat(present map[string]bool) (Format, error) {
	f := Format{
		Name:           GenericFormat,
		Sign:           ExpensesNegative,
		CategoryColumn: firstPresent(present, categoryAliases),
		TypeColumn:     firstPresent(present, typeAliases),
		ReturnTypes:    defaultReturnTypes,
	}
	for _, a := range dateAliases {
		if present[a] {
			f.DateColumns = append(f.DateColumns, a)
		}
	}
	for _, a := range descriptionAliases {
		if present[a] {
			f.DescriptionColumns = append(f.DescriptionColumns, a)
		}
	}
	f.AmountColumn = firstPresent(present, amountAliases)
	if f.AmountColumn == "" && (present["Debit"] || present["Credit"]) {
		f.Sign = SplitDebitCredit
		if present["Debit"] {
			f.DebitColumn = "Debit"
		}
		if present["Credit"] {
			f.CreditColumn = "Credit"
		}
	}

	var missing []string
	if len(f.DateColumns) == 0 {
		missing = append(missing, "date")
	}
	if len(f.DescriptionColumns) == 0 {
		missing = append(missing, "description")
	}
	if f.AmountColumn == "" && f.Sign != SplitDebitCredit {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return Format{}, fmt.Errorf("%w: no %s column", core.ErrUnrecognizedSchema, strings.Join(missing, ", "))
	}
	return f, nil
}

func hasAll(present map[string]bool, cols []string) bool {
	for _, c := range cols {
		if !present[c] {
			return false
		}
	}
	return true
}

func firstPresent(present map[string]bool, aliases []string) string {
	for _, a := range aliases {
		if present[a] {
			return a
		}
	}
	return ""
}
