package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"budgetdash/internal/core"
	"budgetdash/internal/rules"
)

// paymentConfirmation marks card autopay rows, which are not spending.
const paymentConfirmation = "payment thank"

// Hints steer normalization of one export.
type Hints struct {
	// Format forces a registered format by name; empty means detect.
	Format string
	// Mapping, when set, bypasses detection entirely.
	Mapping        *ColumnMapping
	IncomeTracking bool
	// IncomePatterns defaults to rules.DefaultIncomePatterns when empty.
	IncomePatterns []string
}

// Result reports the outcome of one Normalize call.
type Result struct {
	Format     string
	Accepted   []core.Transaction
	Duplicates int
	Skipped    int
	ByMonth    map[core.MonthKey][]core.Transaction
	// Overrides assigns income transactions to the Income category when
	// income tracking is enabled.
	Overrides map[core.MonthKey]map[string]string
}

// Added is the number of accepted transactions.
func (r Result) Added() int { return len(r.Accepted) }

// DedupIndex answers whether an equivalent transaction is already stored.
// Equivalence is calendar date, trimmed case-insensitive description and
// amount within 0.01.
type DedupIndex struct {
	seen map[string][]float64
}

// NewDedupIndex indexes the transactions already held in buckets.
func NewDedupIndex(buckets map[core.MonthKey]*core.MonthBucket) *DedupIndex {
	idx := &DedupIndex{seen: make(map[string][]float64)}
	for _, b := range buckets {
		if b == nil {
			continue
		}
		for _, tx := range b.Transactions {
			idx.Add(tx)
		}
	}
	return idx
}

// Add records a transaction.
func (d *DedupIndex) Add(tx core.Transaction) {
	k := dedupKey(tx)
	d.seen[k] = append(d.seen[k], tx.Amount)
}

// Contains reports whether an equivalent transaction was recorded.
func (d *DedupIndex) Contains(tx core.Transaction) bool {
	if d == nil {
		return false
	}
	for _, amt := range d.seen[dedupKey(tx)] {
		if core.ApproxEqual(amt, tx.Amount) {
			return true
		}
	}
	return false
}

func dedupKey(tx core.Transaction) string {
	return tx.Date.String() + "|" + strings.ToLower(strings.TrimSpace(tx.Description))
}

// Normalizer maps rows of a bank export onto canonical transactions.
type Normalizer struct {
	newID func() string
}

func NewNormalizer() *Normalizer {
	return &Normalizer{newID: uuid.NewString}
}

// ResolveFormat picks the format for an export: explicit mapping, then a
// named format, then header detection.
func ResolveFormat(headers []string, hints Hints) (Format, error) {
	if hints.Mapping != nil {
		if err := hints.Mapping.Validate(); err != nil {
			return Format{}, fmt.Errorf("%w: %v", core.ErrUnrecognizedSchema, err)
		}
		return hints.Mapping.Format(), nil
	}
	if hints.Format != "" {
		return LookupFormat(hints.Format)
	}
	return DetectFormat(headers)
}

// Normalize converts rows into transactions. Malformed rows are counted as
// skipped. A row equivalent to one in existing, or to a row accepted
// earlier in the same batch, is counted as a duplicate. existing may be nil.
func (n *Normalizer) Normalize(headers []string, rows []Row, hints Hints, existing *DedupIndex) (Result, error) {
	format, err := ResolveFormat(headers, hints)
	if err != nil {
		return Result{}, err
	}

	patterns := hints.IncomePatterns
	if len(patterns) == 0 {
		patterns = rules.DefaultIncomePatterns()
	}
	upperPatterns := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			upperPatterns = append(upperPatterns, p)
		}
	}

	res := Result{
		Format:  format.Name,
		ByMonth: make(map[core.MonthKey][]core.Transaction),
	}
	batch := NewDedupIndex(nil)
	for i, row := range rows {
		tx, err := n.normalizeRow(format, row, upperPatterns)
		if err != nil {
			slog.Debug("Row skipped", "row", i+1, "format", format.Name, "error", err)
			res.Skipped++
			continue
		}
		if existing.Contains(tx) || batch.Contains(tx) {
			res.Duplicates++
			continue
		}
		batch.Add(tx)
		month := tx.Month()
		res.Accepted = append(res.Accepted, tx)
		res.ByMonth[month] = append(res.ByMonth[month], tx)
		if hints.IncomeTracking && tx.IsIncome {
			if res.Overrides == nil {
				res.Overrides = make(map[core.MonthKey]map[string]string)
			}
			if res.Overrides[month] == nil {
				res.Overrides[month] = make(map[string]string)
			}
			res.Overrides[month][tx.ID] = core.IncomeCategory
		}
	}
	return res, nil
}

func (n *Normalizer) normalizeRow(f Format, row Row, incomePatterns []string) (core.Transaction, error) {
	desc := firstValue(row, f.DescriptionColumns)
	if desc == "" {
		return core.Transaction{}, core.ErrEmptyDescription
	}
	if strings.Contains(strings.ToLower(desc), paymentConfirmation) {
		return core.Transaction{}, fmt.Errorf("payment confirmation row")
	}

	rawDate := firstValue(row, f.DateColumns)
	if rawDate == "" {
		return core.Transaction{}, fmt.Errorf("%w: missing", core.ErrInvalidDate)
	}
	date, err := core.ParseDate(rawDate)
	if err != nil {
		return core.Transaction{}, err
	}

	amount, err := signedAmount(f, row)
	if err != nil {
		return core.Transaction{}, err
	}

	var txType string
	if f.TypeColumn != "" {
		txType = strings.TrimSpace(row[f.TypeColumn])
	}
	isReturn := matchesAny(txType, f.ReturnTypes)
	isIncome := matchesAny(txType, f.IncomeTypes) || containsAny(strings.ToUpper(desc), incomePatterns)

	var sourceCategory string
	if f.CategoryColumn != "" {
		sourceCategory = strings.TrimSpace(row[f.CategoryColumn])
	}

	raw := make(map[string]string, len(row))
	for k, v := range row {
		raw[k] = v
	}

	return core.Transaction{
		ID:             n.newID(),
		Date:           date,
		Description:    desc,
		Amount:         amount,
		IsIncome:       isIncome,
		IsReturn:       isReturn,
		SourceCategory: sourceCategory,
		Source:         f.Name,
		RawSource:      raw,
	}, nil
}

// signedAmount applies the format's sign convention so spending is negative.
func signedAmount(f Format, row Row) (float64, error) {
	switch f.Sign {
	case SplitDebitCredit:
		debit, derr := optionalAmount(row, f.DebitColumn)
		credit, cerr := optionalAmount(row, f.CreditColumn)
		if derr != nil {
			return 0, derr
		}
		if cerr != nil {
			return 0, cerr
		}
		amount := core.Round2(math.Abs(credit) - math.Abs(debit))
		if amount == 0 {
			return 0, core.ErrZeroAmount
		}
		return amount, nil
	case ExpensesPositive:
		v, err := core.ParseAmount(row[f.AmountColumn])
		if err != nil {
			return 0, err
		}
		return -v, nil
	default:
		return core.ParseAmount(row[f.AmountColumn])
	}
}

func optionalAmount(row Row, col string) (float64, error) {
	if col == "" || strings.TrimSpace(row[col]) == "" {
		return 0, nil
	}
	v, err := core.ParseAmount(row[col])
	if err != nil && !errors.Is(err, core.ErrZeroAmount) {
		return 0, err
	}
	return v, nil
}

func firstValue(row Row, cols []string) string {
	for _, c := range cols {
		if v := strings.TrimSpace(row[c]); v != "" {
			return v
		}
	}
	return ""
}

func matchesAny(v string, values []string) bool {
	if v == "" {
		return false
	}
	for _, want := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func containsAny(upper string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}
