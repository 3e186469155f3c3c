package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"budgetdash/internal/core"
	"budgetdash/internal/ingest"
	"budgetdash/internal/services"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 32 << 20
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// parseWindow reads the view window from query parameters: month=YYYY-MM,
// or from and to as dates, or nothing for all stored transactions.
func parseWindow(q url.Values) (services.Window, error) {
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		month, err := core.ParseMonthKey(v)
		if err != nil {
			return services.Window{}, badRequest("%v", err)
		}
		return services.MonthWindow(month), nil
	}

	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from == "" && to == "" {
		return services.AllWindow(), nil
	}
	if from == "" || to == "" {
		return services.Window{}, badRequest("from and to must be given together")
	}
	fromDate, err := core.ParseDate(from)
	if err != nil {
		return services.Window{}, badRequest("from: %v", err)
	}
	toDate, err := core.ParseDate(to)
	if err != nil {
		return services.Window{}, badRequest("to: %v", err)
	}
	return services.RangeWindow(fromDate, toDate), nil
}

// monthParam reads the {month} route parameter.
func monthParam(r *http.Request) (core.MonthKey, error) {
	month, err := core.ParseMonthKey(chi.URLParam(r, "month"))
	if err != nil {
		return "", badRequest("%v", err)
	}
	return month, nil
}

// optionalMonth parses a month query parameter that may be empty.
func optionalMonth(q url.Values, key string) (core.MonthKey, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return "", nil
	}
	month, err := core.ParseMonthKey(v)
	if err != nil {
		return "", badRequest("%s: %v", key, err)
	}
	return month, nil
}

// decodeJSON decodes a size-limited JSON body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

// parseHints reads import options: format, income, incomePattern and an
// explicit column mapping (dateColumn, descriptionColumn, amountColumn,
// debitColumn, creditColumn, categoryColumn, typeColumn, sign).
func parseHints(q url.Values) (ingest.Hints, error) {
	hints := ingest.Hints{Format: sanitizeInput(q.Get("format"))}

	if v := strings.TrimSpace(q.Get("income")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return hints, badRequest("income: must be true or false")
		}
		hints.IncomeTracking = enabled
	}
	for _, p := range q["incomePattern"] {
		if p = sanitizeInput(p); p != "" {
			hints.IncomePatterns = append(hints.IncomePatterns, p)
		}
	}

	m := ingest.ColumnMapping{
		Date:        sanitizeInput(q.Get("dateColumn")),
		Description: sanitizeInput(q.Get("descriptionColumn")),
		Amount:      sanitizeInput(q.Get("amountColumn")),
		Debit:       sanitizeInput(q.Get("debitColumn")),
		Credit:      sanitizeInput(q.Get("creditColumn")),
		Category:    sanitizeInput(q.Get("categoryColumn")),
		Type:        sanitizeInput(q.Get("typeColumn")),
	}
	if m == (ingest.ColumnMapping{}) {
		return hints, nil
	}
	if m.Date == "" || m.Description == "" {
		return hints, badRequest("column mapping needs dateColumn and descriptionColumn")
	}
	sign, err := parseSign(q.Get("sign"))
	if err != nil {
		return hints, err
	}
	m.Sign = sign
	hints.Mapping = &m
	return hints, nil
}

func parseSign(s string) (ingest.SignConvention, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ingest.ExpensesNegative, nil
	}
	for _, c := range []ingest.SignConvention{ingest.ExpensesNegative, ingest.ExpensesPositive, ingest.SplitDebitCredit} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, badRequest("unknown sign convention %q", s)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
