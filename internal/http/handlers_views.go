package http

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"budgetdash/internal/core"
	"budgetdash/internal/export"
	"budgetdash/internal/log"
	"budgetdash/internal/services"
)

type monthInfo struct {
	Key          core.MonthKey `json:"key"`
	Label        string        `json:"label"`
	Transactions int           `json:"transactions"`
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	months := s.svc.Months()
	out := make([]monthInfo, 0, len(months))
	for _, m := range months {
		info := monthInfo{Key: m, Label: m.Label()}
		if b, ok := s.svc.Bucket(m); ok {
			info.Transactions = len(b.Transactions)
		}
		out = append(out, info)
	}
	OK(map[string]any{"months": out}).Write(w, r)
}

func (s *Server) handleMonthView(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	d, err := s.svc.MonthView(r.Context(), month)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	OK(dashboardResponse(d)).Write(w, r)
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	summary, err := s.svc.MonthSummary(r.Context(), month)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	OK(summary).Write(w, r)
}

func (s *Server) handleMonthTransactions(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	b, ok := s.svc.Bucket(month)
	if !ok {
		fail(w, r, log.OpRead, fmt.Errorf("%w: %s", services.ErrMonthNotFound, month))
		return
	}
	OK(b).Write(w, r)
}

func (s *Server) handleBudgetReport(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		fail(w, r, log.OpBudget, err)
		return
	}
	report, err := s.svc.BudgetReport(r.Context(), month)
	if err != nil {
		fail(w, r, log.OpBudget, err)
		return
	}
	OK(report).Write(w, r)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r.URL.Query())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	d, err := s.svc.View(r.Context(), win)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	OK(dashboardResponse(d)).Write(w, r)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := s.svc.Trends(r.Context())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	OK(trends).Write(w, r)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	current, err := optionalMonth(q, "current")
	if err == nil && current == "" {
		err = badRequest("current month is required")
	}
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	previous, err := optionalMonth(q, "previous")
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	report, err := s.svc.Compare(r.Context(), current, previous)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	OK(report).Write(w, r)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	OK(map[string]any{"categories": s.svc.Categories()}).Write(w, r)
}

func (s *Server) handleCategoryAnalysis(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r.URL.Query())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	analysis, err := s.svc.CategoryAnalysis(r.Context(), win, categoryParam(r))
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	OK(analysis).Write(w, r)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	OK(map[string]any{"rules": s.svc.Rules()}).Write(w, r)
}

func (s *Server) handleIncomeSettings(w http.ResponseWriter, r *http.Request) {
	OK(s.svc.IncomeSettings()).Write(w, r)
}

type explainResponse struct {
	TransactionID string `json:"transactionId"`
	Category      string `json:"category,omitempty"`
	Stage         string `json:"stage"`
	Smart         bool   `json:"smart"`
	Delete        bool   `json:"delete,omitempty"`
	RuleID        string `json:"ruleId,omitempty"`
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	txID := chi.URLParam(r, "txID")
	res, err := s.svc.Explain(month, txID)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	OK(explainResponse{
		TransactionID: txID,
		Category:      res.Category,
		Stage:         res.Stage.String(),
		Smart:         res.Smart(),
		Delete:        res.Delete,
		RuleID:        res.RuleID,
	}).Write(w, r)
}

// handleExport serves the stored document (format=doc), or the CSV or JSON
// analysis of a window.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		fail(w, r, log.OpExport, badRequest("%v", err))
		return
	}

	if format == export.FormatDoc {
		data, err := s.svc.Export()
		if err != nil {
			fail(w, r, log.OpExport, err)
			return
		}
		attachment(w, "budget-data.json", "application/json")
		_, _ = w.Write(data)
		return
	}

	win, err := parseWindow(q)
	if err != nil {
		fail(w, r, log.OpExport, err)
		return
	}
	d, err := s.svc.View(r.Context(), win)
	if err != nil {
		fail(w, r, log.OpExport, err)
		return
	}
	order := categoryNames(s.svc.Categories())

	var buf bytes.Buffer
	name := "budget-" + d.Window.Key()
	if format == export.FormatCSV {
		err = export.WriteCSV(&buf, d.View, order)
		attachment(w, safeFilename(name)+".csv", "text/csv")
	} else {
		err = export.WriteJSON(&buf, export.BuildReport(d, order, time.Now()))
		attachment(w, safeFilename(name)+".json", "application/json")
	}
	if err != nil {
		w.Header().Del("Content-Disposition")
		fail(w, r, log.OpExport, err)
		return
	}
	_, _ = buf.WriteTo(w)
}

// dashboardView is a Dashboard with its derived spending figure.
type dashboardView struct {
	*services.Dashboard
	Spending float64 `json:"spending"`
}

func dashboardResponse(d *services.Dashboard) dashboardView {
	return dashboardView{Dashboard: d, Spending: d.Spending()}
}

func categoryParam(r *http.Request) string {
	raw := chi.URLParam(r, "category")
	if v, err := url.PathUnescape(raw); err == nil {
		return sanitizeInput(v)
	}
	return sanitizeInput(raw)
}

func categoryNames(cats []core.Category) []string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names
}

func attachment(w http.ResponseWriter, filename, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

func safeFilename(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
