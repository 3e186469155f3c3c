package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"budgetdash/internal/core"
	"budgetdash/internal/log"
	"budgetdash/internal/store"
)

// handleImport ingests CSV exports sent as multipart files (field "file",
// repeatable) or as a raw request body named by the source parameter.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	hints, err := parseHints(r.URL.Query())
	if err != nil {
		fail(w, r, log.OpImport, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if r.ContentLength == 0 {
			fail(w, r, log.OpImport, badRequest("empty upload"))
			return
		}
		source := sanitizeInput(r.URL.Query().Get("source"))
		if source == "" {
			source = "upload.csv"
		}
		rep, err := s.svc.ImportReader(r.Context(), source, r.Body, hints)
		if err != nil {
			fail(w, r, log.OpImport, err)
			return
		}
		events(r).Imported(r.Context(), rep.Source, rep.Added, rep.Duplicates, rep.Skipped)
		OK(map[string]any{"reports": []store.IngestReport{rep}}).Write(w, r)
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		fail(w, r, log.OpImport, badRequest("%v", err))
		return
	}
	type fileResult struct {
		store.IngestReport
		Error string `json:"error,omitempty"`
	}
	var results []fileResult
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fail(w, r, log.OpImport, badRequest("%v", err))
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		source := filepath.Base(part.FileName())
		rep, err := s.svc.ImportReader(r.Context(), source, part, hints)
		_ = part.Close()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				fail(w, r, log.OpImport, err)
				return
			}
			results = append(results, fileResult{IngestReport: store.IngestReport{Source: source}, Error: err.Error()})
			continue
		}
		events(r).Imported(r.Context(), rep.Source, rep.Added, rep.Duplicates, rep.Skipped)
		results = append(results, fileResult{IngestReport: rep})
	}
	if len(results) == 0 {
		fail(w, r, log.OpImport, badRequest("no file parts in upload"))
		return
	}
	OK(map[string]any{"reports": results}).Write(w, r)
}

type moveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		fail(w, r, log.OpMove, err)
		return
	}
	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpMove, err)
		return
	}
	to := sanitizeInput(req.To)
	if to == "" {
		fail(w, r, log.OpMove, badRequest("target category is required"))
		return
	}
	txID := chi.URLParam(r, "txID")
	res, err := s.svc.Move(r.Context(), month, txID, sanitizeInput(req.From), to)
	if err != nil {
		fail(w, r, log.OpMove, err)
		return
	}
	events(r).TransactionChanged(r.Context(), log.OpMove, string(month), txID, to)
	OK(res).Write(w, r)
}

type categoryRequest struct {
	Category string `json:"category"`
}

func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		fail(w, r, log.OpMove, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpMove, err)
		return
	}
	txID := chi.URLParam(r, "txID")
	category := sanitizeInput(req.Category)
	if err := s.svc.SetCategory(r.Context(), month, txID, category); err != nil {
		fail(w, r, log.OpMove, err)
		return
	}
	events(r).TransactionChanged(r.Context(), log.OpMove, string(month), txID, category)
	NewResponse().Status(http.StatusNoContent).Write(w, r)
}

func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		fail(w, r, log.OpMove, err)
		return
	}
	txID := chi.URLParam(r, "txID")
	if err := s.svc.ClearOverride(r.Context(), month, txID); err != nil {
		fail(w, r, log.OpMove, err)
		return
	}
	events(r).TransactionChanged(r.Context(), log.OpMove, string(month), txID, "")
	NewResponse().Status(http.StatusNoContent).Write(w, r)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	txID := chi.URLParam(r, "txID")
	tx, err := s.svc.DeleteTransaction(r.Context(), month, txID)
	if err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	events(r).TransactionChanged(r.Context(), log.OpDelete, string(month), txID, "")
	OK(tx).Write(w, r)
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		fail(w, r, log.OpBudget, err)
		return
	}
	var b core.MonthBudget
	if err := decodeJSON(w, r, &b); err != nil {
		fail(w, r, log.OpBudget, err)
		return
	}
	if err := s.svc.SetBudget(r.Context(), month, b); err != nil {
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

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var c core.Category
	if err := decodeJSON(w, r, &c); err != nil {
		fail(w, r, log.OpCategory, err)
		return
	}
	c.Name = sanitizeInput(c.Name)
	if c.Name == "" {
		fail(w, r, log.OpCategory, badRequest("category name is required"))
		return
	}
	if err := s.svc.AddCategory(r.Context(), c); err != nil {
		fail(w, r, log.OpCategory, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(c).Write(w, r)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpCategory, err)
		return
	}
	name := sanitizeInput(req.Name)
	if name == "" {
		fail(w, r, log.OpCategory, badRequest("new category name is required"))
		return
	}
	if err := s.svc.RenameCategory(r.Context(), categoryParam(r), name); err != nil {
		fail(w, r, log.OpCategory, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w, r)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteCategory(r.Context(), categoryParam(r)); err != nil {
		fail(w, r, log.OpCategory, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w, r)
}

type ruleRequest struct {
	Pattern   string         `json:"pattern"`
	MatchType core.MatchType `json:"matchType"`
	Action    string         `json:"action"`
	Active    *bool          `json:"active"`
}

func (req ruleRequest) apply(rule *core.Rule) {
	rule.Pattern = sanitizeInput(req.Pattern)
	rule.Action = sanitizeInput(req.Action)
	if req.MatchType != "" {
		rule.MatchType = req.MatchType
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpRule, err)
		return
	}
	rule := core.Rule{MatchType: core.MatchContains, Active: true}
	req.apply(&rule)
	added, err := s.svc.AddRule(r.Context(), rule)
	if err != nil {
		fail(w, r, log.OpRule, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Rule added", log.FieldRuleID, added.ID, "pattern", added.Pattern)
	NewResponse().Status(http.StatusCreated).JSON(added).Write(w, r)
}

// handleUpdateRule edits a rule in place. An edited rule is no longer
// automatic.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpRule, err)
		return
	}
	rule, ok := findRule(s.svc.Rules(), id)
	if !ok {
		fail(w, r, log.OpRule, errRuleNotFound(id))
		return
	}
	req.apply(&rule)
	rule.IsAutomatic = false
	if err := s.svc.UpdateRule(r.Context(), rule); err != nil {
		fail(w, r, log.OpRule, err)
		return
	}
	OK(rule).Write(w, r)
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetRuleActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpRule, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.svc.SetRuleActive(r.Context(), id, req.Active); err != nil {
		fail(w, r, log.OpRule, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w, r)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.DeleteRule(r.Context(), id); err != nil {
		fail(w, r, log.OpRule, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Rule deleted", log.FieldRuleID, id)
	NewResponse().Status(http.StatusNoContent).Write(w, r)
}

func (s *Server) handleApplyDeleteRules(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.ApplyDeleteRules(r.Context())
	if err != nil {
		fail(w, r, log.OpRule, err)
		return
	}
	OK(map[string]int{"deleted": n}).Write(w, r)
}

func (s *Server) handleSetIncomeSettings(w http.ResponseWriter, r *http.Request) {
	var req core.IncomeSettings
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpSettings, err)
		return
	}
	patterns := req.Patterns[:0]
	for _, p := range req.Patterns {
		if p = sanitizeInput(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	if err := s.svc.SetIncomeTracking(r.Context(), req.Enabled, patterns); err != nil {
		fail(w, r, log.OpSettings, err)
		return
	}
	OK(s.svc.IncomeSettings()).Write(w, r)
}

// handleRestore replaces all state with an exported document.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBody))
	if err != nil {
		fail(w, r, log.OpRestore, err)
		return
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		fail(w, r, log.OpRestore, badRequest("empty document"))
		return
	}
	if err := s.svc.Restore(r.Context(), data); err != nil {
		fail(w, r, log.OpRestore, err)
		return
	}
	OK(map[string]any{"months": s.svc.Months()}).Write(w, r)
}

// handleReset wipes all state; it requires confirm=true.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !ok {
		fail(w, r, log.OpReset, badRequest("reset requires confirm=true"))
		return
	}
	if err := s.svc.Reset(r.Context()); err != nil {
		fail(w, r, log.OpReset, err)
		return
	}
	log.FromContext(r.Context()).WarnContext(r.Context(), "All data reset")
	NewResponse().Status(http.StatusNoContent).Write(w, r)
}

func findRule(rules []core.Rule, id string) (core.Rule, bool) {
	for _, r := range rules {
		if r.ID == id {
			return r, true
		}
	}
	return core.Rule{}, false
}

func errRuleNotFound(id string) error {
	return fmt.Errorf("%w: %s", core.ErrRuleNotFound, id)
}
