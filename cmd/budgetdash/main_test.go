package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"budgetdash/internal/core"
	"budgetdash/internal/export"
	"budgetdash/internal/rules"
	"budgetdash/internal/stats"
)

const januaryCSV = `Posting Date,Description,Amount
2024-01-05,KROGER #12,-40.00
2024-01-06,NETFLIX.COM,-15.99
2024-01-15,ACME PAYROLL,2500.00
2024-01-20,ZZTOP 4411,-9.00
`

// setupEnv points the store at a fresh file and disables external services.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_BACKEND", "file")
	t.Setenv("DATA_FILE", filepath.Join(dir, "data", "budget.json"))
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	t.Setenv("INCOME_TRACKING", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("PORT", "8081")
	return dir
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := runCmd(t, args...)
	if code != 0 {
		t.Fatalf("budgetdash %s: exit %d\nstdout: %s\nstderr: %s", strings.Join(args, " "), code, out, errOut)
	}
	return out
}

func importJanuary(t *testing.T, dir string) {
	t.Helper()
	path := filepath.Join(dir, "jan.csv")
	if err := os.WriteFile(path, []byte(januaryCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	mustRun(t, "import", path)
}

func transactionID(t *testing.T, month, prefix string) string {
	t.Helper()
	var b core.MonthBucket
	if err := json.Unmarshal([]byte(mustRun(t, "transactions", "-month", month, "-json")), &b); err != nil {
		t.Fatal(err)
	}
	for _, tx := range b.Transactions {
		if strings.HasPrefix(tx.Description, prefix) {
			return tx.ID
		}
	}
	t.Fatalf("no transaction starting with %q in %s", prefix, month)
	return ""
}

func TestRunUsage(t *testing.T) {
	setupEnv(t)
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no args", nil, 2},
		{"help", []string{"help"}, 0},
		{"unknown command", []string{"frobnicate"}, 2},
		{"bad flag", []string{"months", "-nope"}, 2},
		{"missing month", []string{"transactions"}, 2},
		{"reset without confirmation", []string{"reset"}, 2},
		{"rule needs action or delete", []string{"rules", "add", "-pattern", "X"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCmd(t, tt.args...)
			if code != tt.code {
				t.Errorf("exit code = %d, want %d", code, tt.code)
			}
		})
	}
}

func TestImportAndSummary(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "jan.csv")
	if err := os.WriteFile(path, []byte(januaryCSV), 0o600); err != nil {
		t.Fatal(err)
	}

	var first []importOutput
	if err := json.Unmarshal([]byte(mustRun(t, "import", "-json", path)), &first); err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || first[0].Added != 4 || first[0].Error != "" {
		t.Fatalf("first import = %+v, want 4 added", first)
	}

	var again []importOutput
	if err := json.Unmarshal([]byte(mustRun(t, "import", "-json", path)), &again); err != nil {
		t.Fatal(err)
	}
	if again[0].Added != 0 || again[0].Duplicates != 4 {
		t.Errorf("re-import = %+v, want 4 duplicates", again[0])
	}

	if out := mustRun(t, "months"); !strings.Contains(out, "2024-01") {
		t.Errorf("months output missing 2024-01:\n%s", out)
	}

	var report export.Report
	if err := json.Unmarshal([]byte(mustRun(t, "summary", "-month", "2024-01", "-json")), &report); err != nil {
		t.Fatal(err)
	}
	if report.TransactionCount != 4 {
		t.Errorf("transactions = %d, want 4", report.TransactionCount)
	}
	if math.Abs(report.Spending-64.99) > 0.001 {
		t.Errorf("spending = %v, want 64.99", report.Spending)
	}

	out := mustRun(t, "summary", "-month", "2024-01")
	for _, want := range []string{rules.CategoryGroceries, "40.00", "Spending"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q:\n%s", want, out)
		}
	}
}

func TestImportReportsBadFile(t *testing.T) {
	dir := setupEnv(t)
	bad := filepath.Join(dir, "bad.csv")
	if err := os.WriteFile(bad, []byte("foo,bar\n1,2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	code, out, _ := runCmd(t, "import", bad)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out, "bad.csv") {
		t.Errorf("output does not name the failed file:\n%s", out)
	}
}

func TestMoveAndExplain(t *testing.T) {
	dir := setupEnv(t)
	importJanuary(t, dir)
	id := transactionID(t, "2024-01", "ZZTOP")

	out := mustRun(t, "move", "-month", "2024-01", "-id", id, "-to", rules.CategoryShopping)
	if !strings.Contains(out, rules.CategoryShopping) {
		t.Errorf("move output = %q", out)
	}
	if out := mustRun(t, "explain", "-month", "2024-01", "-id", id); !strings.Contains(out, rules.CategoryShopping) {
		t.Errorf("explain output = %q, want %s", out, rules.CategoryShopping)
	}

	mustRun(t, "delete", "-month", "2024-01", "-id", id)
	if code, _, _ := runCmd(t, "explain", "-month", "2024-01", "-id", id); code != 1 {
		t.Errorf("explain after delete exit = %d, want 1", code)
	}
}

func TestRulesCommands(t *testing.T) {
	setupEnv(t)
	out := mustRun(t, "rules", "add", "-pattern", "NETFLIX", "-action", rules.CategoryEntertainment)
	if !strings.HasPrefix(out, "added rule ") {
		t.Fatalf("rules add output = %q", out)
	}
	id := strings.TrimSpace(strings.TrimPrefix(out, "added rule "))

	listed := func() core.Rule {
		var list []core.Rule
		if err := json.Unmarshal([]byte(mustRun(t, "rules", "list", "-json")), &list); err != nil {
			t.Fatal(err)
		}
		for _, r := range list {
			if r.ID == id {
				return r
			}
		}
		t.Fatalf("rule %s not listed", id)
		return core.Rule{}
	}

	if r := listed(); !r.Active || r.Pattern != "NETFLIX" || r.Action != rules.CategoryEntertainment {
		t.Errorf("added rule = %+v", r)
	}
	mustRun(t, "rules", "toggle", "-id", id)
	if r := listed(); r.Active {
		t.Error("rule still active after toggle")
	}
	mustRun(t, "rules", "remove", "-id", id)
	if code, _, _ := runCmd(t, "rules", "toggle", "-id", id); code != 1 {
		t.Errorf("toggle of removed rule exit = %d, want 1", code)
	}
}

func TestBudgetCommand(t *testing.T) {
	dir := setupEnv(t)
	importJanuary(t, dir)

	var report stats.BudgetReport
	out := mustRun(t, "budget", "-month", "2024-01", "-total", "100", "-set", rules.CategoryGroceries+"=30", "-json")
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Lines) != 1 || !report.Lines[0].Over {
		t.Errorf("lines = %+v, want groceries over budget", report.Lines)
	}
	if report.Total == nil || report.Total.Target != 100 || report.Total.Over {
		t.Errorf("total = %+v, want target 100 not over", report.Total)
	}

	if out := mustRun(t, "budget", "-month", "2024-01", "-clear"); !strings.Contains(out, "no budget set") {
		t.Errorf("after clear = %q", out)
	}
	if code, _, _ := runCmd(t, "budget", "-month", "2024-01", "-set", "Groceries"); code != 2 {
		t.Errorf("malformed -set exit = %d, want 2", code)
	}
}

func TestExportResetRestore(t *testing.T) {
	dir := setupEnv(t)
	importJanuary(t, dir)

	csv := mustRun(t, "export", "-month", "2024-01")
	if !strings.HasPrefix(csv, "Category,Date,Description,Amount") {
		t.Errorf("csv export starts with %q", strings.SplitN(csv, "\n", 2)[0])
	}

	backup := filepath.Join(dir, "backup.json")
	mustRun(t, "export", "-format", "doc", "-out", backup)

	mustRun(t, "reset", "-yes")
	if out := mustRun(t, "months"); !strings.Contains(out, "no months stored") {
		t.Errorf("months after reset = %q", out)
	}

	mustRun(t, "restore", backup)
	if out := mustRun(t, "months"); !strings.Contains(out, "2024-01") {
		t.Errorf("months after restore = %q", out)
	}
}

func TestHistoryCommand(t *testing.T) {
	dir := setupEnv(t)
	if code, _, errOut := runCmd(t, "history"); code != 1 || !strings.Contains(errOut, "no snapshot history") {
		t.Errorf("file backend history: exit %d, stderr %q", code, errOut)
	}

	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(dir, "data", "budget.db"))
	importJanuary(t, dir)
	mustRun(t, "income", "-enable")

	var snaps []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, "history", "list", "-json")), &snaps); err != nil {
		t.Fatal(err)
	}
	if len(snaps) == 0 {
		t.Fatal("no archived snapshots after two changes")
	}
	out := mustRun(t, "history", "restore", "-id", fmt.Sprint(snaps[len(snaps)-1].ID))
	if !strings.HasPrefix(out, "restored snapshot") {
		t.Errorf("restore output = %q", out)
	}
	if code, _, _ := runCmd(t, "history", "restore"); code != 2 {
		t.Errorf("restore without -id exit = %d, want 2", code)
	}
}

func TestWindowFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   windowFlags
		wantKey string
		wantErr bool
	}{
		{"all", windowFlags{}, "all", false},
		{"month", windowFlags{month: "2024-02"}, "month:2024-02", false},
		{"range", windowFlags{from: "2024-01-01", to: "2024-01-31"}, "range:2024-01-01:2024-01-31", false},
		{"half range", windowFlags{from: "2024-01-01"}, "", true},
		{"month and range", windowFlags{month: "2024-02", to: "2024-01-31"}, "", true},
		{"bad month", windowFlags{month: "2024-13"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := tt.flags.window()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && w.Key() != tt.wantKey {
				t.Errorf("key = %q, want %q", w.Key(), tt.wantKey)
			}
		})
	}
}

func TestParseSign(t *testing.T) {
	for _, name := range []string{"", "expenses_negative", "expenses_positive"} {
		if _, err := parseSign(name); err != nil {
			t.Errorf("parseSign(%q) = %v", name, err)
		}
	}
	if _, err := parseSign("upside_down"); err == nil {
		t.Error("parseSign accepted an unknown convention")
	}
}
