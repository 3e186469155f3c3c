// Command budgetdash imports bank CSV exports into a local budget store and
// reports on them from the terminal or over a local JSON API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"budgetdash/internal/cli"
	"budgetdash/internal/core"
	"budgetdash/internal/log"
	"budgetdash/internal/services"
)

// errFlags means the flag package already reported the problem.
var errFlags = errors.New("invalid flags")

// usageErr is a command line mistake, as opposed to a failed operation.
type usageErr struct{ msg string }

func (e usageErr) Error() string { return e.msg }

type env struct {
	app    *cli.App
	svc    *services.BudgetService
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"import", "[flags] FILE...", "import one or more bank CSV exports", cmdImport},
		{"months", "", "list stored months", cmdMonths},
		{"transactions", "-month YYYY-MM", "list a month's transactions with their ids", cmdTransactions},
		{"summary", "[-month M | -from D -to D] [-json]", "category totals and headline numbers", cmdSummary},
		{"category", "-name NAME [window] [-json]", "statistics for one category", cmdCategory},
		{"trends", "[-json]", "month-over-month trends", cmdTrends},
		{"compare", "-current M [-previous M] [-json]", "compare two months by category", cmdCompare},
		{"explain", "-month M -id ID", "show which stage categorizes a transaction", cmdExplain},
		{"move", "-month M -id ID -to CATEGORY", "move a transaction and learn a rule", cmdMove},
		{"set-category", "-month M -id ID (-category NAME | -clear)", "override a transaction's category", cmdSetCategory},
		{"delete", "-month M -id ID", "delete a transaction", cmdDelete},
		{"rules", "list|add|remove|toggle|apply-deletes", "manage categorization rules", cmdRules},
		{"categories", "list|add|rename|remove", "manage categories", cmdCategories},
		{"income", "[-enable | -disable] [-pattern P]...", "show or change income tracking", cmdIncome},
		{"budget", "-month M [-total N] [-set CAT=N]... [-clear]", "show or set a month's budget", cmdBudget},
		{"export", "[-format csv|json|doc] [window] [-out FILE]", "export a window or the whole store", cmdExport},
		{"restore", "FILE", "replace the store with an exported document", cmdRestore},
		{"history", "list [-json] | restore -id N", "list or restore archived snapshots (sqlite backend)", cmdHistory},
		{"reset", "-yes", "delete every stored transaction, rule and setting", cmdReset},
		{"serve", "[-addr ADDR]", "serve the JSON API", cmdServe},
	}
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return 0
	}

	cmd, ok := lookup(args[0])
	if !ok {
		fmt.Fprintf(stderr, "budgetdash: unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	app, err := cli.Bootstrap(ctx, cli.Options{Component: log.ComponentCLI, Publish: true})
	if err != nil {
		fmt.Fprintf(stderr, "budgetdash: %v\n", err)
		return 1
	}
	defer app.Close()

	e := &env{app: app, svc: app.Service, stdout: stdout, stderr: stderr}
	err = cmd.run(ctx, e, args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errFlags):
		return 2
	case errors.As(err, new(usageErr)):
		fmt.Fprintf(stderr, "budgetdash %s: %v\nusage: budgetdash %s %s\n", cmd.name, err, cmd.name, cmd.args)
		return 2
	default:
		app.Logger.DebugContext(ctx, "Command failed", "command", cmd.name, "error", err)
		fmt.Fprintf(stderr, "budgetdash %s: %v\n", cmd.name, err)
		return 1
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: budgetdash COMMAND [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Storage, AMQP and export settings come from the environment or a .env file.")
}

func usageError(format string, args ...any) error {
	return usageErr{msg: fmt.Sprintf(format, args...)}
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("budgetdash "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errFlags
	}
	return nil
}

// windowFlags selects a month, a date range, or everything.
type windowFlags struct {
	month, from, to string
}

func (w *windowFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&w.month, "month", "", "month `YYYY-MM`")
	fs.StringVar(&w.from, "from", "", "range start `YYYY-MM-DD`")
	fs.StringVar(&w.to, "to", "", "range end `YYYY-MM-DD`")
}

func (w windowFlags) window() (services.Window, error) {
	if w.month != "" {
		if w.from != "" || w.to != "" {
			return services.Window{}, usageError("-month cannot be combined with -from/-to")
		}
		month, err := core.ParseMonthKey(w.month)
		if err != nil {
			return services.Window{}, usageError("%v", err)
		}
		return services.MonthWindow(month), nil
	}
	if w.from == "" && w.to == "" {
		return services.AllWindow(), nil
	}
	if w.from == "" || w.to == "" {
		return services.Window{}, usageError("-from and -to must be given together")
	}
	from, err := core.ParseDate(w.from)
	if err != nil {
		return services.Window{}, usageError("-from: %v", err)
	}
	to, err := core.ParseDate(w.to)
	if err != nil {
		return services.Window{}, usageError("-to: %v", err)
	}
	return services.RangeWindow(from, to), nil
}

// txFlags address one stored transaction.
type txFlags struct {
	month, id string
}

func (t *txFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&t.month, "month", "", "month `YYYY-MM` holding the transaction")
	fs.StringVar(&t.id, "id", "", "transaction `id` (see the transactions command)")
}

func (t txFlags) parse() (core.MonthKey, string, error) {
	if t.month == "" || t.id == "" {
		return "", "", usageError("-month and -id are required")
	}
	month, err := core.ParseMonthKey(t.month)
	if err != nil {
		return "", "", usageError("%v", err)
	}
	return month, strings.TrimSpace(t.id), nil
}

func requireMonth(v string) (core.MonthKey, error) {
	if v == "" {
		return "", usageError("-month is required")
	}
	month, err := core.ParseMonthKey(v)
	if err != nil {
		return "", usageError("%v", err)
	}
	return month, nil
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
