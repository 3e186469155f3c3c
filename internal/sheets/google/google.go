// Package google writes month summaries to a yearly dashboard sheet in a
// Google spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetdash/internal/core"
	ports "budgetdash/internal/sheets"
)

var (
	_ ports.SummaryWriter = (*Client)(nil)
	_ ports.SummaryReader = (*Client)(nil)
)

const defaultSheetBase = "Budget Dashboard"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// sheetBase is prefixed with the year: "2024 Budget Dashboard".
	sheetBase string
	// Serializes read-modify-write of a yearly sheet.
	mu sync.Mutex
}

// NewFromEnv creates a client from GOOGLE_SPREADSHEET_ID and service account
// credentials (GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS). GOOGLE_SHEET_NAME overrides the sheet
// base name.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, os.Getenv("GOOGLE_SPREADSHEET_ID"), os.Getenv("GOOGLE_SHEET_NAME"))
}

func New(ctx context.Context, spreadsheetID, sheetBase string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if sheetBase = strings.TrimSpace(sheetBase); sheetBase == "" {
		sheetBase = defaultSheetBase
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: sheetBase}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credsJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	credsFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if credsJSON == "" && credsFile == "" {
		credsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var creds []byte
	switch {
	case credsJSON != "":
		creds = []byte(credsJSON)
	case credsFile != "":
		b, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created")
	return svc, nil
}

// WriteMonthSummaries rewrites the month columns of each affected yearly
// sheet.
func (c *Client) WriteMonthSummaries(ctx context.Context, summaries []ports.MonthSummary) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	byYear := make(map[int][]ports.MonthSummary)
	for _, s := range summaries {
		start := s.Month.Start()
		if start.IsZero() {
			return fmt.Errorf("invalid month %q", s.Month)
		}
		byYear[start.Year()] = append(byYear[start.Year()], s)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, year := range years {
		if err := c.writeYear(ctx, year, byYear[year]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) writeYear(ctx context.Context, year int, summaries []ports.MonthSummary) error {
	sheet := c.sheetName(year)
	g, err := c.readGrid(ctx, sheet)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		g.apply(s)
	}

	rng := fmt.Sprintf("%s!A1:M", sheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	vr := &gsheet.ValueRange{Values: g.matrix()}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Dashboard sheet updated",
		"sheet", sheet,
		"months", len(summaries),
		"categories", len(g.order))
	return nil
}

func (c *Client) ReadMonthSummary(ctx context.Context, month core.MonthKey) (ports.MonthSummary, error) {
	if c.svc == nil {
		return ports.MonthSummary{}, errors.New("sheets service not initialized")
	}
	start := month.Start()
	if start.IsZero() {
		return ports.MonthSummary{}, fmt.Errorf("invalid month %q", month)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	g, err := c.readGrid(ctx, c.sheetName(start.Year()))
	if err != nil {
		return ports.MonthSummary{}, err
	}
	return g.summary(month), nil
}

func (c *Client) readGrid(ctx context.Context, sheet string) (*grid, error) {
	rng := fmt.Sprintf("%s!A1:M", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	g, err := parseGrid(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", sheet, err)
	}
	return g, nil
}

func (c *Client) sheetName(year int) string {
	return yearPrefixedName(c.sheetBase, year)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with
// a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
