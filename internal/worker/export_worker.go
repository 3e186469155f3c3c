package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"budgetdash/internal/amqp"
	"budgetdash/internal/core"
	"budgetdash/internal/services"
	"budgetdash/internal/sheets"
)

// Source is the part of the budget service the exporter reads from.
type Source interface {
	Reload(ctx context.Context) error
	Months() []core.MonthKey
	MonthView(ctx context.Context, month core.MonthKey) (*services.Dashboard, error)
}

// ExportWorker keeps the spreadsheet dashboard in line with the store.
// Change notifications mark months dirty; Flush reloads the snapshot and
// rewrites the dirty month columns in one write.
type ExportWorker struct {
	source   Source
	writer   sheets.SummaryWriter
	interval time.Duration

	mu      sync.Mutex
	pending map[core.MonthKey]bool
	all     bool
	// Months written before, so months removed by a reset get cleared.
	exported map[core.MonthKey]bool
}

// NewExportWorker creates a worker. With a zero interval every
// notification is flushed immediately; otherwise Run flushes on a ticker.
func NewExportWorker(source Source, writer sheets.SummaryWriter, interval time.Duration) *ExportWorker {
	return &ExportWorker{
		source:   source,
		writer:   writer,
		interval: interval,
		pending:  make(map[core.MonthKey]bool),
		exported: make(map[core.MonthKey]bool),
	}
}

// HandleStoreChanged processes a single change notification from AMQP.
func (w *ExportWorker) HandleStoreChanged(ctx context.Context, msg *amqp.StoreChangedMessage) error {
	slog.InfoContext(ctx, "Processing change notification",
		"action", msg.Action,
		"months", len(msg.Months),
		"timestamp", msg.Timestamp)

	w.mu.Lock()
	if msg.AllMonths() {
		w.all = true
	}
	for _, m := range msg.Months {
		key, err := core.ParseMonthKey(m)
		if err != nil {
			slog.WarnContext(ctx, "Ignoring invalid month in notification", "month", m, "action", msg.Action)
			continue
		}
		w.pending[key] = true
	}
	w.mu.Unlock()

	if w.interval <= 0 {
		return w.Flush(ctx)
	}
	return nil
}

// PublishStoreChanged lets the worker stand in for the broker when the
// exporter runs inside the serving process.
func (w *ExportWorker) PublishStoreChanged(ctx context.Context, msg *amqp.StoreChangedMessage) error {
	return w.HandleStoreChanged(ctx, msg)
}

// SyncAll exports every month. Used at startup to recover from missed
// notifications.
func (w *ExportWorker) SyncAll(ctx context.Context) error {
	w.mu.Lock()
	w.all = true
	w.mu.Unlock()
	return w.Flush(ctx)
}

// Pending reports how many months wait for the next flush; -1 means all.
func (w *ExportWorker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.all {
		return -1
	}
	return len(w.pending)
}

// Flush writes all dirty months. On failure the months stay dirty for the
// next attempt.
func (w *ExportWorker) Flush(ctx context.Context) error {
	w.mu.Lock()
	pending, all := w.pending, w.all
	w.pending, w.all = make(map[core.MonthKey]bool), false
	w.mu.Unlock()

	if !all && len(pending) == 0 {
		return nil
	}

	err := w.flush(ctx, pending, all)
	if err != nil {
		w.mu.Lock()
		w.all = w.all || all
		for m := range pending {
			w.pending[m] = true
		}
		w.mu.Unlock()
	}
	return err
}

func (w *ExportWorker) flush(ctx context.Context, pending map[core.MonthKey]bool, all bool) error {
	if err := w.source.Reload(ctx); err != nil {
		return fmt.Errorf("reload store: %w", err)
	}

	months := make(map[core.MonthKey]bool, len(pending))
	for m := range pending {
		months[m] = true
	}
	if all {
		for _, m := range w.source.Months() {
			months[m] = true
		}
		w.mu.Lock()
		for m := range w.exported {
			months[m] = true
		}
		w.mu.Unlock()
	}

	keys := make([]core.MonthKey, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	summaries := make([]sheets.MonthSummary, 0, len(keys))
	for _, m := range keys {
		s, err := w.summary(ctx, m)
		if err != nil {
			return err
		}
		summaries = append(summaries, s)
	}
	if len(summaries) == 0 {
		return nil
	}

	if err := w.writer.WriteMonthSummaries(ctx, summaries); err != nil {
		slog.ErrorContext(ctx, "Failed to export month summaries",
			"months", len(summaries),
			"error", err)
		return fmt.Errorf("write month summaries: %w", err)
	}

	w.mu.Lock()
	for _, s := range summaries {
		w.exported[s.Month] = true
	}
	w.mu.Unlock()

	slog.InfoContext(ctx, "Successfully exported month summaries",
		"months", len(summaries),
		"first", summaries[0].Month,
		"last", summaries[len(summaries)-1].Month)
	return nil
}

// summary renders one month; a month with no data exports as empty.
func (w *ExportWorker) summary(ctx context.Context, month core.MonthKey) (sheets.MonthSummary, error) {
	d, err := w.source.MonthView(ctx, month)
	if errors.Is(err, services.ErrMonthNotFound) {
		return sheets.NewMonthSummary(month, nil, 0), nil
	}
	if err != nil {
		return sheets.MonthSummary{}, fmt.Errorf("month view %s: %w", month, err)
	}
	return sheets.NewMonthSummary(month, d.View.CategoryTotals, d.Spending()), nil
}

// Run flushes on the configured interval until ctx is done, then makes a
// last attempt with a short deadline.
func (w *ExportWorker) Run(ctx context.Context) error {
	if w.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := w.Flush(flushCtx); err != nil {
				slog.ErrorContext(flushCtx, "Final export failed", "error", err)
			}
			cancel()
			return ctx.Err()
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", "error", err)
			}
		}
	}
}
