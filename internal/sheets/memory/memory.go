// Package memory is the in-process summary writer used when no spreadsheet
// is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"budgetdash/internal/core"
	ports "budgetdash/internal/sheets"
)

var (
	_ ports.SummaryWriter = (*Store)(nil)
	_ ports.SummaryReader = (*Store)(nil)
)

type Store struct {
	mu     sync.Mutex
	months map[core.MonthKey]ports.MonthSummary
	writes int
}

func New() *Store {
	return &Store{months: make(map[core.MonthKey]ports.MonthSummary)}
}

func (s *Store) WriteMonthSummaries(_ context.Context, summaries []ports.MonthSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sum := range summaries {
		if sum.Month == "" {
			return fmt.Errorf("summary without month")
		}
		sum.Categories = append([]ports.CategoryTotal(nil), sum.Categories...)
		s.months[sum.Month] = sum
	}
	s.writes++
	return nil
}

func (s *Store) ReadMonthSummary(_ context.Context, month core.MonthKey) (ports.MonthSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.months[month]
	if !ok {
		return ports.MonthSummary{Month: month, Label: month.Label()}, nil
	}
	return sum, nil
}

// Writes counts WriteMonthSummaries calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
