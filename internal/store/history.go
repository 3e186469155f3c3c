package store

import (
	"context"
	"errors"

	"budgetdash/internal/core"
)

// ErrNoHistory is returned when the persister does not archive replaced
// snapshots.
var ErrNoHistory = errors.New("storage backend keeps no snapshot history")

// HistoryPersister is a Persister that keeps the snapshots it replaced.
type HistoryPersister interface {
	Persister
	History(ctx context.Context) ([]SnapshotInfo, error)
	LoadHistory(ctx context.Context, id int64) (*core.Document, error)
}

func (s *Store) historyPersister() (HistoryPersister, error) {
	hp, ok := s.persister.(HistoryPersister)
	if !ok {
		return nil, ErrNoHistory
	}
	return hp, nil
}

// History lists the archived snapshots, newest first.
func (s *Store) History(ctx context.Context) ([]SnapshotInfo, error) {
	hp, err := s.historyPersister()
	if err != nil {
		return nil, err
	}
	return hp.History(ctx)
}

// RestoreSnapshot makes an archived snapshot current. The state it
// replaces is archived in turn, so the restore can itself be undone.
func (s *Store) RestoreSnapshot(ctx context.Context, id int64) error {
	hp, err := s.historyPersister()
	if err != nil {
		return err
	}
	doc, err := hp.LoadHistory(ctx, id)
	if err != nil {
		return err
	}
	ensureOthers(doc)
	return s.mutate(ctx, "restore_snapshot", func(next *core.Document) error {
		*next = *doc
		return nil
	})
}

var _ HistoryPersister = (*SQLitePersister)(nil)
