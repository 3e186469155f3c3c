package backend

import (
	"context"
	"fmt"
	"log/slog"

	"budgetdash/internal/store"
)

type factory struct {
	logger *slog.Logger
}

// NewFactory returns the Factory used by the commands. A nil logger uses
// the slog default.
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &factory{logger: logger}
}

func (f *factory) Open(ctx context.Context, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case SQLite:
		p, err := store.NewSQLitePersister(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite persister: %w", err)
		}
		f.logger.InfoContext(ctx, "Using SQLite backend", "path", cfg.Path)
		return &Backend{Persister: p, Durable: true, Close: p.Close}, nil
	case File:
		p, err := store.NewFilePersister(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open file persister: %w", err)
		}
		f.logger.InfoContext(ctx, "Using file backend", "path", p.Path())
		return &Backend{Persister: p, Durable: true, Close: nop}, nil
	default:
		f.logger.WarnContext(ctx, "Using memory backend; changes are lost on exit")
		return &Backend{Persister: store.NewMemoryPersister(), Close: nop}, nil
	}
}

func nop() error { return nil }

// OpenStore opens the configured persister and loads the store from it.
// The returned func closes the persister.
func OpenStore(ctx context.Context, f Factory, cfg Config) (*store.Store, func() error, error) {
	b, err := f.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(ctx, b.Persister)
	if err != nil {
		_ = b.Close()
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, b.Close, nil
}
