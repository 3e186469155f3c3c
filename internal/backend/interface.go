package backend

import (
	"context"

	"budgetdash/internal/store"
)

// Kind names a persister implementation. Values match DATA_BACKEND.
type Kind string

const (
	Memory Kind = "memory"
	File   Kind = "file"
	SQLite Kind = "sqlite"
)

// Kinds lists the supported persisters.
var Kinds = []Kind{Memory, File, SQLite}

// Backend is an opened persister. Close is never nil.
type Backend struct {
	Persister store.Persister
	// Durable is false when the state is lost on exit.
	Durable bool
	Close   func() error
}

// Factory opens the persister a Config describes.
type Factory interface {
	Open(ctx context.Context, cfg Config) (*Backend, error)
}
