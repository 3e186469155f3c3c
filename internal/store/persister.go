package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"budgetdash/internal/core"
)

// Persister stores the whole document as one snapshot. Load returns a nil
// document and no error when nothing has been saved yet.
type Persister interface {
	Load(ctx context.Context) (*core.Document, error)
	Save(ctx context.Context, doc *core.Document) error
}

// MemoryPersister keeps the encoded snapshot in memory. It encodes on every
// save so loads see exactly what a durable persister would return.
type MemoryPersister struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Load(_ context.Context) (*core.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, nil
	}
	return core.DecodeDocument(m.data)
}

func (m *MemoryPersister) Save(_ context.Context, doc *core.Document) error {
	b, err := core.EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	m.mu.Lock()
	m.data = b
	m.mu.Unlock()
	return nil
}

// Raw returns the last saved snapshot bytes.
func (m *MemoryPersister) Raw() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// FilePersister writes the snapshot to a JSON file through a temp file and
// rename, so a crash leaves either the old or the new snapshot.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) (*FilePersister, error) {
	if path == "" {
		return nil, fmt.Errorf("data file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FilePersister{path: path}, nil
}

func (f *FilePersister) Path() string { return f.path }

func (f *FilePersister) Load(ctx context.Context) (*core.Document, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	doc, err := core.DecodeDocument(b)
	if err != nil {
		slog.ErrorContext(ctx, "Persisted document is unreadable", "path", f.path, "error", err)
		return nil, err
	}
	return doc, nil
}

func (f *FilePersister) Save(ctx context.Context, doc *core.Document) error {
	b, err := core.EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	slog.DebugContext(ctx, "Snapshot written", "path", f.path, "bytes", len(b))
	return nil
}
