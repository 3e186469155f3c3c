package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budgetdash/internal/core"

	_ "modernc.org/sqlite"
)

// historyLimit is how many previous snapshots the SQLite persister keeps.
const historyLimit = 20

// SQLitePersister keeps the current snapshot in a single-row table and the
// previous ones in snapshot_history. Each save runs in one transaction.
type SQLitePersister struct {
	db     *sql.DB
	schema uint
}

func NewSQLitePersister(dbPath string) (*SQLitePersister, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer; the snapshot is small and replaced whole.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateSchema(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite snapshot schema ready", "path", dbPath, "version", version)

	return &SQLitePersister{db: db, schema: version}, nil
}

// SchemaVersion is the migration version the database was brought to.
func (p *SQLitePersister) SchemaVersion() uint { return p.schema }

func (p *SQLitePersister) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *SQLitePersister) Load(ctx context.Context) (*core.Document, error) {
	var raw string
	err := p.db.QueryRowContext(ctx, `SELECT document FROM snapshots WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	doc, err := core.DecodeDocument([]byte(raw))
	if err != nil {
		slog.ErrorContext(ctx, "Persisted document is unreadable", "error", err)
		return nil, err
	}
	return doc, nil
}

func (p *SQLitePersister) Save(ctx context.Context, doc *core.Document) error {
	b, err := core.EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot_history (version, document, saved_at)
		 SELECT version, document, saved_at FROM snapshots WHERE id = 1`); err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshot_history WHERE id NOT IN (
		     SELECT id FROM snapshot_history ORDER BY id DESC LIMIT ?)`, historyLimit); err != nil {
		return fmt.Errorf("prune snapshot history: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, version, document, saved_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version, document = excluded.document, saved_at = excluded.saved_at`,
		doc.Version, string(b), now); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	slog.DebugContext(ctx, "Snapshot saved to SQLite", "bytes", len(b), "months", len(doc.Months))
	return nil
}

// SnapshotInfo describes an archived snapshot.
type SnapshotInfo struct {
	ID      int64     `json:"id"`
	Version int       `json:"version"`
	SavedAt time.Time `json:"savedAt"`
}

// History lists archived snapshots, newest first.
func (p *SQLitePersister) History(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, version, saved_at FROM snapshot_history ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshot history: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var (
			info    SnapshotInfo
			savedAt string
		)
		if err := rows.Scan(&info.ID, &info.Version, &savedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot history: %w", err)
		}
		info.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

// LoadHistory decodes one archived snapshot.
func (p *SQLitePersister) LoadHistory(ctx context.Context, id int64) (*core.Document, error) {
	var raw string
	err := p.db.QueryRowContext(ctx, `SELECT document FROM snapshot_history WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %d: %w", id, err)
	}
	return core.DecodeDocument([]byte(raw))
}
