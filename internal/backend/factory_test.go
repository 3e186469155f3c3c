package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"budgetdash/internal/config"
	"budgetdash/internal/store"
)

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.Config
		want    Config
		wantErr bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "file", cfg: &config.Config{DataBackend: "file", DataFile: "b.json", SQLiteDBPath: "b.db"}, want: Config{Kind: File, Path: "b.json"}},
		{name: "sqlite", cfg: &config.Config{DataBackend: "sqlite", DataFile: "b.json", SQLiteDBPath: "b.db"}, want: Config{Kind: SQLite, Path: "b.db"}},
		{name: "memory ignores paths", cfg: &config.Config{DataBackend: "memory", DataFile: "b.json"}, want: Config{Kind: Memory}},
		{name: "unknown", cfg: &config.Config{DataBackend: "sheets"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAppConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("config = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "memory", cfg: Config{Kind: Memory}},
		{name: "file without path", cfg: Config{Kind: File}, wantErr: "file backend needs a path"},
		{name: "sqlite without path", cfg: Config{Kind: SQLite, Path: "  "}, wantErr: "sqlite backend needs a path"},
		{name: "invalid", cfg: Config{Kind: "redis"}, wantErr: "unknown data backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestFactoryOpen(t *testing.T) {
	dir := t.TempDir()
	f := NewFactory(nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		cfg         Config
		wantDurable bool
	}{
		{name: "memory", cfg: Config{Kind: Memory}},
		{name: "file", cfg: Config{Kind: File, Path: filepath.Join(dir, "budget.json")}, wantDurable: true},
		{name: "sqlite", cfg: Config{Kind: SQLite, Path: filepath.Join(dir, "budget.db")}, wantDurable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := f.Open(ctx, tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if b.Persister == nil || b.Close == nil {
				t.Fatalf("incomplete backend: %+v", b)
			}
			if b.Durable != tt.wantDurable {
				t.Errorf("Durable = %v, want %v", b.Durable, tt.wantDurable)
			}
			if err := b.Close(); err != nil {
				t.Errorf("close: %v", err)
			}
		})
	}

	if _, err := f.Open(ctx, Config{Kind: File}); err == nil {
		t.Error("Open accepted a file backend without a path")
	}
}

func TestOpenStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.json")
	cfg := Config{Kind: File, Path: path}
	ctx := context.Background()

	st, cleanup, err := OpenStore(ctx, NewFactory(nil), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SetIncomeTracking(ctx, true, nil); err != nil {
		t.Fatal(err)
	}
	_ = cleanup()

	again, cleanup, err := OpenStore(ctx, NewFactory(nil), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if !again.IncomeSettings().Enabled {
		t.Error("income tracking setting should survive reopen")
	}
}

var _ store.Persister = (*store.FilePersister)(nil)
