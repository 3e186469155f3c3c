package backend

import (
	"errors"
	"fmt"
	"strings"

	"budgetdash/internal/config"
)

// Config selects and locates the persister.
type Config struct {
	Kind Kind
	// Path is the JSON document or SQLite database; unused for Memory.
	Path string
}

// FromAppConfig picks the path that belongs to the configured backend.
func FromAppConfig(c *config.Config) (Config, error) {
	if c == nil {
		return Config{}, errors.New("backend: nil app config")
	}
	cfg := Config{Kind: Kind(c.DataBackend)}
	switch cfg.Kind {
	case File:
		cfg.Path = c.DataFile
	case SQLite:
		cfg.Path = c.SQLiteDBPath
	case Memory:
	default:
		return Config{}, fmt.Errorf("unknown data backend %q: want one of %v", c.DataBackend, Kinds)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Kind {
	case Memory:
		return nil
	case File, SQLite:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("%s backend needs a path", c.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown data backend %q", c.Kind)
	}
}
