// Package settings persists the application's configuration strings.
// Two backends are available: a JSON document and a SQLite table.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Backend names accepted by Open
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// AppDirName is the per-user configuration directory name
const AppDirName = "Tether"

// Store is a durable string key-value store. Get returns "" for a missing key.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	// Path is the file backing the store, watched for external edits
	Path() string
	Close() error
}

// Config for opening a Store
type Config struct {
	Backend   string
	ConfigDir string
	Logger    *zerolog.Logger
}

// DefaultConfigDir returns <user config dir>/Tether, or a temp dir when the
// user config dir cannot be determined
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, AppDirName)
}

// Open creates the configuration directory and opens the selected backend
func Open(cfg Config) (Store, error) {
	dir := cfg.ConfigDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("module", "settings").Logger()
	}

	switch cfg.Backend {
	case "", BackendJSON:
		return NewFileStore(filepath.Join(dir, "settings.json"), log), nil
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, "settings.db"), log)
	default:
		return nil, fmt.Errorf("unknown settings backend %q (want %s or %s)", cfg.Backend, BackendJSON, BackendSQLite)
	}
}
