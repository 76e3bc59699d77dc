package database

import (
	"fmt"
	"path/filepath"

	"memoriae/internal/config"
	"memoriae/internal/memoriae"
)

// NewStoreFromConfig creates a Store implementation based on the database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig) (memoriae.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "memoriae.db"))
	case "memory":
		store, err := NewSQLiteStore(":memory:")
		if err != nil {
			return nil, err
		}
		// In-memory databases start empty every time, so migrate up front.
		if err := store.Migrate(); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// MigrateFromConfig opens the configured store and brings its schema to the
// latest version. Used by the migrate command, which must be able to open a
// database whose schema is behind.
func MigrateFromConfig(cfg config.DatabaseConfig) error {
	store, err := NewStoreFromConfig(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	s, ok := store.(*SQLiteStore)
	if !ok {
		return nil
	}
	return s.Migrate()
}
