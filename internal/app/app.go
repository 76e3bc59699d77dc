// Package app wires configuration into a running memoriae instance.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"memoriae/internal/archive"
	"memoriae/internal/config"
	"memoriae/internal/database"
	"memoriae/internal/encryption"
	"memoriae/internal/memoriae"
)

// App is the application layer between the CLI (or HTTP server) and the
// Service. It constructs all dependencies from config and manages the store
// lifecycle on Close.
type App struct {
	cfg       *config.Config
	store     memoriae.Store
	vault     memoriae.ArchiveVault
	encryptor memoriae.Encryptor
	service   *memoriae.Service
	logFile   *os.File
}

// New creates a fully wired App from the given config. operation identifies
// the CLI command being run (e.g. "capture", "serve") and is stamped on every
// log line. The caller must call Close when done.
func New(cfg *config.Config, operation string) (*App, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	// Durable stores must already be migrated; `memoriae migrate` does that.
	if cfg.Database.Type != "memory" {
		if s, ok := store.(*database.SQLiteStore); ok {
			if err := s.CheckMigrations(); err != nil {
				store.Close()
				return nil, fmt.Errorf("database schema out of date: %w", err)
			}
		}
	}

	vault, err := archive.NewVaultFromConfig(context.Background(), cfg.Archive)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating archive vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := memoriae.NewService(store, vault, enc, &slogAdapter{l: logger}, memoriae.RealClock{}, memoriae.UUIDGenerator{})
	if w := cfg.Timeline.GroupWindow(); w > 0 {
		svc.SetGroupWindow(w)
	}

	return &App{
		cfg:       cfg,
		store:     store,
		vault:     vault,
		encryptor: enc,
		service:   svc,
		logFile:   logFile,
	}, nil
}

// Service returns the wired Service.
func (a *App) Service() *memoriae.Service { return a.service }

// Config returns the config the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Encryptor returns the configured archive encryptor.
func (a *App) Encryptor() memoriae.Encryptor { return a.encryptor }

// Vault returns the configured archive vault.
func (a *App) Vault() memoriae.ArchiveVault { return a.vault }

// Close releases the store and the log file.
func (a *App) Close() error {
	var firstErr error

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}

	return firstErr
}
