// Package database implements the ledger Store on SQLite.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"memoriae/internal/database/migrations"
	"memoriae/internal/memoriae"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements memoriae.Store. Transaction rows are append-only:
// the store exposes no update or delete for ledger entries.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) a SQLite ledger database at path.
// path can be ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing connection. The caller is
// responsible for the connection's pragmas and lifecycle.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens a SQLite connection with the pragmas the ledger
// relies on. Exported for tests and tools.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Foreign keys are OFF by default in SQLite; the ledger tables reference
	// the registries, so they must be enforced.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return db, nil
}

// CheckMigrations verifies the schema is at the latest version.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.Check(s.db)
}

// Migrate brings the schema to the latest version.
func (s *SQLiteStore) Migrate() error {
	return migrations.Up(s.db)
}

// Path returns the database file path ("" when wrapping an external connection).
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Seed operations

func (s *SQLiteStore) CreateSeed(ctx context.Context, tx memoriae.Transaction) error {
	if tx.Type != memoriae.TypeCreateSeed {
		return fmt.Errorf("seed creation requires a %s transaction, got %s", memoriae.TypeCreateSeed, tx.Type)
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer dbtx.Rollback()

	if _, err := dbtx.ExecContext(ctx,
		`INSERT INTO seeds (id, created_at) VALUES (?, ?)`,
		tx.SubjectID, tx.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting seed: %w", err)
	}
	if err := insertLedgerRow(ctx, dbtx, "seed_transactions", tx); err != nil {
		return err
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("committing seed creation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendSeedTransaction(ctx context.Context, tx memoriae.Transaction) error {
	return insertLedgerRow(ctx, s.db, "seed_transactions", tx)
}

func (s *SQLiteStore) SeedTransactions(ctx context.Context, seedID string) ([]memoriae.Transaction, error) {
	if err := s.subjectExists(ctx, "seeds", seedID, memoriae.ErrSeedNotFound); err != nil {
		return nil, err
	}
	return s.ledger(ctx, "seed_transactions", seedID)
}

func (s *SQLiteStore) ListSeedIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, "seeds")
}

// Tag operations

func (s *SQLiteStore) CreateTag(ctx context.Context, tx memoriae.Transaction) error {
	if tx.Type != memoriae.TypeCreateTag {
		return fmt.Errorf("tag creation requires a %s transaction, got %s", memoriae.TypeCreateTag, tx.Type)
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer dbtx.Rollback()

	if _, err := dbtx.ExecContext(ctx,
		`INSERT INTO tags (id, created_at) VALUES (?, ?)`,
		tx.SubjectID, tx.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting tag: %w", err)
	}
	if err := insertLedgerRow(ctx, dbtx, "tag_transactions", tx); err != nil {
		return err
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("committing tag creation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendTagTransaction(ctx context.Context, tx memoriae.Transaction) error {
	return insertLedgerRow(ctx, s.db, "tag_transactions", tx)
}

func (s *SQLiteStore) TagTransactions(ctx context.Context, tagID string) ([]memoriae.Transaction, error) {
	if err := s.subjectExists(ctx, "tags", tagID, memoriae.ErrTagNotFound); err != nil {
		return nil, err
	}
	return s.ledger(ctx, "tag_transactions", tagID)
}

func (s *SQLiteStore) ListTagIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, "tags")
}

// Sprout operations

func (s *SQLiteStore) CreateSprout(ctx context.Context, sprout memoriae.Sprout, creation memoriae.Transaction, marker *memoriae.Transaction) error {
	if creation.Type != memoriae.TypeCreateSprout {
		return fmt.Errorf("sprout creation requires a %s transaction, got %s", memoriae.TypeCreateSprout, creation.Type)
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer dbtx.Rollback()

	if _, err := dbtx.ExecContext(ctx,
		`INSERT INTO sprouts (id, seed_id, kind, title, created_at) VALUES (?, ?, ?, ?, ?)`,
		sprout.ID, sprout.SeedID, string(sprout.Kind), sprout.Title, sprout.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting sprout: %w", err)
	}
	if err := insertLedgerRow(ctx, dbtx, "sprout_transactions", creation); err != nil {
		return err
	}
	if marker != nil {
		if err := insertLedgerRow(ctx, dbtx, "seed_transactions", *marker); err != nil {
			return err
		}
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("committing sprout creation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendSproutTransaction(ctx context.Context, tx memoriae.Transaction) error {
	return insertLedgerRow(ctx, s.db, "sprout_transactions", tx)
}

func (s *SQLiteStore) SproutTransactions(ctx context.Context, sproutID string) ([]memoriae.Transaction, error) {
	if err := s.subjectExists(ctx, "sprouts", sproutID, memoriae.ErrSproutNotFound); err != nil {
		return nil, err
	}
	return s.ledger(ctx, "sprout_transactions", sproutID)
}

func (s *SQLiteStore) SproutsForSeed(ctx context.Context, seedID string) ([]memoriae.Sprout, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seed_id, kind, title, created_at FROM sprouts WHERE seed_id = ? ORDER BY created_at, id`,
		seedID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sprouts: %w", err)
	}
	defer rows.Close()

	var sprouts []memoriae.Sprout
	for rows.Next() {
		var sp memoriae.Sprout
		var kind string
		if err := rows.Scan(&sp.ID, &sp.SeedID, &kind, &sp.Title, &sp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning sprout: %w", err)
		}
		sp.Kind = memoriae.SproutKind(kind)
		sprouts = append(sprouts, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading sprouts: %w", err)
	}
	return sprouts, nil
}

func (s *SQLiteStore) FindSprout(ctx context.Context, sproutID string) (*memoriae.Sprout, error) {
	var sp memoriae.Sprout
	var kind string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, seed_id, kind, title, created_at FROM sprouts WHERE id = ?`,
		sproutID,
	).Scan(&sp.ID, &sp.SeedID, &kind, &sp.Title, &sp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, memoriae.ErrSproutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding sprout: %w", err)
	}
	sp.Kind = memoriae.SproutKind(kind)
	return &sp, nil
}

// Shared helpers

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertLedgerRow(ctx context.Context, db execer, table string, tx memoriae.Transaction) error {
	data := tx.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	automation := sql.NullString{String: tx.AutomationID, Valid: tx.AutomationID != ""}

	_, err := db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, subject_id, transaction_type, transaction_data, created_at, automation_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.SubjectID, string(tx.Type), string(data), tx.CreatedAt, automation,
	)
	if err != nil {
		return fmt.Errorf("appending to %s: %w", table, err)
	}
	return nil
}

func (s *SQLiteStore) ledger(ctx context.Context, table, subjectID string) ([]memoriae.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, transaction_type, transaction_data, created_at, automation_id
		 FROM `+table+` WHERE subject_id = ? ORDER BY created_at, id`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var txs []memoriae.Transaction
	for rows.Next() {
		var (
			tx         memoriae.Transaction
			typ, data  string
			automation sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.SubjectID, &typ, &data, &tx.CreatedAt, &automation); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		tx.Type = memoriae.TransactionType(typ)
		tx.Data = json.RawMessage(data)
		if automation.Valid {
			tx.AutomationID = automation.String
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	return txs, nil
}

func (s *SQLiteStore) subjectExists(ctx context.Context, table, id string, notFound error) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("checking %s: %w", table, err)
	}
	return nil
}

func (s *SQLiteStore) listIDs(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM `+table+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s ids: %w", table, err)
	}
	return ids, nil
}

// Compile-time check that SQLiteStore implements memoriae.Store.
var _ memoriae.Store = (*SQLiteStore)(nil)
