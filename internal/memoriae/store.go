package memoriae

import "context"

// Store is the persistence interface for the transaction ledgers. Ledgers are
// append-only: implementations expose no update or delete of transactions.
// Reads must return the complete ledger for a subject, ordered ascending by
// (created_at, id).
type Store interface {
	// Seed operations

	// CreateSeed inserts the seed registry row and its creation transaction
	// atomically. tx.Type must be create_seed.
	CreateSeed(ctx context.Context, tx Transaction) error

	// AppendSeedTransaction appends one transaction to an existing seed ledger.
	AppendSeedTransaction(ctx context.Context, tx Transaction) error

	// SeedTransactions returns the full ledger for a seed.
	// Returns ErrSeedNotFound if the seed was never created.
	SeedTransactions(ctx context.Context, seedID string) ([]Transaction, error)

	// ListSeedIDs returns all seed ids, oldest first.
	ListSeedIDs(ctx context.Context) ([]string, error)

	// Tag operations

	// CreateTag inserts the tag registry row and its creation transaction
	// atomically. tx.Type must be create_tag.
	CreateTag(ctx context.Context, tx Transaction) error

	// AppendTagTransaction appends one transaction to an existing tag ledger.
	AppendTagTransaction(ctx context.Context, tx Transaction) error

	// TagTransactions returns the full ledger for a tag.
	// Returns ErrTagNotFound if the tag was never created.
	TagTransactions(ctx context.Context, tagID string) ([]Transaction, error)

	// ListTagIDs returns all tag ids, oldest first.
	ListTagIDs(ctx context.Context) ([]string, error)

	// Sprout operations

	// CreateSprout inserts the sprout registry row, its creation transaction,
	// and (when non-nil) the add_sprout marker on the owning seed's ledger,
	// all atomically. Restore passes a nil marker because the marker already
	// exists in the archived seed ledger.
	CreateSprout(ctx context.Context, sprout Sprout, creation Transaction, marker *Transaction) error

	// AppendSproutTransaction appends one transaction to an existing sprout ledger.
	AppendSproutTransaction(ctx context.Context, tx Transaction) error

	// SproutTransactions returns the full ledger for a sprout.
	// Returns ErrSproutNotFound if the sprout was never created.
	SproutTransactions(ctx context.Context, sproutID string) ([]Transaction, error)

	// SproutsForSeed returns the sprout registry records attached to a seed,
	// oldest first.
	SproutsForSeed(ctx context.Context, seedID string) ([]Sprout, error)

	// FindSprout returns the registry record for a sprout.
	// Returns ErrSproutNotFound if it does not exist.
	FindSprout(ctx context.Context, sproutID string) (*Sprout, error)

	// Close closes the underlying connection.
	Close() error
}
