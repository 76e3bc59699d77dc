package memoriae

import "errors"

var (
	// ErrMissingCreationTransaction is returned by the reducers when a ledger
	// contains no creation transaction. There is no zero state for an entity
	// that was never created, so the caller must treat it as unrenderable.
	ErrMissingCreationTransaction = errors.New("ledger has no creation transaction")

	// ErrSeedNotFound indicates the seed has no ledger in the store.
	ErrSeedNotFound = errors.New("seed not found")

	// ErrTagNotFound indicates the tag has no ledger in the store.
	ErrTagNotFound = errors.New("tag not found")

	// ErrSproutNotFound indicates the sprout has no ledger in the store.
	ErrSproutNotFound = errors.New("sprout not found")

	// ErrArchiveNotFound indicates no archive has been exported for the seed.
	ErrArchiveNotFound = errors.New("archive not found")
)
