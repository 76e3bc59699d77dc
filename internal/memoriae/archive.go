package memoriae

import "io"

// ArchiveVault stores exported ledger archives. An archive is an opaque blob
// (encrypted JSON lines) keyed by seed id, with a version marker used to
// detect stale exports. Implementations: memory, filesystem, S3.
type ArchiveVault interface {
	// PutArchive stores the archive for a seed, replacing any previous one.
	// size is the number of bytes that will be read from r.
	PutArchive(seedID string, r io.Reader, size int64, version int64) error

	// GetArchive retrieves the archive for a seed and writes it to w.
	// Returns ErrArchiveNotFound if no archive exists for the seed.
	GetArchive(seedID string, w io.Writer) error

	// ArchiveVersion returns the stored version for a seed's archive.
	// Returns 0 if no archive has been stored.
	ArchiveVersion(seedID string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
