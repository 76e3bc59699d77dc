package testutil

import (
	"memoriae/internal/archive"
	"memoriae/internal/memoriae"
)

// NewTestVault creates a new in-memory archive vault for testing.
func NewTestVault() memoriae.ArchiveVault {
	return archive.NewMemoryVault()
}
