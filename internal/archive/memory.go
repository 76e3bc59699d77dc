package archive

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"memoriae/internal/memoriae"
)

// MemoryVault is an in-memory implementation of the ArchiveVault interface.
// It keeps all archives in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	archives map[string][]byte // seed id -> archive blob
	versions map[string]int64  // seed id -> version
	mu       sync.RWMutex
}

// NewMemoryVault creates a new in-memory archive vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		archives: make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

// PutArchive stores the archive for a seed, replacing any previous one.
func (m *MemoryVault) PutArchive(seedID string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.archives[seedID] = data
	m.versions[seedID] = version
	return nil
}

// GetArchive retrieves the archive for a seed and writes it to w.
func (m *MemoryVault) GetArchive(seedID string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.archives[seedID]
	if !ok {
		return memoriae.ErrArchiveNotFound
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	return nil
}

// ArchiveVersion returns the stored version for a seed's archive.
// Returns 0 if no archive has been stored.
func (m *MemoryVault) ArchiveVersion(seedID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.versions[seedID], nil
}

// ValidateSetup always succeeds for the in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements the ArchiveVault interface
var _ memoriae.ArchiveVault = (*MemoryVault)(nil)
