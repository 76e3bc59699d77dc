package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"memoriae/internal/memoriae"
)

// FileSystemVault is a filesystem-based implementation of the ArchiveVault
// interface. It stores one archive per seed in a flat directory:
//
//	<root>/
//	  <seedID>.archive    (archive blob)
//	  <seedID>.version    (version marker)
type FileSystemVault struct {
	root string
}

// NewFileSystemVault creates a new filesystem archive vault rooted at the given path.
func NewFileSystemVault(root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileSystemVault{root: root}, nil
}

// PutArchive stores the archive for a seed, replacing any previous one.
func (v *FileSystemVault) PutArchive(seedID string, r io.Reader, size int64, version int64) error {
	destPath := filepath.Join(v.root, seedID+".archive")
	if err := v.writeFile(destPath, r, size); err != nil {
		return err
	}

	versionPath := filepath.Join(v.root, seedID+".version")
	versionData := strconv.FormatInt(version, 10)
	return os.WriteFile(versionPath, []byte(versionData), 0644)
}

// GetArchive retrieves the archive for a seed and writes it to w.
func (v *FileSystemVault) GetArchive(seedID string, w io.Writer) error {
	srcPath := filepath.Join(v.root, seedID+".archive")

	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return memoriae.ErrArchiveNotFound
		}
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	return nil
}

// ArchiveVersion returns the stored version for a seed's archive.
// Returns 0 if no version file exists.
func (v *FileSystemVault) ArchiveVersion(seedID string) (int64, error) {
	versionPath := filepath.Join(v.root, seedID+".version")
	data, err := os.ReadFile(versionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the vault root is accessible.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", v.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements the ArchiveVault interface
var _ memoriae.ArchiveVault = (*FileSystemVault)(nil)
