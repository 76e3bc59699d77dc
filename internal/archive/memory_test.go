package archive

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"memoriae/internal/memoriae"
)

func TestMemoryVault_PutAndGetArchive(t *testing.T) {
	vault := NewMemoryVault()

	tests := []struct {
		name    string
		seedID  string
		content string
	}{
		{
			name:    "store and retrieve archive",
			seedID:  "seed-1",
			content: `{"kind":"seed_transaction"}`,
		},
		{
			name:    "store empty archive",
			seedID:  "seed-empty",
			content: "",
		},
		{
			name:    "store large archive",
			seedID:  "seed-large",
			content: strings.Repeat("x", 10000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := strings.NewReader(tt.content)
			if err := vault.PutArchive(tt.seedID, r, int64(len(tt.content)), 1); err != nil {
				t.Fatalf("PutArchive() error = %v", err)
			}

			var buf bytes.Buffer
			if err := vault.GetArchive(tt.seedID, &buf); err != nil {
				t.Fatalf("GetArchive() error = %v", err)
			}

			if got := buf.String(); got != tt.content {
				t.Errorf("GetArchive() = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestMemoryVault_ReplacesPreviousArchive(t *testing.T) {
	vault := NewMemoryVault()

	first := "version one"
	second := "version two, longer"

	if err := vault.PutArchive("seed-1", strings.NewReader(first), int64(len(first)), 1); err != nil {
		t.Fatalf("first PutArchive() error: %v", err)
	}
	if err := vault.PutArchive("seed-1", strings.NewReader(second), int64(len(second)), 2); err != nil {
		t.Fatalf("second PutArchive() error: %v", err)
	}

	var buf bytes.Buffer
	if err := vault.GetArchive("seed-1", &buf); err != nil {
		t.Fatalf("GetArchive() error: %v", err)
	}
	if got := buf.String(); got != second {
		t.Errorf("GetArchive() = %q, want %q", got, second)
	}

	version, err := vault.ArchiveVersion("seed-1")
	if err != nil {
		t.Fatalf("ArchiveVersion() error: %v", err)
	}
	if version != 2 {
		t.Errorf("ArchiveVersion() = %d, want 2", version)
	}
}

func TestMemoryVault_GetArchiveNotFound(t *testing.T) {
	vault := NewMemoryVault()

	var buf bytes.Buffer
	err := vault.GetArchive("nonexistent", &buf)
	if !errors.Is(err, memoriae.ErrArchiveNotFound) {
		t.Errorf("GetArchive() error = %v, want ErrArchiveNotFound", err)
	}
}

func TestMemoryVault_ArchiveVersionUnset(t *testing.T) {
	vault := NewMemoryVault()

	version, err := vault.ArchiveVersion("nonexistent")
	if err != nil {
		t.Fatalf("ArchiveVersion() error: %v", err)
	}
	if version != 0 {
		t.Errorf("ArchiveVersion() = %d, want 0", version)
	}
}

func TestMemoryVault_PutArchiveSizeMismatch(t *testing.T) {
	vault := NewMemoryVault()

	content := "test"
	r := strings.NewReader(content)
	err := vault.PutArchive("seed-1", r, int64(len(content)+10), 1)
	if err == nil {
		t.Error("PutArchive() expected error for size mismatch, got nil")
	}
}

func TestMemoryVault_ValidateSetup(t *testing.T) {
	vault := NewMemoryVault()

	if err := vault.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() unexpected error: %v", err)
	}
}
