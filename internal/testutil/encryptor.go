package testutil

import (
	"memoriae/internal/encryption"
	"memoriae/internal/memoriae"
)

// NewTestEncryptor creates a deterministic encryptor for testing.
func NewTestEncryptor() memoriae.Encryptor {
	return encryption.NewTestEncryptor()
}
