// Package archive provides storage backends for exported ledger archives.
package archive

import (
	"context"
	"fmt"

	"memoriae/internal/config"
	"memoriae/internal/memoriae"
)

// NewVaultFromConfig creates an ArchiveVault implementation based on the archive config type.
func NewVaultFromConfig(ctx context.Context, cfg config.ArchiveConfig) (memoriae.ArchiveVault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(), nil
	case "s3":
		return NewS3Vault(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	case "filesystem":
		if cfg.FSArchiveRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_archive_root to be set")
		}
		return NewFileSystemVault(cfg.FSArchiveRoot)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
