// Package snapshot periodically serializes a grid-level census (object
// counts per priority class, coupling counts) to local disk or Tencent
// COS object storage, analogous to the teacher's analysis-result export.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/griddist/core/pkg/config"
)

// Storage is the census-keyed blob backend a CensusWriter persists
// snapshots through. A backend owns its own key layout (prefix, rank,
// capture time), so callers never assemble storage paths by hand; they
// only ever deal in a prefix, a processor rank and a capture time.
type Storage interface {
	// WriteCensus stores data as proc's census snapshot taken at
	// takenAt under prefix, returning the key it was stored at.
	WriteCensus(ctx context.Context, prefix string, proc int, takenAt time.Time, data []byte) (string, error)

	// ReadCensus returns the raw bytes of the census stored at key.
	ReadCensus(ctx context.Context, key string) ([]byte, error)

	// DeleteCensus deletes the census stored at key.
	DeleteCensus(ctx context.Context, key string) error

	// CensusExists reports whether a census is stored at key.
	CensusExists(ctx context.Context, key string) (bool, error)

	// CensusURL returns where the census at key can be found: a
	// filesystem path for local storage, a public URL for COS.
	CensusURL(key string) string
}

// censusKey derives the storage key for a census taken by proc at
// takenAt under prefix, shared by every Storage implementation so the
// key layout stays identical across backends.
func censusKey(prefix string, proc int, takenAt time.Time) string {
	return fmt.Sprintf("%s/proc-%d/%s.json", prefix, proc, takenAt.UTC().Format("20060102T150405.000000000"))
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
)

// NewStorage creates a new Storage instance based on the configuration.
func NewStorage(cfg *config.SnapshotConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch StorageType(cfg.Type) {
	case StorageTypeLocal:
		return NewLocalStorage(cfg.LocalPath)
	case StorageTypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

// ValidateConfig validates the storage configuration.
func ValidateConfig(cfg *config.SnapshotConfig) error {
	if cfg == nil {
		return fmt.Errorf("storage config is nil")
	}

	storageType := StorageType(cfg.Type)

	// Empty type defaults to local
	if storageType == "" {
		storageType = StorageTypeLocal
	}

	if storageType != StorageTypeCOS && storageType != StorageTypeLocal {
		return fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	if storageType == StorageTypeCOS {
		if cfg.Bucket == "" {
			return fmt.Errorf("COS bucket is required")
		}
		if cfg.Region == "" {
			return fmt.Errorf("COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return fmt.Errorf("COS credentials are required")
		}
	}

	if storageType == StorageTypeLocal {
		if cfg.LocalPath == "" {
			return fmt.Errorf("local storage path is required")
		}
	}

	return nil
}
