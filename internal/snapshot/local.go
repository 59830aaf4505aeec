package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalStorage implements Storage by writing census snapshots as JSON
// files under a base directory on the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "./storage"
	}

	// Ensure base directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{basePath: basePath}, nil
}

// WriteCensus writes data under the key derived from prefix/proc/takenAt.
func (s *LocalStorage) WriteCensus(ctx context.Context, prefix string, proc int, takenAt time.Time, data []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	key := censusKey(prefix, proc, takenAt)
	fullPath := s.getFullPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write census: %w", err)
	}

	return key, nil
}

// ReadCensus returns the raw bytes of the census stored at key.
func (s *LocalStorage) ReadCensus(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath := s.getFullPath(key)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("census not found: %s", key)
		}
		return nil, fmt.Errorf("failed to read census: %w", err)
	}
	return data, nil
}

// DeleteCensus deletes the census stored at key.
func (s *LocalStorage) DeleteCensus(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullPath := s.getFullPath(key)
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil // already deleted
		}
		return fmt.Errorf("failed to delete census: %w", err)
	}
	return nil
}

// CensusExists reports whether a census is stored at key.
func (s *LocalStorage) CensusExists(ctx context.Context, key string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	fullPath := s.getFullPath(key)
	_, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check census existence: %w", err)
	}
	return true, nil
}

// CensusURL returns the filesystem path of the census at key.
func (s *LocalStorage) CensusURL(key string) string {
	return s.getFullPath(key)
}

// getFullPath returns the full filesystem path for the given key.
func (s *LocalStorage) getFullPath(key string) string {
	return filepath.Join(s.basePath, key)
}

// GetBasePath returns the base path for the local storage.
func (s *LocalStorage) GetBasePath() string {
	return s.basePath
}
