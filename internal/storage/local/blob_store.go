// Package local implements a filesystem object store. Each bucket is a
// directory under the base directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

// Scheme prefixes the URIs returned by PutObject.
const Scheme = "file"

const storeName = "local"

// Config captures the parameters for the filesystem object store.
type Config struct {
	// BaseDir is the root directory holding one directory per bucket.
	BaseDir string
	// Bucket receives PutObject writes.
	Bucket string
}

// BlobStore writes artifacts to the local filesystem.
type BlobStore struct {
	baseDir string
	bucket  string
}

// New creates the base directory if needed and checks that it is writable.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{baseDir: filepath.Clean(cfg.BaseDir), bucket: cfg.Bucket}, nil
}

// PutObject writes data under key in the configured bucket and returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, key, _ string, data []byte) (string, error) {
	fullPath, err := s.resolve(s.bucket, key)
	if err != nil {
		return "", fmt.Errorf("put %q: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", jobs.PrimaryError(storeName, "put", fmt.Errorf("create parent directories: %w", err))
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", jobs.PrimaryError(storeName, "put", fmt.Errorf("write file: %w", err))
	}
	return jobs.ObjectURI{Scheme: Scheme, Bucket: s.bucket, Key: key}.String(), nil
}

// GetObject returns jobs.ErrObjectNotFound when the file does not exist.
func (s *BlobStore) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	fullPath, err := s.resolve(bucket, key)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	// #nosec G304 -- fullPath is confined to baseDir by resolve.
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, jobs.ErrObjectNotFound)
	}
	if err != nil {
		return nil, jobs.PrimaryError(storeName, "get", err)
	}
	return data, nil
}

// DeleteObjects removes the files. Missing files are skipped.
func (s *BlobStore) DeleteObjects(_ context.Context, bucket string, keys []string) error {
	for _, key := range keys {
		fullPath, err := s.resolve(bucket, key)
		if err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
		if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return jobs.PrimaryError(storeName, "delete", err)
		}
	}
	return nil
}

// resolve maps bucket/key to a path and rejects anything escaping baseDir.
func (s *BlobStore) resolve(bucket, key string) (string, error) {
	if strings.TrimSpace(bucket) == "" || strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("bucket and key are required")
	}
	bucketDir := filepath.Join(s.baseDir, bucket)
	fullPath := filepath.Join(bucketDir, key)
	if filepath.Dir(bucketDir) != s.baseDir ||
		!strings.HasPrefix(fullPath, bucketDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
