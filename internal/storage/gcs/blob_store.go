// Package gcs provides an ObjectStore backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

const (
	storeName = "gcs"
	// deleteConcurrency bounds in-flight object deletes per DeleteObjects call.
	deleteConcurrency = 16
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// BlobStore reads, writes and deletes objects in GCS.
type BlobStore struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", jobs.PrimaryError(storeName, "put", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr))
		}
		return "", jobs.PrimaryError(storeName, "put", fmt.Errorf("copy object: %w", err))
	}
	if err := writer.Close(); err != nil {
		return "", jobs.PrimaryError(storeName, "put", fmt.Errorf("close writer: %w", err))
	}
	return jobs.ObjectURI{Scheme: "gs", Bucket: s.bucket, Key: key}.String(), nil
}

// GetObject downloads bucket/key. A missing object yields jobs.ErrObjectNotFound.
func (s *BlobStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, jobs.ErrObjectNotFound)
	}
	if err != nil {
		return nil, jobs.PrimaryError(storeName, "get", err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, jobs.PrimaryError(storeName, "read", err)
	}
	return data, nil
}

// DeleteObjects removes keys from bucket concurrently. Objects that are
// already gone count as deleted.
func (s *BlobStore) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	handle := s.client.Bucket(bucket)
	for _, key := range keys {
		g.Go(func() error {
			err := handle.Object(key).Delete(gctx)
			if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
				return nil
			}
			return fmt.Errorf("delete gs://%s/%s: %w", bucket, key, err)
		})
	}
	if err := g.Wait(); err != nil {
		return jobs.PrimaryError(storeName, "delete", err)
	}
	return nil
}
