package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

// BlobStore stores artifacts in-memory and returns memory:// URIs.
type BlobStore struct {
	mu     sync.RWMutex
	bucket string
	data   map[string]map[string][]byte

	// DeleteCalls records the key batches passed to DeleteObjects.
	DeleteCalls [][]string
}

// NewBlobStore creates a new in-memory blob store writing to bucket.
func NewBlobStore(bucket string) *BlobStore {
	if bucket == "" {
		bucket = "images"
	}
	return &BlobStore{
		bucket: bucket,
		data:   make(map[string]map[string][]byte),
	}
}

// PutObject persists the content and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, key, _ string, data []byte) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(s.bucket, key, data)
	return jobs.ObjectURI{Scheme: "memory", Bucket: s.bucket, Key: key}.String(), nil
}

// Seed stores data under an arbitrary bucket.
func (s *BlobStore) Seed(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(bucket, key, data)
}

func (s *BlobStore) put(bucket, key string, data []byte) {
	objects, ok := s.data[bucket]
	if !ok {
		objects = make(map[string][]byte)
		s.data[bucket] = objects
	}
	objects[key] = append([]byte(nil), data...)
}

// GetObject returns jobs.ErrObjectNotFound for unknown keys.
func (s *BlobStore) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[bucket][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, jobs.ErrObjectNotFound)
	}
	return append([]byte(nil), data...), nil
}

// DeleteObjects removes keys from bucket.
func (s *BlobStore) DeleteObjects(_ context.Context, bucket string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls = append(s.DeleteCalls, append([]string(nil), keys...))
	for _, key := range keys {
		delete(s.data[bucket], key)
	}
	return nil
}

// Len reports the number of objects stored in bucket.
func (s *BlobStore) Len(bucket string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[bucket])
}
