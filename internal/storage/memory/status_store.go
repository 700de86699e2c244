package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

// StatusStore keeps status records in a map keyed by job id.
type StatusStore struct {
	mu      sync.RWMutex
	records map[int64]jobs.StatusRecord
}

// NewStatusStore constructs an empty StatusStore.
func NewStatusStore() *StatusStore {
	return &StatusStore{records: make(map[int64]jobs.StatusRecord)}
}

// GetStatus reports found=false for missing records.
func (s *StatusStore) GetStatus(_ context.Context, jobID int64) (jobs.StatusRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[jobID]
	return rec, ok, nil
}

// PutStatus replaces the record for rec.JobID.
func (s *StatusStore) PutStatus(_ context.Context, rec jobs.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.JobID] = rec
	return nil
}

// DeleteStatus removes the record if present.
func (s *StatusStore) DeleteStatus(_ context.Context, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, jobID)
	return nil
}
