// Package firestore stores job status records as Firestore documents keyed by job id.
package firestore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

const storeName = "firestore"

// Config selects the project and collection holding status documents.
type Config struct {
	ProjectID  string
	Collection string
}

// statusDoc is the persisted document shape.
type statusDoc struct {
	JobID       int64      `firestore:"job_id"`
	Status      string     `firestore:"status"`
	Depth       *int64     `firestore:"depth"`
	LinksCount  *int64     `firestore:"links_count"`
	CreatedAt   *time.Time `firestore:"created_at"`
	CompletedAt *time.Time `firestore:"completed_at"`
}

// StatusStore implements jobs.StatusStore.
type StatusStore struct {
	client     *firestore.Client
	collection string
}

// NewClient creates a Firestore client for projectID. FIRESTORE_EMULATOR_HOST is honoured.
func NewClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// New wraps client.
func New(client *firestore.Client, cfg Config) (*StatusStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "jobs"
	}
	return &StatusStore{client: client, collection: cfg.Collection}, nil
}

func (s *StatusStore) doc(jobID int64) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(strconv.FormatInt(jobID, 10))
}

// GetStatus reports found=false when the document does not exist.
func (s *StatusStore) GetStatus(ctx context.Context, jobID int64) (jobs.StatusRecord, bool, error) {
	snap, err := s.doc(jobID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return jobs.StatusRecord{}, false, nil
	}
	if err != nil {
		return jobs.StatusRecord{}, false, jobs.PrimaryError(storeName, "get status", err)
	}
	var d statusDoc
	if err := snap.DataTo(&d); err != nil {
		return jobs.StatusRecord{}, false, jobs.PrimaryError(storeName, "decode status", err)
	}
	rec := fromDoc(d)
	rec.JobID = jobID
	return rec, true, nil
}

// PutStatus overwrites the document for rec.JobID.
func (s *StatusStore) PutStatus(ctx context.Context, rec jobs.StatusRecord) error {
	if _, err := s.doc(rec.JobID).Set(ctx, toDoc(rec)); err != nil {
		return jobs.PrimaryError(storeName, "put status", err)
	}
	return nil
}

// DeleteStatus removes the document. Deleting a missing document succeeds.
func (s *StatusStore) DeleteStatus(ctx context.Context, jobID int64) error {
	if _, err := s.doc(jobID).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return jobs.PrimaryError(storeName, "delete status", err)
	}
	return nil
}

func toDoc(rec jobs.StatusRecord) statusDoc {
	return statusDoc{
		JobID:       rec.JobID,
		Status:      string(rec.Status),
		Depth:       widen(rec.Depth),
		LinksCount:  widen(rec.LinksCount),
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.CompletedAt,
	}
}

func fromDoc(d statusDoc) jobs.StatusRecord {
	return jobs.StatusRecord{
		JobID:       d.JobID,
		Status:      jobs.Status(d.Status),
		Depth:       narrow(d.Depth),
		LinksCount:  narrow(d.LinksCount),
		CreatedAt:   d.CreatedAt,
		CompletedAt: d.CompletedAt,
	}
}

func widen(v *int) *int64 {
	if v == nil {
		return nil
	}
	w := int64(*v)
	return &w
}

func narrow(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
