package jobs

import (
	"context"
	"time"
)

// IdentityStore is the authoritative relational store of jobs and their results.
type IdentityStore interface {
	CreateJob(ctx context.Context, url string, ownerID *int64) (int64, error)
	GetJob(ctx context.Context, id int64) (Job, error)
	ListJobs(ctx context.Context, ownerID int64, offset, limit int) ([]Job, int, error)
	Results(ctx context.Context, id int64) ([]PageResult, error)
	DeleteJob(ctx context.Context, id int64) error
}

// CascadeStore exposes the batched reads and deletes used to purge a job's children.
type CascadeStore interface {
	// ListImagePaths returns up to limit image rows with id > afterID, ordered by id.
	ListImagePaths(ctx context.Context, jobID, afterID int64, limit int) ([]ImagePath, error)
	// ListChildIDs returns up to limit row ids of table belonging to the job.
	ListChildIDs(ctx context.Context, table ChildTable, jobID int64, limit int) ([]int64, error)
	// DeleteChildren removes exactly the given ids from table.
	DeleteChildren(ctx context.Context, table ChildTable, ids []int64) (int64, error)
}

// StatusStore holds the mutable status records.
type StatusStore interface {
	// GetStatus returns found=false when the record is absent.
	GetStatus(ctx context.Context, jobID int64) (StatusRecord, bool, error)
	PutStatus(ctx context.Context, rec StatusRecord) error
	// DeleteStatus is a no-op when the record is absent.
	DeleteStatus(ctx context.Context, jobID int64) error
}

// PendingCounter tracks outstanding crawl work per job.
type PendingCounter interface {
	Seed(ctx context.Context, jobID int64, value int64) error
	Decrement(ctx context.Context, jobID int64) (int64, error)
	Get(ctx context.Context, jobID int64) (int64, bool, error)
}

// ObjectStore stores binary artifacts addressed by bucket and key.
type ObjectStore interface {
	// PutObject writes data under key in the store's default bucket and returns its URI.
	PutObject(ctx context.Context, key, contentType string, data []byte) (string, error)
	// GetObject returns ErrObjectNotFound when the key does not exist.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	// DeleteObjects removes keys from bucket. Missing keys are not an error.
	DeleteObjects(ctx context.Context, bucket string, keys []string) error
}

// SearchIndex is the optional full-text index of page content.
type SearchIndex interface {
	DeleteByJob(ctx context.Context, jobID int64) error
}

// Publisher sends a JSON payload to a topic and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ReceiveFunc handles one delivery. Returning nil acknowledges it; any error
// returns it to the queue for redelivery.
type ReceiveFunc func(ctx context.Context, data []byte) error

// Subscriber pulls messages from a subscription one at a time until ctx ends.
type Subscriber interface {
	Receive(ctx context.Context, subscription string, fn ReceiveFunc) error
}

// Clock abstracts wall time for deterministic tests.
type Clock interface {
	Now() time.Time
}
