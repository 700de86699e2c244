// Package state answers client reads about jobs by merging the identity row
// with its status record, and accepts deletion requests.
package state

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/logging"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Config names the deletion topic. An empty topic disables deletion requests.
type Config struct {
	DeletionTopic string
}

// Reader serves get, list, results and delete. The status store and
// publisher may be nil.
type Reader struct {
	identity  jobs.IdentityStore
	status    jobs.StatusStore
	publisher jobs.Publisher
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Reader.
func New(identity jobs.IdentityStore, status jobs.StatusStore, publisher jobs.Publisher, cfg Config, logger *zap.Logger) *Reader {
	logger = logging.OrNop(logger)
	return &Reader{identity: identity, status: status, publisher: publisher, cfg: cfg, logger: logger}
}

// Get returns the merged view of one job.
func (r *Reader) Get(ctx context.Context, id int64) (jobs.View, error) {
	job, err := r.identity.GetJob(ctx, id)
	if err != nil {
		return jobs.View{}, fmt.Errorf("get job %d: %w", id, err)
	}
	return jobs.Merge(job, r.lookupStatus(ctx, id)), nil
}

// List pages the owner's jobs, newest first, and reports the owner's total.
func (r *Reader) List(ctx context.Context, ownerID int64, offset, limit int) ([]jobs.View, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	page, total, err := r.identity.ListJobs(ctx, ownerID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs for owner %d: %w", ownerID, err)
	}
	views := make([]jobs.View, 0, len(page))
	for _, job := range page {
		views = append(views, jobs.Merge(job, r.lookupStatus(ctx, job.ID)))
	}
	return views, total, nil
}

// Results lists the job's pages with their images.
func (r *Reader) Results(ctx context.Context, id int64) ([]jobs.PageResult, error) {
	pages, err := r.identity.Results(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("results for job %d: %w", id, err)
	}
	return pages, nil
}

// Delete enqueues a deletion request after checking ownership. It reports
// false when no deletion topic is configured. Nothing is deleted here.
func (r *Reader) Delete(ctx context.Context, id, requesterID int64) (bool, error) {
	job, err := r.identity.GetJob(ctx, id)
	if err != nil {
		return false, fmt.Errorf("get job %d: %w", id, err)
	}
	if !job.OwnedBy(requesterID) {
		return false, fmt.Errorf("job %d: %w", id, jobs.ErrNotAuthorized)
	}
	if r.cfg.DeletionTopic == "" || r.publisher == nil {
		r.logger.Warn("deletion requested but no deletion topic is configured", zap.Int64("job_id", id))
		return false, nil
	}
	msgID, err := r.publisher.Publish(ctx, r.cfg.DeletionTopic, jobs.DeletionTask{JobID: id})
	if err != nil {
		return false, fmt.Errorf("enqueue deletion of job %d: %w", id, err)
	}
	r.logger.Info("deletion enqueued", zap.Int64("job_id", id), zap.String("message_id", msgID))
	return true, nil
}

// lookupStatus returns nil when the record is absent or unreadable.
func (r *Reader) lookupStatus(ctx context.Context, id int64) *jobs.StatusRecord {
	if r.status == nil {
		return nil
	}
	rec, found, err := r.status.GetStatus(ctx, id)
	if err != nil {
		r.logger.Warn("status read failed; reporting defaults", zap.Int64("job_id", id), zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}
	return &rec
}
