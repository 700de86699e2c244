// Package dispatcher starts crawl jobs: it registers the job, seeds its
// pending-work counter, records the initial status and enqueues the first
// crawl task.
package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/logging"
	"github.com/JakeFAU/crawl-pipeline/internal/metrics"
)

// Config names the topic crawl tasks are published to.
type Config struct {
	CrawlTopic string
}

// Dispatcher creates jobs. The status store is optional.
type Dispatcher struct {
	identity  jobs.IdentityStore
	counter   jobs.PendingCounter
	status    jobs.StatusStore
	publisher jobs.Publisher
	clock     jobs.Clock
	cfg       Config
	logger    *zap.Logger
}

// New creates a Dispatcher.
func New(
	identity jobs.IdentityStore,
	counter jobs.PendingCounter,
	status jobs.StatusStore,
	publisher jobs.Publisher,
	clock jobs.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	logger = logging.OrNop(logger)
	return &Dispatcher{
		identity:  identity,
		counter:   counter,
		status:    status,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start registers a crawl of url and returns the new job id. Steps run in
// order without rollback: a failure after the job row exists leaves it in
// place.
func (d *Dispatcher) Start(ctx context.Context, url string, depth int, ownerID *int64) (int64, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		metrics.ObserveDispatch(metrics.OutcomeDropped)
		return 0, fmt.Errorf("url is required: %w", jobs.ErrInvalidRequest)
	}
	if depth <= 0 {
		depth = jobs.DefaultDepth
	}

	id, err := d.identity.CreateJob(ctx, url, ownerID)
	if err != nil {
		metrics.ObserveDispatch(metrics.OutcomeFailed)
		return 0, fmt.Errorf("create job: %w", err)
	}
	logger := d.logger.With(zap.Int64("job_id", id), zap.String("url", url))

	if err := d.counter.Seed(ctx, id, 1); err != nil {
		metrics.ObserveDispatch(metrics.OutcomeFailed)
		logger.Error("seeding pending counter failed; job row left without work", zap.Error(err))
		return 0, fmt.Errorf("seed pending counter for job %d: %w", id, err)
	}

	d.writeStatus(ctx, logger, id, depth)

	task := jobs.CrawlTask{URL: url, Depth: depth, JobID: id, OwnerID: ownerID}
	msgID, err := d.publisher.Publish(ctx, d.cfg.CrawlTopic, task)
	if err != nil {
		metrics.ObserveDispatch(metrics.OutcomeFailed)
		logger.Error("publishing crawl task failed", zap.Error(err))
		return 0, fmt.Errorf("publish crawl task for job %d: %w", id, err)
	}

	metrics.ObserveDispatch(metrics.OutcomeAcked)
	logger.Info("job dispatched", zap.Int("depth", depth), zap.String("message_id", msgID))
	return id, nil
}

// writeStatus records PENDING. Failures are logged only.
func (d *Dispatcher) writeStatus(ctx context.Context, logger *zap.Logger, id int64, depth int) {
	if d.status == nil {
		return
	}
	now := d.clock.Now().UTC()
	rec := jobs.StatusRecord{JobID: id, Status: jobs.StatusPending, Depth: &depth, CreatedAt: &now}
	if err := d.status.PutStatus(ctx, rec); err != nil {
		logger.Warn("status write failed; job will report UNKNOWN", zap.Error(err))
	}
}
