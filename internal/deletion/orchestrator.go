// Package deletion reclaims every artifact of a crawl job: stored objects,
// search documents, relational children, the status record and finally the
// job row itself. Each step re-queries what remains, so a run interrupted at
// any point can simply be repeated.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/logging"
	"github.com/JakeFAU/crawl-pipeline/internal/metrics"
	"github.com/JakeFAU/crawl-pipeline/internal/telemetry"
)

// State is a milestone of the deletion lifecycle.
type State string

// Deletion states, in the order they are reached.
const (
	StateRequested       State = "Requested"
	StateObjectsPurged   State = "ObjectsPurged"
	StateIndexPurged     State = "IndexPurged"
	StateRelationsPurged State = "RelationsPurged"
	StateStatusPurged    State = "StatusPurged"
	StateDeleted         State = "Deleted"
)

const (
	defaultBatchSize            = 5000
	defaultObjectBatchSize      = 1000
	defaultMaxObjectsPerRequest = 1000
)

// Config tunes batch sizes.
type Config struct {
	BatchSize            int
	ObjectBatchSize      int
	MaxObjectsPerRequest int
}

// Stores groups the backends the orchestrator purges. Index and Status may be nil.
type Stores struct {
	Identity jobs.IdentityStore
	Cascade  jobs.CascadeStore
	Objects  jobs.ObjectStore
	Index    jobs.SearchIndex
	Status   jobs.StatusStore
}

type step struct {
	name     string
	reaches  State
	optional bool
	run      func(ctx context.Context, jobID int64) error
}

// Orchestrator runs the deletion steps strictly in order.
type Orchestrator struct {
	stores Stores
	cfg    Config
	logger *zap.Logger
	steps  []step
}

// New constructs an Orchestrator.
func New(stores Stores, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.ObjectBatchSize <= 0 {
		cfg.ObjectBatchSize = defaultObjectBatchSize
	}
	if cfg.MaxObjectsPerRequest <= 0 {
		cfg.MaxObjectsPerRequest = defaultMaxObjectsPerRequest
	}
	logger = logging.OrNop(logger)
	o := &Orchestrator{stores: stores, cfg: cfg, logger: logger}
	o.steps = []step{
		{name: "objects", reaches: StateObjectsPurged, run: o.purgeObjects},
		{name: "index", reaches: StateIndexPurged, optional: true, run: o.purgeIndex},
		{name: "relations", reaches: StateRelationsPurged, run: o.purgeRelations},
		{name: "status", reaches: StateStatusPurged, run: o.purgeStatus},
		{name: "job", reaches: StateDeleted, run: o.deleteJob},
	}
	return o
}

// Cleanup deletes everything belonging to jobID. A failing mandatory step
// aborts the run; the index step only logs its failures. Cleaning up a job
// that is already partly or fully gone succeeds.
func (o *Orchestrator) Cleanup(ctx context.Context, jobID int64) error {
	logger := o.logger.With(zap.Int64("job_id", jobID))
	state := StateRequested
	logger.Info("deletion started")

	ctx, span := telemetry.Tracer().Start(ctx, "deletion.cleanup",
		trace.WithAttributes(attribute.Int64("job_id", jobID)))
	defer span.End()

	for _, s := range o.steps {
		if err := o.runStep(ctx, s, jobID); err != nil {
			if s.optional {
				logger.Warn("optional deletion step failed", zap.String("step", s.name), zap.Error(err))
				metrics.ObserveDeletionStep(s.name, "swallowed")
				state = s.reaches
				continue
			}
			metrics.ObserveDeletionStep(s.name, "failed")
			span.RecordError(err)
			span.SetStatus(codes.Error, "step "+s.name+" failed")
			logger.Error("deletion aborted",
				zap.String("step", s.name), zap.String("state", string(state)), zap.Error(err))
			return fmt.Errorf("delete job %d: step %s: %w", jobID, s.name, err)
		}
		metrics.ObserveDeletionStep(s.name, "completed")
		state = s.reaches
		logger.Debug("deletion step completed", zap.String("step", s.name), zap.String("state", string(state)))
	}
	logger.Info("deletion completed")
	span.SetAttributes(attribute.String("state", string(state)))
	return nil
}

func (o *Orchestrator) runStep(ctx context.Context, s step, jobID int64) error {
	ctx, span := telemetry.Tracer().Start(ctx, "deletion."+s.name)
	defer span.End()
	err := s.run(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// purgeObjects walks the job's image rows by id with a one-row look-ahead,
// so N rows take exactly ceil(N/batch) fetches.
func (o *Orchestrator) purgeObjects(ctx context.Context, jobID int64) error {
	if o.stores.Objects == nil {
		return nil
	}
	batch := o.cfg.ObjectBatchSize
	// Keys already requested for this job, across batches.
	seen := make(map[jobs.ObjectURI]struct{})
	var afterID int64
	for {
		rows, err := o.stores.Cascade.ListImagePaths(ctx, jobID, afterID, batch+1)
		if err != nil {
			return err
		}
		more := len(rows) > batch
		if more {
			rows = rows[:batch]
		}
		if err := o.deleteObjects(ctx, rows, seen); err != nil {
			return err
		}
		if !more {
			return nil
		}
		afterID = rows[len(rows)-1].ID
	}
}

func (o *Orchestrator) deleteObjects(ctx context.Context, rows []jobs.ImagePath, seen map[jobs.ObjectURI]struct{}) error {
	byBucket := make(map[string]map[string]struct{})
	for _, row := range rows {
		if row.Path == nil || *row.Path == "" {
			continue
		}
		uri, err := jobs.ParseObjectURI(*row.Path)
		if err != nil {
			o.logger.Debug("skipping unparseable object path", zap.Int64("image_id", row.ID), zap.Error(err))
			continue
		}
		if _, dup := seen[uri]; dup {
			continue
		}
		seen[uri] = struct{}{}
		keys, ok := byBucket[uri.Bucket]
		if !ok {
			keys = make(map[string]struct{})
			byBucket[uri.Bucket] = keys
		}
		keys[uri.Key] = struct{}{}
	}

	buckets := make([]string, 0, len(byBucket))
	for bucket := range byBucket {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)

	for _, bucket := range buckets {
		keys := make([]string, 0, len(byBucket[bucket]))
		for key := range byBucket[bucket] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for start := 0; start < len(keys); start += o.cfg.MaxObjectsPerRequest {
			end := min(start+o.cfg.MaxObjectsPerRequest, len(keys))
			if err := o.stores.Objects.DeleteObjects(ctx, bucket, keys[start:end]); err != nil {
				return fmt.Errorf("bucket %s: %w", bucket, err)
			}
			metrics.AddDeletedObjects(end - start)
		}
	}
	return nil
}

func (o *Orchestrator) purgeIndex(ctx context.Context, jobID int64) error {
	if o.stores.Index == nil {
		return nil
	}
	return o.stores.Index.DeleteByJob(ctx, jobID)
}

// purgeRelations deletes children leaves first, one bounded id batch at a time.
func (o *Orchestrator) purgeRelations(ctx context.Context, jobID int64) error {
	for _, table := range jobs.CascadeOrder {
		for {
			ids, err := o.stores.Cascade.ListChildIDs(ctx, table, jobID, o.cfg.BatchSize)
			if err != nil {
				return fmt.Errorf("%s: %w", table, err)
			}
			if len(ids) == 0 {
				break
			}
			n, err := o.stores.Cascade.DeleteChildren(ctx, table, ids)
			if err != nil {
				return fmt.Errorf("%s: %w", table, err)
			}
			metrics.AddDeletedRows(string(table), n)
			if len(ids) < o.cfg.BatchSize {
				break
			}
		}
	}
	return nil
}

func (o *Orchestrator) purgeStatus(ctx context.Context, jobID int64) error {
	if o.stores.Status == nil {
		return nil
	}
	return o.stores.Status.DeleteStatus(ctx, jobID)
}

func (o *Orchestrator) deleteJob(ctx context.Context, jobID int64) error {
	if _, err := o.stores.Identity.GetJob(ctx, jobID); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return nil
		}
		return err
	}
	return o.stores.Identity.DeleteJob(ctx, jobID)
}
