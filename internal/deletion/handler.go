package deletion

import (
	"context"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/worker"
)

// Handler adapts the Orchestrator to the deletion queue.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHandler constructs a Handler.
func NewHandler(o *Orchestrator) *Handler {
	return &Handler{orchestrator: o}
}

// Name implements worker.Handler.
func (h *Handler) Name() string { return "deletion" }

// Handle runs Cleanup for the requested job. Failures are redelivered.
func (h *Handler) Handle(ctx context.Context, body []byte) ([]worker.Outbound, error) {
	var task jobs.DeletionTask
	if err := jobs.Decode(body, &task); err != nil {
		return nil, err
	}
	if task.JobID <= 0 {
		return nil, jobs.Malformed("job_id must be positive")
	}
	if err := h.orchestrator.Cleanup(ctx, task.JobID); err != nil {
		return nil, err
	}
	return nil, nil
}
