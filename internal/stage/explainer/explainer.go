// Package explainer captions stored images with the configured vision model.
package explainer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/logging"
	"github.com/JakeFAU/crawl-pipeline/internal/provider"
	"github.com/JakeFAU/crawl-pipeline/internal/worker"
)

// Unavailable replaces the explanation when captioning fails.
const Unavailable = "Explanation unavailable"

// Config names the downstream topic.
type Config struct {
	WriterTopic string
}

// Handler implements worker.Handler for image captioning.
type Handler struct {
	objects   jobs.ObjectStore
	captioner provider.Captioner
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Handler.
func New(objects jobs.ObjectStore, captioner provider.Captioner, cfg Config, logger *zap.Logger) *Handler {
	logger = logging.OrNop(logger)
	return &Handler{objects: objects, captioner: captioner, cfg: cfg, logger: logger}
}

// Name implements worker.Handler.
func (h *Handler) Name() string { return "explainer" }

// Handle fetches the stored image, captions it and forwards the explanation.
func (h *Handler) Handle(ctx context.Context, body []byte) ([]worker.Outbound, error) {
	var task jobs.ExplainTask
	if err := jobs.Decode(body, &task); err != nil {
		return nil, err
	}
	if strings.TrimSpace(task.S3Path) == "" {
		return nil, jobs.Malformed("s3_path is required")
	}
	if task.JobID <= 0 {
		return nil, jobs.Malformed("job_id must be positive")
	}
	uri, err := jobs.ParseObjectURI(task.S3Path)
	if err != nil {
		return nil, jobs.Malformed("%v", err)
	}

	data, err := h.objects.GetObject(ctx, uri.Bucket, uri.Key)
	if errors.Is(err, jobs.ErrObjectNotFound) {
		return nil, jobs.Malformed("object %s no longer exists", task.S3Path)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", task.S3Path, err)
	}

	logger := h.logger.With(zap.Int64("job_id", task.JobID), zap.String("s3_path", task.S3Path))
	explanation, err := h.captioner.Caption(ctx, data, mediaType(data, uri.Key))
	if err != nil || strings.TrimSpace(explanation) == "" {
		logger.Warn("caption failed", zap.Error(err))
		explanation = Unavailable
	}

	return []worker.Outbound{{
		Topic: h.cfg.WriterTopic,
		Payload: jobs.ImageExplanation{
			Type:        jobs.WriterTypeImageExplanation,
			URL:         task.ImageURL,
			OriginalURL: task.OriginalURL,
			PageURL:     task.OriginalURL,
			JobID:       task.JobID,
			S3Path:      task.S3Path,
			Explanation: explanation,
		},
	}}, nil
}

// mediaType sniffs the image bytes and falls back to the key extension.
func mediaType(data []byte, key string) string {
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if byExt := mime.TypeByExtension(path.Ext(key)); strings.HasPrefix(byExt, "image/") {
		return byExt
	}
	return "image/jpeg"
}
