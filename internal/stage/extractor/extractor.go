// Package extractor downloads page images into the object store and hands
// them to the explainer.
package extractor

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/crawl-pipeline/internal/fetcher/colly"
	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/logging"
	"github.com/JakeFAU/crawl-pipeline/internal/worker"
)

// Fetcher downloads a single resource.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Resource, error)
}

// Limiter spaces out downloads per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Namer derives a stable object name from a source URL.
type Namer interface {
	NameFor(source string) string
}

// Config names the downstream topics.
type Config struct {
	WriterTopic  string
	ExplainTopic string
}

// Handler implements worker.Handler for image extraction.
type Handler struct {
	fetcher Fetcher
	objects jobs.ObjectStore
	namer   Namer
	limiter Limiter
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Handler.
func New(fetcher Fetcher, objects jobs.ObjectStore, namer Namer, cfg Config, logger *zap.Logger) *Handler {
	logger = logging.OrNop(logger)
	return &Handler{fetcher: fetcher, objects: objects, namer: namer, cfg: cfg, logger: logger}
}

// WithLimiter throttles downloads through l.
func (h *Handler) WithLimiter(l Limiter) *Handler {
	h.limiter = l
	return h
}

// Name implements worker.Handler.
func (h *Handler) Name() string { return "extractor" }

// Handle downloads and stores the image. Download or upload failures leave
// the object path empty; the writer message is forwarded regardless.
func (h *Handler) Handle(ctx context.Context, body []byte) ([]worker.Outbound, error) {
	var task jobs.ImageTask
	if err := jobs.Decode(body, &task); err != nil {
		return nil, err
	}
	imageURL := task.URL
	if imageURL == "" {
		imageURL = task.ImageURL
	}
	if strings.TrimSpace(imageURL) == "" {
		return nil, jobs.Malformed("url is required")
	}
	if task.JobID <= 0 {
		return nil, jobs.Malformed("job_id must be positive")
	}

	logger := h.logger.With(zap.Int64("job_id", task.JobID), zap.String("image_url", imageURL))
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx, imageURL); err != nil {
			return nil, fmt.Errorf("throttle download: %w", err)
		}
	}
	objectPath := h.store(ctx, logger, task.JobID, imageURL)

	forwards := []worker.Outbound{{
		Topic: h.cfg.WriterTopic,
		Payload: jobs.ImageExplanation{
			Type:        jobs.WriterTypeImageExplanation,
			URL:         imageURL,
			OriginalURL: task.OriginalURL,
			PageURL:     task.OriginalURL,
			JobID:       task.JobID,
			S3Path:      objectPath,
		},
	}}
	if objectPath != "" && h.cfg.ExplainTopic != "" {
		forwards = append(forwards, worker.Outbound{
			Topic: h.cfg.ExplainTopic,
			Payload: jobs.ExplainTask{
				S3Path:      objectPath,
				JobID:       task.JobID,
				ImageURL:    imageURL,
				OriginalURL: task.OriginalURL,
			},
		})
	}
	return forwards, nil
}

func (h *Handler) store(ctx context.Context, logger *zap.Logger, jobID int64, imageURL string) string {
	res, err := h.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		logger.Warn("image download failed", zap.Error(err))
		return ""
	}
	key := ObjectKey(jobID, h.namer.NameFor(imageURL), Extension(res.ContentType, imageURL))
	uri, err := h.objects.PutObject(ctx, key, res.ContentType, res.Body)
	if err != nil {
		logger.Warn("image upload failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	logger.Debug("image stored", zap.String("uri", uri), zap.Int("bytes", len(res.Body)))
	return uri
}

// ObjectKey lays out objects per job so a job's images share a prefix.
func ObjectKey(jobID int64, name, ext string) string {
	return fmt.Sprintf("%d/%s.%s", jobID, name, ext)
}

var contentTypeExtensions = map[string]string{
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/png":     "png",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
	"image/bmp":     "bmp",
	"image/avif":    "avif",
}

const maxURLExtension = 5

// Extension picks the object extension from the content type, then the URL
// path, and falls back to "bin".
func Extension(contentType, rawURL string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := contentTypeExtensions[strings.ToLower(mediaType)]; ok {
			return ext
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
		if ext != "" && len(ext) <= maxURLExtension && isAlnum(ext) {
			return ext
		}
	}
	return "bin"
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
