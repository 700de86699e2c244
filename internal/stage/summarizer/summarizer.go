// Package summarizer condenses crawled page content and forwards the summary
// to the writer and, optionally, the search indexer.
package summarizer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/logging"
	"github.com/JakeFAU/crawl-pipeline/internal/provider"
	"github.com/JakeFAU/crawl-pipeline/internal/worker"
)

// Unavailable replaces the summary when summarization fails.
const Unavailable = "Summary unavailable"

const defaultMaxInputWords = 3000

// Config names the downstream topics. An empty IndexerTopic disables indexing.
type Config struct {
	WriterTopic   string
	IndexerTopic  string
	MaxInputWords int
}

// Handler implements worker.Handler for page summarization.
type Handler struct {
	summarizer provider.Summarizer
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Handler.
func New(summarizer provider.Summarizer, cfg Config, logger *zap.Logger) *Handler {
	if cfg.MaxInputWords <= 0 {
		cfg.MaxInputWords = defaultMaxInputWords
	}
	logger = logging.OrNop(logger)
	return &Handler{summarizer: summarizer, cfg: cfg, logger: logger}
}

// Name implements worker.Handler.
func (h *Handler) Name() string { return "summarizer" }

// Handle summarizes the page content.
func (h *Handler) Handle(ctx context.Context, body []byte) ([]worker.Outbound, error) {
	var task jobs.SummaryTask
	if err := jobs.Decode(body, &task); err != nil {
		return nil, err
	}
	if task.JobID <= 0 {
		return nil, jobs.Malformed("job_id must be positive")
	}
	if strings.TrimSpace(task.Content) == "" {
		return nil, jobs.Malformed("content is required")
	}

	summary, err := h.summarizer.Summarize(ctx, Truncate(task.Content, h.cfg.MaxInputWords))
	if err != nil || strings.TrimSpace(summary) == "" {
		h.logger.Warn("summarization failed",
			zap.Int64("job_id", task.JobID), zap.String("url", task.URL), zap.Error(err))
		summary = Unavailable
	}

	forwards := []worker.Outbound{{
		Topic: h.cfg.WriterTopic,
		Payload: jobs.PageSummary{
			Type:    jobs.WriterTypePageSummary,
			JobID:   task.JobID,
			URL:     task.URL,
			Summary: summary,
		},
	}}
	if h.cfg.IndexerTopic != "" {
		forwards = append(forwards, worker.Outbound{
			Topic: h.cfg.IndexerTopic,
			Payload: jobs.IndexDocument{
				URL:     task.URL,
				Content: task.Content,
				Summary: summary,
				JobID:   task.JobID,
				OwnerID: task.OwnerID,
			},
		})
	}
	return forwards, nil
}

// Truncate keeps the first maxWords whitespace-separated words of text.
func Truncate(text string, maxWords int) string {
	words := strings.Fields(text)
	if maxWords <= 0 || len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ")
}
