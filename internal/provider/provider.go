// Package provider resolves the language-model backends used to caption
// images and summarize pages. Resolution never fails: unknown names and
// backends that cannot be constructed fall back to the mock provider.
package provider

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/metrics"
)

// Captioner describes an image.
type Captioner interface {
	Caption(ctx context.Context, image []byte, mediaType string) (string, error)
}

// Summarizer condenses page text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Name      string
	Model     string
	APIKey    string
	ProjectID string
	Location  string
	MaxTokens int
	// BaseURL overrides the endpoint of self-hosted providers (ollama).
	BaseURL string
}

// Names of the supported providers.
const (
	Mock      = "mock"
	Anthropic = "anthropic"
	Vertex    = "vertex"
	Gemini    = "gemini"
	Ollama    = "ollama"
)

// NoVisionExplanation is returned by captioners of text-only models.
const NoVisionExplanation = "Image explanation unavailable: model does not support vision"

const defaultMaxTokens = 1024

const (
	captionPrompt   = "Describe this image in detail, including any text, charts or diagrams it contains."
	summarizePrompt = "Summarize the following web page content in a few concise paragraphs:\n\n"
)

type entry struct {
	vision        bool
	newCaptioner  func(ctx context.Context, cfg Config) (Captioner, error)
	newSummarizer func(ctx context.Context, cfg Config) (Summarizer, error)
}

var registry = map[string]entry{
	Mock: {
		vision:        true,
		newCaptioner:  func(context.Context, Config) (Captioner, error) { return MockCaptioner{}, nil },
		newSummarizer: func(context.Context, Config) (Summarizer, error) { return MockSummarizer{}, nil },
	},
	Anthropic: {
		vision:        true,
		newCaptioner:  func(_ context.Context, cfg Config) (Captioner, error) { return newAnthropic(cfg) },
		newSummarizer: func(_ context.Context, cfg Config) (Summarizer, error) { return newAnthropic(cfg) },
	},
	Vertex: {
		vision:        true,
		newCaptioner:  func(ctx context.Context, cfg Config) (Captioner, error) { return newVertex(ctx, cfg) },
		newSummarizer: func(ctx context.Context, cfg Config) (Summarizer, error) { return newVertex(ctx, cfg) },
	},
	Ollama: {
		vision:        false,
		newSummarizer: func(_ context.Context, cfg Config) (Summarizer, error) { return newOllama(cfg) },
	},
}

func lookup(name string) (string, entry, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == Gemini {
		key = Vertex
	}
	e, ok := registry[key]
	return key, e, ok
}

// SupportsVision reports whether the named provider can caption images.
// Unknown names resolve to the mock provider, which can.
func SupportsVision(name string) bool {
	_, e, ok := lookup(name)
	if !ok {
		return true
	}
	return e.vision
}

// NewCaptioner resolves cfg.Name to a Captioner.
func NewCaptioner(ctx context.Context, cfg Config, logger *zap.Logger) Captioner {
	logger = logger.With(zap.String("provider", cfg.Name), zap.String("capability", "caption"))
	name, e, ok := lookup(cfg.Name)
	switch {
	case !ok:
		if cfg.Name != "" {
			logger.Warn("unknown provider, using mock")
			metrics.ObserveProviderFallback("caption")
		}
		return MockCaptioner{}
	case !e.vision:
		logger.Info("provider has no vision support; images will not be described")
		return noVisionCaptioner{}
	}
	c, err := e.newCaptioner(ctx, cfg)
	if err != nil {
		logger.Warn("provider unavailable, using mock", zap.String("resolved", name), zap.Error(err))
		metrics.ObserveProviderFallback("caption")
		return MockCaptioner{}
	}
	return c
}

// NewSummarizer resolves cfg.Name to a Summarizer.
func NewSummarizer(ctx context.Context, cfg Config, logger *zap.Logger) Summarizer {
	logger = logger.With(zap.String("provider", cfg.Name), zap.String("capability", "summarize"))
	name, e, ok := lookup(cfg.Name)
	if !ok || e.newSummarizer == nil {
		if cfg.Name != "" {
			logger.Warn("no summarizer for provider, using mock")
			metrics.ObserveProviderFallback("summarize")
		}
		return MockSummarizer{}
	}
	s, err := e.newSummarizer(ctx, cfg)
	if err != nil {
		logger.Warn("provider unavailable, using mock", zap.String("resolved", name), zap.Error(err))
		metrics.ObserveProviderFallback("summarize")
		return MockSummarizer{}
	}
	return s
}

func maxTokens(cfg Config) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return defaultMaxTokens
}
