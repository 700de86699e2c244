package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

type anthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func newAnthropic(cfg Config, opts ...anthropicoption.RequestOption) (*anthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	opts = append([]anthropicoption.RequestOption{anthropicoption.WithAPIKey(cfg.APIKey)}, opts...)
	return &anthropicProvider{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens(cfg)),
	}, nil
}

func (p *anthropicProvider) Caption(ctx context.Context, image []byte, mediaType string) (string, error) {
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return p.complete(ctx,
		anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(image)),
		anthropic.NewTextBlock(captionPrompt),
	)
}

func (p *anthropicProvider) Summarize(ctx context.Context, text string) (string, error) {
	return p.complete(ctx, anthropic.NewTextBlock(summarizePrompt+text))
}

func (p *anthropicProvider) complete(ctx context.Context, blocks ...anthropic.ContentBlockParamUnion) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("anthropic returned no text")
	}
	return strings.TrimSpace(out.String()), nil
}
