package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

const defaultOllamaModel = "llama3"

type ollamaProvider struct {
	client    *ollama.Client
	model     string
	maxTokens int
}

// newOllama talks to cfg.BaseURL, or to OLLAMA_HOST when it is empty.
func newOllama(cfg Config) (*ollamaProvider, error) {
	var client *ollama.Client
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return nil, fmt.Errorf("invalid ollama base url %q", cfg.BaseURL)
		}
		client = ollama.NewClient(base, http.DefaultClient)
	} else {
		var err error
		client, err = ollama.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &ollamaProvider{client: client, model: model, maxTokens: maxTokens(cfg)}, nil
}

func (p *ollamaProvider) Summarize(ctx context.Context, text string) (string, error) {
	stream := false
	req := &ollama.GenerateRequest{
		Model:   p.model,
		Prompt:  summarizePrompt + text,
		Stream:  &stream,
		Options: map[string]any{"num_predict": p.maxTokens},
	}
	var out strings.Builder
	err := p.client.Generate(ctx, req, func(resp ollama.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	summary := strings.TrimSpace(out.String())
	if summary == "" {
		return "", errors.New("ollama returned no text")
	}
	return summary, nil
}
