package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

const (
	defaultVertexModel    = "gemini-1.5-flash"
	defaultVertexLocation = "us-central1"
)

type vertexProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func newVertex(ctx context.Context, cfg Config) (*vertexProvider, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("vertex project id is required")
	}
	location := cfg.Location
	if location == "" {
		location = defaultVertexLocation
	}
	name := cfg.Model
	if name == "" {
		name = defaultVertexModel
	}
	client, err := genai.NewClient(ctx, cfg.ProjectID, location)
	if err != nil {
		return nil, fmt.Errorf("create vertex client: %w", err)
	}
	model := client.GenerativeModel(name)
	model.SetMaxOutputTokens(int32(maxTokens(cfg)))
	return &vertexProvider{client: client, model: model}, nil
}

func (p *vertexProvider) Caption(ctx context.Context, image []byte, mediaType string) (string, error) {
	format := strings.TrimPrefix(mediaType, "image/")
	if format == "" {
		format = "jpeg"
	}
	resp, err := p.model.GenerateContent(ctx, genai.ImageData(format, image), genai.Text(captionPrompt))
	if err != nil {
		return "", fmt.Errorf("vertex generate: %w", err)
	}
	return responseText(resp)
}

func (p *vertexProvider) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := p.model.GenerateContent(ctx, genai.Text(summarizePrompt+text))
	if err != nil {
		return "", fmt.Errorf("vertex generate: %w", err)
	}
	return responseText(resp)
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("vertex returned no candidates")
	}
	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	if out.Len() == 0 {
		return "", errors.New("vertex returned no text")
	}
	return strings.TrimSpace(out.String()), nil
}
