package provider

import "context"

// Fixed outputs of the mock provider.
const (
	MockExplanation = "Mocked explanation for testing"
	MockSummary     = "Mocked summary for testing"
)

// MockCaptioner returns MockExplanation for every image.
type MockCaptioner struct{}

// Caption implements Captioner.
func (MockCaptioner) Caption(context.Context, []byte, string) (string, error) {
	return MockExplanation, nil
}

// MockSummarizer returns MockSummary for every text.
type MockSummarizer struct{}

// Summarize implements Summarizer.
func (MockSummarizer) Summarize(context.Context, string) (string, error) {
	return MockSummary, nil
}

type noVisionCaptioner struct{}

func (noVisionCaptioner) Caption(context.Context, []byte, string) (string, error) {
	return NoVisionExplanation, nil
}
