package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/provider"
)

type recordingSummarizer struct {
	input string
	err   error
}

func (r *recordingSummarizer) Summarize(_ context.Context, text string) (string, error) {
	r.input = text
	if r.err != nil {
		return "", r.err
	}
	return "concise", nil
}

func TestHandleForwardsSummaryAndIndexDocument(t *testing.T) {
	t.Parallel()

	s := &recordingSummarizer{}
	h := New(s, Config{WriterTopic: "writer", IndexerTopic: "indexer"}, zap.NewNop())

	out, err := h.Handle(context.Background(),
		[]byte(`{"job_id":3,"owner_id":9,"url":"https://e.com/","content":"prices rose in March"}`))
	require.NoError(t, err)
	require.Len(t, out, 2)

	summary := out[0].Payload.(jobs.PageSummary)
	require.Equal(t, "writer", out[0].Topic)
	require.Equal(t, jobs.WriterTypePageSummary, summary.Type)
	require.Equal(t, "concise", summary.Summary)

	doc := out[1].Payload.(jobs.IndexDocument)
	require.Equal(t, "indexer", out[1].Topic)
	require.Equal(t, "prices rose in March", doc.Content)
	require.Equal(t, int64(9), *doc.OwnerID)
}

func TestHandleWithoutIndexer(t *testing.T) {
	t.Parallel()

	h := New(provider.MockSummarizer{}, Config{WriterTopic: "writer"}, nil)
	out, err := h.Handle(context.Background(), []byte(`{"job_id":3,"url":"u","content":"text"}`))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, provider.MockSummary, out[0].Payload.(jobs.PageSummary).Summary)
}

func TestHandleSummarizerFailureUsesPlaceholder(t *testing.T) {
	t.Parallel()

	h := New(&recordingSummarizer{err: errors.New("quota")}, Config{WriterTopic: "writer"}, nil)
	out, err := h.Handle(context.Background(), []byte(`{"job_id":3,"url":"u","content":"text"}`))
	require.NoError(t, err)
	require.Equal(t, Unavailable, out[0].Payload.(jobs.PageSummary).Summary)
}

func TestHandleTruncatesInput(t *testing.T) {
	t.Parallel()

	s := &recordingSummarizer{}
	h := New(s, Config{WriterTopic: "writer", MaxInputWords: 3}, nil)
	_, err := h.Handle(context.Background(), []byte(`{"job_id":1,"content":"one two  three four five"}`))
	require.NoError(t, err)
	require.Equal(t, "one two three", s.input)
}

func TestHandleRejectsMalformed(t *testing.T) {
	t.Parallel()

	h := New(provider.MockSummarizer{}, Config{WriterTopic: "writer"}, nil)
	for _, body := range []string{`"text"`, `{"content":"x"}`, `{"job_id":1,"content":"   "}`} {
		_, err := h.Handle(context.Background(), []byte(body))
		require.ErrorIs(t, err, jobs.ErrMalformedMessage, body)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a b", Truncate("a b", 5))
	require.Equal(t, "a b", Truncate("a\nb\tc", 2))
	long := strings.Repeat("w ", 4000)
	require.Len(t, strings.Fields(Truncate(long, defaultMaxInputWords)), defaultMaxInputWords)
}
