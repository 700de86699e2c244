package jobs

import (
	"bytes"
	"encoding/json"
)

// Writer message discriminators.
const (
	WriterTypeImageExplanation = "image_explanation"
	WriterTypePageSummary      = "page_summary"
)

// CrawlTask is the first message of every job.
type CrawlTask struct {
	URL     string `json:"url"`
	Depth   int    `json:"depth"`
	JobID   int64  `json:"job_id"`
	OwnerID *int64 `json:"owner_id"`
}

// DeletionTask asks the orchestrator to reclaim a job.
type DeletionTask struct {
	JobID int64 `json:"job_id"`
}

// ImageTask asks the extractor to download one image.
// ImageURL is accepted as an alias of URL.
type ImageTask struct {
	URL         string `json:"url"`
	ImageURL    string `json:"image_url,omitempty"`
	OriginalURL string `json:"original_url"`
	JobID       int64  `json:"job_id"`
}

// ExplainTask asks the explainer to caption a stored image.
type ExplainTask struct {
	S3Path      string `json:"s3_path"`
	JobID       int64  `json:"job_id"`
	ImageURL    string `json:"image_url"`
	OriginalURL string `json:"original_url"`
}

// SummaryTask asks the summarizer to condense page content.
type SummaryTask struct {
	JobID   int64  `json:"job_id"`
	OwnerID *int64 `json:"owner_id"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// ImageExplanation is the writer message for an image.
type ImageExplanation struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	OriginalURL string `json:"original_url"`
	PageURL     string `json:"page_url"`
	JobID       int64  `json:"job_id"`
	S3Path      string `json:"s3_path,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// PageSummary is the writer message for a page.
type PageSummary struct {
	Type    string `json:"type"`
	JobID   int64  `json:"job_id"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

// IndexDocument is forwarded to the indexer when one is configured.
type IndexDocument struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Summary string `json:"summary"`
	JobID   int64  `json:"job_id"`
	OwnerID *int64 `json:"owner_id"`
}

// Decode unmarshals a queue body. Anything that is not a JSON object is malformed.
func Decode(body []byte, v any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Malformed("body is not a JSON object")
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return Malformed("decode body: %v", err)
	}
	return nil
}
