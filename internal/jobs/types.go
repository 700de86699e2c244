// Package jobs defines the crawl job domain: identities, status records, the
// store and queue contracts every component depends on, and the message
// envelopes exchanged between pipeline stages.
package jobs

import (
	"fmt"
	"time"
)

// Status is the lifecycle state reported for a job.
type Status string

const (
	// StatusPending is written at dispatch time.
	StatusPending Status = "PENDING"
	// StatusRunning is written by the crawler once it picks the job up.
	StatusRunning Status = "RUNNING"
	// StatusCompleted marks a finished crawl.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed marks an aborted crawl.
	StatusFailed Status = "FAILED"
	// StatusUnknown is only produced on read when no status record exists.
	StatusUnknown Status = "UNKNOWN"
)

const (
	// DefaultDepth is reported when a status record carries no depth.
	DefaultDepth = 1
	// DefaultLinksCount is reported when a status record carries no link count.
	DefaultLinksCount = 0
)

// Job is the authoritative identity row held by the relational store.
// Summary and ScrapedAt are projected from the seed page on read.
type Job struct {
	ID        int64
	URL       string
	OwnerID   *int64
	Summary   *string
	ScrapedAt *time.Time
}

// OwnedBy reports whether ownerID owns the job. Jobs without an owner are owned by nobody.
func (j Job) OwnedBy(ownerID int64) bool {
	return j.OwnerID != nil && *j.OwnerID == ownerID
}

// StatusRecord is the mutable progress document keyed by job id.
type StatusRecord struct {
	JobID       int64
	Status      Status
	Depth       *int
	LinksCount  *int
	CreatedAt   *time.Time
	CompletedAt *time.Time
}

// View is the client-visible merge of a Job and its status record.
type View struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	OwnerID     *int64     `json:"owner_id,omitempty"`
	Status      Status     `json:"status"`
	Depth       int        `json:"depth"`
	LinksCount  int        `json:"links_count"`
	CreatedAt   *time.Time `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Summary     *string    `json:"summary,omitempty"`
	ScrapedAt   *time.Time `json:"scraped_at,omitempty"`
}

// Merge combines a job with its status record. A nil record yields the
// UNKNOWN defaults.
func Merge(job Job, rec *StatusRecord) View {
	view := View{
		ID:         job.ID,
		URL:        job.URL,
		OwnerID:    job.OwnerID,
		Status:     StatusUnknown,
		Depth:      DefaultDepth,
		LinksCount: DefaultLinksCount,
		Summary:    job.Summary,
		ScrapedAt:  job.ScrapedAt,
	}
	if rec == nil {
		return view
	}
	if rec.Status != "" {
		view.Status = rec.Status
	}
	if rec.Depth != nil {
		view.Depth = *rec.Depth
	}
	if rec.LinksCount != nil {
		view.LinksCount = *rec.LinksCount
	}
	view.CreatedAt = rec.CreatedAt
	view.CompletedAt = rec.CompletedAt
	return view
}

// PageResult is one crawled page with its images.
type PageResult struct {
	ID      int64         `json:"id"`
	URL     string        `json:"url"`
	Summary *string       `json:"summary,omitempty"`
	Images  []ImageResult `json:"images"`
}

// ImageResult is an image discovered on a page.
type ImageResult struct {
	ID          int64   `json:"id"`
	URL         string  `json:"url"`
	Explanation *string `json:"explanation,omitempty"`
}

// ImagePath is the (id, object path) projection scanned during object purge.
type ImagePath struct {
	ID   int64
	Path *string
}

// ChildTable names a relational table whose rows reference a job.
type ChildTable string

const (
	// TablePageLinks holds outbound links discovered per page.
	TablePageLinks ChildTable = "page_links"
	// TablePageImages holds images discovered per page.
	TablePageImages ChildTable = "page_images"
	// TablePages holds crawled pages.
	TablePages ChildTable = "pages"
)

// CascadeOrder lists child tables leaves first.
var CascadeOrder = []ChildTable{TablePageLinks, TablePageImages, TablePages}

// PendingKey returns the cache key holding a job's outstanding work count.
func PendingKey(jobID int64) string {
	return fmt.Sprintf("job:%d:pending", jobID)
}
