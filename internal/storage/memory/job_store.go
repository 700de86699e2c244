// Package memory provides in-memory stores for local development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

type pageRow struct {
	id        int64
	jobID     int64
	url       string
	summary   *string
	scrapedAt time.Time
}

type imageRow struct {
	id          int64
	jobID       int64
	pageID      int64
	url         string
	explanation *string
	path        *string
}

type linkRow struct {
	id           int64
	jobID        int64
	sourcePageID int64
	targetURL    string
}

// JobStore implements jobs.IdentityStore and jobs.CascadeStore over maps.
type JobStore struct {
	mu     sync.RWMutex
	nextID int64
	jobs   map[int64]jobs.Job
	pages  map[int64]pageRow
	images map[int64]imageRow
	links  map[int64]linkRow

	// ImagePathCalls counts ListImagePaths invocations.
	ImagePathCalls int
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:   make(map[int64]jobs.Job),
		pages:  make(map[int64]pageRow),
		images: make(map[int64]imageRow),
		links:  make(map[int64]linkRow),
	}
}

func (s *JobStore) id() int64 {
	s.nextID++
	return s.nextID
}

// CreateJob stores a new job and returns its id.
func (s *JobStore) CreateJob(_ context.Context, url string, ownerID *int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.jobs[id] = jobs.Job{ID: id, URL: url, OwnerID: cloneInt64(ownerID)}
	return id, nil
}

// GetJob returns jobs.ErrNotFound for unknown ids.
func (s *JobStore) GetJob(_ context.Context, id int64) (jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return jobs.Job{}, fmt.Errorf("job %d: %w", id, jobs.ErrNotFound)
	}
	return s.withSeedPage(job), nil
}

// ListJobs pages the owner's jobs by id descending.
func (s *JobStore) ListJobs(_ context.Context, ownerID int64, offset, limit int) ([]jobs.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var owned []jobs.Job
	for _, job := range s.jobs {
		if job.OwnedBy(ownerID) {
			owned = append(owned, job)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].ID > owned[j].ID })
	total := len(owned)
	if offset >= total {
		return []jobs.Job{}, total, nil
	}
	end := min(offset+limit, total)
	out := make([]jobs.Job, 0, end-offset)
	for _, job := range owned[offset:end] {
		out = append(out, s.withSeedPage(job))
	}
	return out, total, nil
}

// Results lists pages ordered by URL with their images.
func (s *JobStore) Results(_ context.Context, id int64) ([]jobs.PageResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[id]; !ok {
		return nil, fmt.Errorf("job %d: %w", id, jobs.ErrNotFound)
	}
	var pages []jobs.PageResult
	for _, p := range s.pages {
		if p.jobID != id {
			continue
		}
		page := jobs.PageResult{ID: p.id, URL: p.url, Summary: p.summary, Images: []jobs.ImageResult{}}
		for _, img := range s.images {
			if img.pageID == p.id {
				page.Images = append(page.Images, jobs.ImageResult{ID: img.id, URL: img.url, Explanation: img.explanation})
			}
		}
		sort.Slice(page.Images, func(i, j int) bool { return page.Images[i].ID < page.Images[j].ID })
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].URL == pages[j].URL {
			return pages[i].ID < pages[j].ID
		}
		return pages[i].URL < pages[j].URL
	})
	return pages, nil
}

// DeleteJob removes the job row. Missing rows are ignored.
func (s *JobStore) DeleteJob(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

// ListImagePaths returns image rows of the job with id greater than afterID.
func (s *JobStore) ListImagePaths(_ context.Context, jobID, afterID int64, limit int) ([]jobs.ImagePath, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ImagePathCalls++
	var out []jobs.ImagePath
	for _, img := range s.images {
		if img.jobID == jobID && img.id > afterID {
			out = append(out, jobs.ImagePath{ID: img.id, Path: img.path})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListChildIDs returns up to limit ids of table rows belonging to the job.
func (s *JobStore) ListChildIDs(_ context.Context, table jobs.ChildTable, jobID int64, limit int) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	switch table {
	case jobs.TablePageLinks:
		for id, row := range s.links {
			if row.jobID == jobID {
				ids = append(ids, id)
			}
		}
	case jobs.TablePageImages:
		for id, row := range s.images {
			if row.jobID == jobID {
				ids = append(ids, id)
			}
		}
	case jobs.TablePages:
		for id, row := range s.pages {
			if row.jobID == jobID {
				ids = append(ids, id)
			}
		}
	default:
		return nil, fmt.Errorf("unknown table %q", table)
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// DeleteChildren removes the given ids from table.
func (s *JobStore) DeleteChildren(_ context.Context, table jobs.ChildTable, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, id := range ids {
		switch table {
		case jobs.TablePageLinks:
			if _, ok := s.links[id]; ok {
				delete(s.links, id)
				removed++
			}
		case jobs.TablePageImages:
			if _, ok := s.images[id]; ok {
				delete(s.images, id)
				removed++
			}
		case jobs.TablePages:
			if _, ok := s.pages[id]; ok {
				delete(s.pages, id)
				removed++
			}
		default:
			return removed, fmt.Errorf("unknown table %q", table)
		}
	}
	return removed, nil
}

// AddPage records a crawled page and returns its id.
func (s *JobStore) AddPage(jobID int64, url string, summary *string, scrapedAt time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.pages[id] = pageRow{id: id, jobID: jobID, url: url, summary: summary, scrapedAt: scrapedAt}
	return id
}

// AddImage records an image found on a page and returns its id.
func (s *JobStore) AddImage(jobID, pageID int64, url string, path, explanation *string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.images[id] = imageRow{id: id, jobID: jobID, pageID: pageID, url: url, path: path, explanation: explanation}
	return id
}

// AddLink records an outbound link and returns its id.
func (s *JobStore) AddLink(jobID, sourcePageID int64, targetURL string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.links[id] = linkRow{id: id, jobID: jobID, sourcePageID: sourcePageID, targetURL: targetURL}
	return id
}

// Counts reports the number of job, page, image and link rows owned by jobID.
func (s *JobStore) Counts(jobID int64) (jobRows, pages, images, links int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; ok {
		jobRows = 1
	}
	for _, p := range s.pages {
		if p.jobID == jobID {
			pages++
		}
	}
	for _, img := range s.images {
		if img.jobID == jobID {
			images++
		}
	}
	for _, l := range s.links {
		if l.jobID == jobID {
			links++
		}
	}
	return jobRows, pages, images, links
}

func (s *JobStore) withSeedPage(job jobs.Job) jobs.Job {
	var seed *pageRow
	for _, p := range s.pages {
		if p.jobID == job.ID && p.url == job.URL && (seed == nil || p.id < seed.id) {
			row := p
			seed = &row
		}
	}
	if seed != nil {
		scrapedAt := seed.scrapedAt
		job.Summary = seed.summary
		job.ScrapedAt = &scrapedAt
	}
	return job
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
