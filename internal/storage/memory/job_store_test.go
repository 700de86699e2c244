package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	owner := int64(3)

	id, err := store.CreateJob(ctx, "https://example.com", &owner)
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	summary := "a page"
	scraped := time.Unix(1700000000, 0).UTC()
	pageID := store.AddPage(id, "https://example.com", &summary, scraped)
	store.AddPage(id, "https://example.com/about", nil, scraped)
	store.AddImage(id, pageID, "https://example.com/a.png", nil, nil)

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Summary == nil || *job.Summary != "a page" || job.ScrapedAt == nil {
		t.Fatalf("expected seed page projection, got %+v", job)
	}

	results, err := store.Results(ctx, id)
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if len(results) != 2 || results[0].URL != "https://example.com" || len(results[0].Images) != 1 {
		t.Fatalf("unexpected results %+v", results)
	}

	if err := store.DeleteJob(ctx, id); err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}
	if _, err := store.GetJob(ctx, id); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteJob(ctx, id); err != nil {
		t.Fatalf("second DeleteJob() error = %v", err)
	}
}

func TestJobStoreListJobsPagesByIDDescending(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	owner, other := int64(1), int64(2)
	for i := 0; i < 5; i++ {
		if _, err := store.CreateJob(ctx, "https://example.com", &owner); err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}
	}
	if _, err := store.CreateJob(ctx, "https://other.com", &other); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	page, total, err := store.ListJobs(ctx, owner, 1, 2)
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("expected 2 of 5, got %d of %d", len(page), total)
	}
	if page[0].ID != 4 || page[1].ID != 3 {
		t.Fatalf("expected ids 4,3 got %d,%d", page[0].ID, page[1].ID)
	}

	empty, total, err := store.ListJobs(ctx, owner, 10, 2)
	if err != nil || len(empty) != 0 || total != 5 {
		t.Fatalf("expected empty page past the end, got %v %d %v", empty, total, err)
	}
}

func TestJobStoreCascadeReadsAreScopedToJob(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	a, _ := store.CreateJob(ctx, "a", nil)
	b, _ := store.CreateJob(ctx, "b", nil)
	pa := store.AddPage(a, "a", nil, time.Time{})
	pb := store.AddPage(b, "b", nil, time.Time{})
	store.AddLink(a, pa, "x")
	store.AddLink(b, pb, "y")

	ids, err := store.ListChildIDs(ctx, jobs.TablePageLinks, a, 10)
	if err != nil || len(ids) != 1 {
		t.Fatalf("expected one link for job a, got %v %v", ids, err)
	}
	removed, err := store.DeleteChildren(ctx, jobs.TablePageLinks, ids)
	if err != nil || removed != 1 {
		t.Fatalf("expected one removed row, got %d %v", removed, err)
	}
	if _, _, _, links := store.Counts(b); links != 1 {
		t.Fatalf("expected job b link untouched, got %d", links)
	}
	if _, err := store.ListChildIDs(ctx, jobs.ChildTable("nope"), a, 1); err == nil {
		t.Fatal("expected unknown table error")
	}
}
