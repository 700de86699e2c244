// Package postgres provides the Postgres-backed identity store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

//go:embed schema.sql
var schema string

const storeName = "postgres"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// JobStore implements jobs.IdentityStore and jobs.CascadeStore.
type JobStore struct {
	pool pool
}

// NewJobStore connects a pgx pool using cfg.
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: p}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(p pool) (*JobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return jobs.PrimaryError(storeName, "ping", err)
	}
	return nil
}

// Migrate creates the tables when they do not exist.
func (s *JobStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateJob inserts the job row and returns its id.
func (s *JobStore) CreateJob(ctx context.Context, url string, ownerID *int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO jobs (url, owner_id) VALUES ($1, $2) RETURNING id`, url, ownerID).Scan(&id)
	if err != nil {
		return 0, jobs.PrimaryError(storeName, "create job", err)
	}
	return id, nil
}

// jobColumns projects the seed page (the page whose URL equals the job URL) onto each job.
const jobColumns = `
SELECT j.id, j.url, j.owner_id, seed.summary, seed.scraped_at
FROM jobs j
LEFT JOIN LATERAL (
	SELECT p.summary, p.scraped_at FROM pages p
	WHERE p.job_id = j.id AND p.url = j.url
	ORDER BY p.id LIMIT 1
) seed ON TRUE`

// GetJob returns jobs.ErrNotFound for unknown ids.
func (s *JobStore) GetJob(ctx context.Context, id int64) (jobs.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, jobColumns+` WHERE j.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return jobs.Job{}, fmt.Errorf("job %d: %w", id, jobs.ErrNotFound)
	}
	if err != nil {
		return jobs.Job{}, jobs.PrimaryError(storeName, "get job", err)
	}
	return job, nil
}

// ListJobs pages the owner's jobs ordered by id descending, with the total count.
func (s *JobStore) ListJobs(ctx context.Context, ownerID int64, offset, limit int) ([]jobs.Job, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM jobs WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, jobs.PrimaryError(storeName, "count jobs", err)
	}
	rows, err := s.pool.Query(ctx, jobColumns+` WHERE j.owner_id = $1 ORDER BY j.id DESC OFFSET $2 LIMIT $3`,
		ownerID, offset, limit)
	if err != nil {
		return nil, 0, jobs.PrimaryError(storeName, "list jobs", err)
	}
	defer rows.Close()

	out := make([]jobs.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, jobs.PrimaryError(storeName, "scan job", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, jobs.PrimaryError(storeName, "list jobs", err)
	}
	return out, total, nil
}

// Results lists the job's pages ordered by URL, each with its images.
func (s *JobStore) Results(ctx context.Context, id int64) ([]jobs.PageResult, error) {
	var exists int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM jobs WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, jobs.ErrNotFound)
	}
	if err != nil {
		return nil, jobs.PrimaryError(storeName, "get job", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT id, url, summary FROM pages WHERE job_id = $1 ORDER BY url, id`, id)
	if err != nil {
		return nil, jobs.PrimaryError(storeName, "list pages", err)
	}
	pages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (jobs.PageResult, error) {
		page := jobs.PageResult{Images: []jobs.ImageResult{}}
		err := row.Scan(&page.ID, &page.URL, &page.Summary)
		return page, err
	})
	if err != nil {
		return nil, jobs.PrimaryError(storeName, "scan pages", err)
	}

	index := make(map[int64]int, len(pages))
	for i, p := range pages {
		index[p.ID] = i
	}
	rows, err = s.pool.Query(ctx, `SELECT id, page_id, image_url, explanation FROM page_images WHERE job_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, jobs.PrimaryError(storeName, "list images", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			img    jobs.ImageResult
			pageID int64
		)
		if err := rows.Scan(&img.ID, &pageID, &img.URL, &img.Explanation); err != nil {
			return nil, jobs.PrimaryError(storeName, "scan image", err)
		}
		if i, ok := index[pageID]; ok {
			pages[i].Images = append(pages[i].Images, img)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, jobs.PrimaryError(storeName, "list images", err)
	}
	return pages, nil
}

// DeleteJob removes the job row. Missing rows are not an error.
func (s *JobStore) DeleteJob(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return jobs.PrimaryError(storeName, "delete job", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (jobs.Job, error) {
	var job jobs.Job
	err := row.Scan(&job.ID, &job.URL, &job.OwnerID, &job.Summary, &job.ScrapedAt)
	return job, err
}
