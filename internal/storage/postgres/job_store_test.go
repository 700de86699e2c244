package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

func newMockStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func ptr[T any](v T) *T { return &v }

func TestNewJobStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewJobStoreWithPool(nil)
	require.Error(t, err)
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPingReportsPrimaryFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.ErrorIs(t, store.Ping(context.Background()), jobs.ErrPrimaryStore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobReturnsID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	owner := ptr(int64(9))
	mock.ExpectQuery("INSERT INTO jobs").
		WithArgs("http://example.com", owner).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.CreateJob(context.Background(), "http://example.com", owner)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobClassifiesFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO jobs").
		WithArgs("http://example.com", (*int64)(nil)).
		WillReturnError(errors.New("connection refused"))

	_, err := store.CreateJob(context.Background(), "http://example.com", nil)
	require.ErrorIs(t, err, jobs.ErrPrimaryStore)
}

func TestGetJobProjectsSeedPage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	scraped := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT j.id, j.url, j.owner_id, seed.summary, seed.scraped_at").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "owner_id", "summary", "scraped_at"}).
			AddRow(int64(5), "http://example.com", ptr(int64(1)), ptr("short"), &scraped))

	job, err := store.GetJob(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, int64(5), job.ID)
	require.Equal(t, "short", *job.Summary)
	require.True(t, job.OwnedBy(1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT j.id").
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetJob(context.Background(), 404)
	require.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestListJobsReturnsPageAndTotal(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT count").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery("ORDER BY j.id DESC").
		WithArgs(int64(1), 0, 2).
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "owner_id", "summary", "scraped_at"}).
			AddRow(int64(12), "http://a", ptr(int64(1)), nil, nil).
			AddRow(int64(11), "http://b", ptr(int64(1)), nil, nil))

	page, total, err := store.ListJobs(context.Background(), 1, 0, 2)
	require.NoError(t, err)
	require.Equal(t, 12, total)
	require.Len(t, page, 2)
	require.Equal(t, int64(12), page[0].ID)
	require.Nil(t, page[1].Summary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultsGroupsImagesByPage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT 1 FROM jobs").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	mock.ExpectQuery("SELECT id, url, summary FROM pages").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "summary"}).
			AddRow(int64(20), "http://a", ptr("A")).
			AddRow(int64(21), "http://b", nil))
	mock.ExpectQuery("SELECT id, page_id, image_url, explanation FROM page_images").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "page_id", "image_url", "explanation"}).
			AddRow(int64(30), int64(21), "http://b/1.png", ptr("a cat")).
			AddRow(int64(31), int64(21), "http://b/2.png", nil))

	pages, err := store.Results(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Empty(t, pages[0].Images)
	require.Len(t, pages[1].Images, 2)
	require.Equal(t, "a cat", *pages[1].Images[0].Explanation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultsUnknownJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT 1 FROM jobs").
		WithArgs(int64(3)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Results(context.Background(), 3)
	require.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM jobs WHERE id").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.DeleteJob(context.Background(), 7))
	require.NoError(t, mock.ExpectationsWereMet())
}
