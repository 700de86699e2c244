package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/queue/memory"
	storemem "github.com/JakeFAU/crawl-pipeline/internal/storage/memory"
)

type failingStatus struct{ jobs.StatusStore }

func (failingStatus) GetStatus(context.Context, int64) (jobs.StatusRecord, bool, error) {
	return jobs.StatusRecord{}, false, errors.New("deadline exceeded")
}

func ptr[T any](v T) *T { return &v }

func seed(t *testing.T, identity *storemem.JobStore, owner *int64, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for range n {
		id, err := identity.CreateJob(context.Background(), "https://example.com", owner)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestGetMergesStatus(t *testing.T) {
	t.Parallel()

	identity := storemem.NewJobStore()
	status := storemem.NewStatusStore()
	id := seed(t, identity, ptr(int64(1)), 1)[0]
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, status.PutStatus(context.Background(), jobs.StatusRecord{
		JobID: id, Status: jobs.StatusRunning, Depth: ptr(2), LinksCount: ptr(14), CreatedAt: &created,
	}))

	view, err := New(identity, status, nil, Config{}, zap.NewNop()).Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusRunning, view.Status)
	require.Equal(t, 2, view.Depth)
	require.Equal(t, 14, view.LinksCount)
	require.Equal(t, created, *view.CreatedAt)
	require.Nil(t, view.CompletedAt)
}

func TestGetDefaultsWithoutStatus(t *testing.T) {
	t.Parallel()

	identity := storemem.NewJobStore()
	id := seed(t, identity, nil, 1)[0]

	for name, status := range map[string]jobs.StatusStore{
		"absent":  storemem.NewStatusStore(),
		"nil":     nil,
		"failing": failingStatus{},
	} {
		view, err := New(identity, status, nil, Config{}, nil).Get(context.Background(), id)
		require.NoError(t, err, name)
		require.Equal(t, jobs.StatusUnknown, view.Status, name)
		require.Equal(t, 1, view.Depth, name)
		require.Zero(t, view.LinksCount, name)
		require.Nil(t, view.CreatedAt, name)
	}
}

func TestGetUnknownJob(t *testing.T) {
	t.Parallel()

	_, err := New(storemem.NewJobStore(), nil, nil, Config{}, nil).Get(context.Background(), 42)
	require.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestListPagesNewestFirstAndClampsLimit(t *testing.T) {
	t.Parallel()

	identity := storemem.NewJobStore()
	ids := seed(t, identity, ptr(int64(1)), 120)
	seed(t, identity, ptr(int64(2)), 3)
	r := New(identity, storemem.NewStatusStore(), nil, Config{}, nil)

	views, total, err := r.List(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 120, total)
	require.Len(t, views, 10)
	require.Equal(t, ids[len(ids)-1], views[0].ID)

	views, _, err = r.List(context.Background(), 1, 0, 500)
	require.NoError(t, err)
	require.Len(t, views, 100)

	views, total, err = r.List(context.Background(), 1, 115, 10)
	require.NoError(t, err)
	require.Equal(t, 120, total)
	require.Len(t, views, 5)
	require.Equal(t, jobs.StatusUnknown, views[0].Status)
}

func TestResults(t *testing.T) {
	t.Parallel()

	identity := storemem.NewJobStore()
	id := seed(t, identity, nil, 1)[0]
	page := identity.AddPage(id, "https://example.com", ptr("summary"), time.Now())
	identity.AddImage(id, page, "https://example.com/a.png", nil, ptr("a chart"))

	r := New(identity, nil, nil, Config{}, nil)
	pages, err := r.Results(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Len(t, pages[0].Images, 1)

	_, err = r.Results(context.Background(), id+1)
	require.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestDeleteEnqueuesForOwner(t *testing.T) {
	t.Parallel()

	identity := storemem.NewJobStore()
	broker := memory.NewBroker(4)
	id := seed(t, identity, ptr(int64(7)), 1)[0]
	r := New(identity, nil, broker, Config{DeletionTopic: "deletion"}, nil)

	ok, err := r.Delete(context.Background(), id, 7)
	require.NoError(t, err)
	require.True(t, ok)
	msgs := broker.Topic("deletion")
	require.Len(t, msgs, 1)
	require.Equal(t, jobs.DeletionTask{JobID: id}, msgs[0].Payload)

	// The row is still there: deletion is asynchronous.
	_, err = identity.GetJob(context.Background(), id)
	require.NoError(t, err)
}

func TestDeleteAuthorization(t *testing.T) {
	t.Parallel()

	identity := storemem.NewJobStore()
	broker := memory.NewBroker(4)
	owned := seed(t, identity, ptr(int64(7)), 1)[0]
	orphan := seed(t, identity, nil, 1)[0]
	r := New(identity, nil, broker, Config{DeletionTopic: "deletion"}, nil)

	_, err := r.Delete(context.Background(), owned, 8)
	require.ErrorIs(t, err, jobs.ErrNotAuthorized)
	_, err = r.Delete(context.Background(), orphan, 7)
	require.ErrorIs(t, err, jobs.ErrNotAuthorized)
	_, err = r.Delete(context.Background(), 999, 7)
	require.ErrorIs(t, err, jobs.ErrNotFound)
	require.Empty(t, broker.Messages())
}

func TestDeleteWithoutTopic(t *testing.T) {
	t.Parallel()

	identity := storemem.NewJobStore()
	broker := memory.NewBroker(4)
	id := seed(t, identity, ptr(int64(7)), 1)[0]

	ok, err := New(identity, nil, broker, Config{}, nil).Delete(context.Background(), id, 7)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, broker.Messages())
}

func TestDeletePublishFailure(t *testing.T) {
	t.Parallel()

	identity := storemem.NewJobStore()
	broker := memory.NewBroker(4)
	broker.FailPublish("deletion", errors.New("unavailable"))
	id := seed(t, identity, ptr(int64(7)), 1)[0]

	_, err := New(identity, nil, broker, Config{DeletionTopic: "deletion"}, nil).Delete(context.Background(), id, 7)
	require.Error(t, err)
}
