package firestore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

func TestDocConversionKeepsAbsentFields(t *testing.T) {
	t.Parallel()

	depth := 3
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := jobs.StatusRecord{JobID: 7, Status: jobs.StatusRunning, Depth: &depth, CreatedAt: &created}

	doc := toDoc(rec)
	require.Equal(t, "RUNNING", doc.Status)
	require.Equal(t, int64(3), *doc.Depth)
	require.Nil(t, doc.LinksCount)

	back := fromDoc(doc)
	require.Equal(t, rec, back)
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{})
	require.Error(t, err)
	_, err = NewClient(context.Background(), "")
	require.Error(t, err)
}

// TestStatusStoreAgainstEmulator runs only when a Firestore emulator is available.
func TestStatusStoreAgainstEmulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, "test-project")
	require.NoError(t, err)
	defer client.Close()

	store, err := New(client, Config{Collection: "status-test"})
	require.NoError(t, err)

	jobID := time.Now().UnixNano()
	_, found, err := store.GetStatus(ctx, jobID)
	require.NoError(t, err)
	require.False(t, found)

	links := 4
	require.NoError(t, store.PutStatus(ctx, jobs.StatusRecord{JobID: jobID, Status: jobs.StatusPending, LinksCount: &links}))
	rec, found, err := store.GetStatus(ctx, jobID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, jobs.StatusPending, rec.Status)
	require.Equal(t, 4, *rec.LinksCount)
	require.Nil(t, rec.Depth)

	require.NoError(t, store.DeleteStatus(ctx, jobID))
	require.NoError(t, store.DeleteStatus(ctx, jobID))
	_, found, err = store.GetStatus(ctx, jobID)
	require.NoError(t, err)
	require.False(t, found)
}
