package system_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-pipeline/internal/clock/system"
	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

var _ jobs.Clock = system.New()

func TestNowIsUTCWallTime(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := system.New().Now()
	after := time.Now().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.WithinRange(t, got, before, after)
}

// Status documents stamp created_at from this clock, and clients see it
// serialized with a Z suffix.
func TestNowStampsStatusCreatedAt(t *testing.T) {
	t.Parallel()

	created := system.New().Now()
	view := jobs.Merge(jobs.Job{ID: 9, URL: "https://example.com"}, &jobs.StatusRecord{
		JobID:     9,
		Status:    jobs.StatusCompleted,
		CreatedAt: &created,
	})

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	var decoded struct {
		CreatedAt string `json:"created_at"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, created.Format(time.RFC3339Nano), decoded.CreatedAt)
	require.Equal(t, byte('Z'), decoded.CreatedAt[len(decoded.CreatedAt)-1])
}
