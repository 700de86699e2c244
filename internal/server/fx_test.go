package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/api"
	"github.com/JakeFAU/crawl-pipeline/internal/config"
	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/provider"
	memoryStorage "github.com/JakeFAU/crawl-pipeline/internal/storage/memory"
	"github.com/JakeFAU/crawl-pipeline/internal/worker"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	app, err := BuildWithLogger(context.Background(), &cfg, zap.NewNop())
	require.NoError(t, err)
	app.memoryQueue.RedeliveryDelay = 10 * time.Millisecond
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func request(t *testing.T, h http.Handler, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set(api.OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// runWorkers starts every worker and returns a func that stops them.
func runWorkers(t *testing.T, app *App) func() {
	t.Helper()
	workers, err := app.Workers(context.Background(), WorkerAll)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.RunAll(ctx, workers...)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func TestNewAppRequiresConfig(t *testing.T) {
	_, err := NewApp(nil, nil)
	require.Error(t, err)
}

func TestBuildDefaultsToInMemoryBackends(t *testing.T) {
	app := newTestApp(t)

	require.IsType(t, &memoryStorage.JobStore{}, app.identity)
	require.IsType(t, &memoryStorage.StatusStore{}, app.status)
	require.IsType(t, &memoryStorage.Counter{}, app.counter)
	require.IsType(t, &memoryStorage.BlobStore{}, app.objects)
	require.Nil(t, app.index)
	require.NotNil(t, app.memoryQueue)
	require.NoError(t, app.Ready(context.Background()))
}

func TestBuildRejectsPostgresWithoutDSN(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.Backend = "postgres"
	cfg.Database.DSN = ""

	_, err = BuildWithLogger(context.Background(), &cfg, zap.NewNop())
	require.ErrorContains(t, err, "database.dsn is required")
}

func TestBuildWithLocalObjectStore(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Backend = "local"
	cfg.Storage.BaseDir = t.TempDir()

	app, err := BuildWithLogger(context.Background(), &cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = app.Close(context.Background()) }()

	uri, err := app.objects.PutObject(context.Background(), "1/a.png", "image/png", []byte("png"))
	require.NoError(t, err)
	require.Equal(t, "file://images/1/a.png", uri)
}

func TestStartJobPublishesCrawlMessage(t *testing.T) {
	app := newTestApp(t)

	rec := request(t, app.Handler(), http.MethodPost, "/v1/jobs", "7",
		map[string]any{"url": "https://example.com", "depth": 2})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Positive(t, resp["job_id"])

	crawl := app.memoryQueue.Topic("crawl")
	require.Len(t, crawl, 1)
	// Sink topics never fill up.
	require.Zero(t, app.memoryQueue.Pending("crawl"))

	rec = request(t, app.Handler(), http.MethodGet, fmt.Sprintf("/v1/jobs/%d", resp["job_id"]), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWorkersExpandsNames(t *testing.T) {
	app := newTestApp(t)

	all, err := app.Workers(context.Background(), WorkerAll)
	require.NoError(t, err)
	require.Len(t, all, len(WorkerNames))

	deduped, err := app.Workers(context.Background(), " Extractor ", WorkerAll, WorkerDeletion)
	require.NoError(t, err)
	require.Len(t, deduped, len(WorkerNames))

	some, err := app.Workers(context.Background(), WorkerSummarizer)
	require.NoError(t, err)
	require.Len(t, some, 1)

	_, err = app.Workers(context.Background(), "writer")
	require.ErrorContains(t, err, `unknown worker "writer"`)
}

func TestMigrateRequiresPostgres(t *testing.T) {
	app := newTestApp(t)
	require.ErrorContains(t, app.Migrate(context.Background()), "postgres")
}

func TestHealthHandler(t *testing.T) {
	app := newTestApp(t)
	h := app.healthHandler()

	require.Equal(t, http.StatusOK, request(t, h, http.MethodGet, "/healthz", "", nil).Code)
	require.Equal(t, http.StatusOK, request(t, h, http.MethodGet, "/readyz", "", nil).Code)

	rec := request(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestImageFlowsThroughExtractorAndExplainer(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	}))
	defer images.Close()

	app := newTestApp(t)
	stop := runWorkers(t, app)
	defer stop()

	_, err := app.queue.Publish(context.Background(), app.cfg.Subscriptions.Extractor, jobs.ImageTask{
		URL:         images.URL + "/logo.png",
		OriginalURL: "https://example.com/about",
		JobID:       42,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(app.memoryQueue.Topic(app.cfg.Topics.Writer)) == 2
	}, 5*time.Second, 10*time.Millisecond)

	writer := app.memoryQueue.Topic(app.cfg.Topics.Writer)
	var stored, explained jobs.ImageExplanation
	require.NoError(t, json.Unmarshal(writer[0].Data, &stored))
	require.NoError(t, json.Unmarshal(writer[1].Data, &explained))

	require.EqualValues(t, 42, stored.JobID)
	require.NotEmpty(t, stored.S3Path)
	require.Empty(t, stored.Explanation)
	require.Equal(t, stored.S3Path, explained.S3Path)
	require.Equal(t, provider.MockExplanation, explained.Explanation)

	blobs, ok := app.objects.(*memoryStorage.BlobStore)
	require.True(t, ok)
	require.Equal(t, 1, blobs.Len(app.cfg.Storage.Bucket))
}

func TestDeleteRequestRemovesJobAndObjects(t *testing.T) {
	app := newTestApp(t)
	stop := runWorkers(t, app)
	defer stop()

	rec := request(t, app.Handler(), http.MethodPost, "/v1/jobs", "7",
		map[string]any{"url": "https://example.com", "depth": 1})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	jobID := started["job_id"]

	// Stand in for the writer, which persists rows outside this process.
	identity, ok := app.identity.(*memoryStorage.JobStore)
	require.True(t, ok)
	blobs, ok := app.objects.(*memoryStorage.BlobStore)
	require.True(t, ok)
	uri, err := blobs.PutObject(context.Background(), fmt.Sprintf("%d/logo.png", jobID), "image/png", []byte("png"))
	require.NoError(t, err)
	pageID := identity.AddPage(jobID, "https://example.com", nil, time.Now())
	identity.AddImage(jobID, pageID, "https://example.com/logo.png", &uri, nil)
	identity.AddLink(jobID, pageID, "https://example.com/next")

	path := fmt.Sprintf("/v1/jobs/%d", jobID)
	require.Equal(t, http.StatusForbidden, request(t, app.Handler(), http.MethodDelete, path, "8", nil).Code)
	require.Equal(t, http.StatusAccepted, request(t, app.Handler(), http.MethodDelete, path, "7", nil).Code)

	require.Eventually(t, func() bool {
		_, err := app.identity.GetJob(context.Background(), jobID)
		return errors.Is(err, jobs.ErrNotFound)
	}, 5*time.Second, 10*time.Millisecond)

	require.Zero(t, blobs.Len(app.cfg.Storage.Bucket))
	rows, pages, imgs, links := identity.Counts(jobID)
	require.Zero(t, rows+pages+imgs+links)
	_, found, err := app.status.GetStatus(context.Background(), jobID)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, http.StatusNotFound, request(t, app.Handler(), http.MethodGet, path, "", nil).Code)
}

func TestCleanupIsIdempotent(t *testing.T) {
	app := newTestApp(t)

	jobID, err := app.identity.CreateJob(context.Background(), "https://example.com", nil)
	require.NoError(t, err)

	require.NoError(t, app.Cleanup(context.Background(), jobID))
	require.NoError(t, app.Cleanup(context.Background(), jobID))

	_, err = app.identity.GetJob(context.Background(), jobID)
	require.ErrorIs(t, err, jobs.ErrNotFound)
}
