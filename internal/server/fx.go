// Package server builds the pipeline's dependencies from configuration and
// runs the HTTP API and the stage workers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/api"
	"github.com/JakeFAU/crawl-pipeline/internal/clock/system"
	"github.com/JakeFAU/crawl-pipeline/internal/config"
	"github.com/JakeFAU/crawl-pipeline/internal/deletion"
	"github.com/JakeFAU/crawl-pipeline/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/crawl-pipeline/internal/fetcher/colly"
	"github.com/JakeFAU/crawl-pipeline/internal/id/uuid"
	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/logging"
	"github.com/JakeFAU/crawl-pipeline/internal/metrics"
	"github.com/JakeFAU/crawl-pipeline/internal/policy/ratelimit"
	"github.com/JakeFAU/crawl-pipeline/internal/provider"
	queueMemory "github.com/JakeFAU/crawl-pipeline/internal/queue/memory"
	gcppubsub "github.com/JakeFAU/crawl-pipeline/internal/queue/pubsub"
	"github.com/JakeFAU/crawl-pipeline/internal/search/elasticsearch"
	"github.com/JakeFAU/crawl-pipeline/internal/stage/explainer"
	"github.com/JakeFAU/crawl-pipeline/internal/stage/extractor"
	"github.com/JakeFAU/crawl-pipeline/internal/stage/summarizer"
	"github.com/JakeFAU/crawl-pipeline/internal/state"
	firestorestatus "github.com/JakeFAU/crawl-pipeline/internal/storage/firestore"
	gcsstorage "github.com/JakeFAU/crawl-pipeline/internal/storage/gcs"
	localstorage "github.com/JakeFAU/crawl-pipeline/internal/storage/local"
	memoryStorage "github.com/JakeFAU/crawl-pipeline/internal/storage/memory"
	pgstore "github.com/JakeFAU/crawl-pipeline/internal/storage/postgres"
	redisstore "github.com/JakeFAU/crawl-pipeline/internal/storage/redis"
	"github.com/JakeFAU/crawl-pipeline/internal/telemetry"
	"github.com/JakeFAU/crawl-pipeline/internal/worker"
)

// Worker names accepted by Workers.
const (
	WorkerExtractor  = "extractor"
	WorkerExplainer  = "explainer"
	WorkerSummarizer = "summarizer"
	WorkerDeletion   = "deletion"
	WorkerAll        = "all"
)

// WorkerNames lists every stage worker in pipeline order.
var WorkerNames = []string{WorkerExtractor, WorkerExplainer, WorkerSummarizer, WorkerDeletion}

// relationalStore is the identity store together with its cascade reads.
type relationalStore interface {
	jobs.IdentityStore
	jobs.CascadeStore
}

type broker interface {
	jobs.Publisher
	jobs.Subscriber
}

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	identity relationalStore
	status   jobs.StatusStore
	counter  jobs.PendingCounter
	objects  jobs.ObjectStore
	index    jobs.SearchIndex
	queue    broker

	memoryQueue *queueMemory.Broker
	dispatch    *dispatcher.Dispatcher
	reader      *state.Reader
	apiServer   *api.Server
	cleanup     *deletion.Orchestrator

	postgres        *pgstore.JobStore
	firestoreClient *firestore.Client
	redisClient     *goredis.Client
	storageClient   *storage.Client
	pubsubClient    *gcppubsub.Client
	tracerProvider  *sdktrace.TracerProvider
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger = logging.OrNop(logger)
	// Log only fields that carry no credentials.
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database", cfg.Database.Backend),
		zap.String("status", cfg.Status.Backend),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("search", cfg.Search.Backend),
		zap.String("queue", cfg.Queue.Backend),
	)
	return &App{cfg: cfg, logger: logger}, nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	metrics.Init()

	steps := []func(context.Context) error{
		app.setupTelemetry,
		app.setupIdentity,
		app.setupStatus,
		app.setupCounter,
		app.setupObjects,
		app.setupSearch,
		app.setupQueue,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			app.closeInfrastructure(ctx)
			return nil, err
		}
	}

	app.dispatch = dispatcher.New(app.identity, app.counter, app.status, app.queue, system.New(),
		dispatcher.Config{CrawlTopic: cfg.Topics.Crawl}, logger.Named("dispatcher"))
	app.reader = state.New(app.identity, app.status, app.queue,
		state.Config{DeletionTopic: cfg.Topics.Deletion}, logger.Named("state"))
	app.cleanup = deletion.New(deletion.Stores{
		Identity: app.identity,
		Cascade:  app.identity,
		Objects:  app.objects,
		Index:    app.index,
		Status:   app.status,
	}, deletion.Config{
		BatchSize:            cfg.Deletion.BatchSize,
		ObjectBatchSize:      cfg.Deletion.ObjectBatchSize,
		MaxObjectsPerRequest: cfg.Deletion.MaxObjectsPerRequest,
	}, logger.Named("deletion"))
	app.apiServer = api.NewServer(app.dispatch, app.reader, app.Ready, cfg.Server, logger)

	return app, nil
}

func (a *App) setupTelemetry(ctx context.Context) error {
	if !a.cfg.Telemetry.Enabled {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Telemetry.ServiceName,
		Version:     a.cfg.Telemetry.Version,
		SampleRatio: a.cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerProvider = tp
	a.logger.Info("tracing enabled", zap.Float64("sample_ratio", a.cfg.Telemetry.SampleRatio))
	return nil
}

func (a *App) setupIdentity(ctx context.Context) error {
	switch a.cfg.Database.Backend {
	case "postgres":
		store, err := pgstore.NewJobStore(ctx, pgstore.Config{
			DSN:             a.cfg.Database.DSN,
			MaxConns:        a.cfg.Database.MaxConns,
			MinConns:        a.cfg.Database.MinConns,
			MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("identity store init failed: %w", err)
		}
		a.postgres = store
		a.identity = store
		if a.cfg.Database.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("identity store migrate failed: %w", err)
			}
		}
		a.logger.Info("using postgres identity store")
	default:
		a.identity = memoryStorage.NewJobStore()
		a.logger.Info("using in-memory identity store")
	}
	return nil
}

func (a *App) setupStatus(ctx context.Context) error {
	switch a.cfg.Status.Backend {
	case "firestore":
		client, err := firestorestatus.NewClient(ctx, a.cfg.Status.ProjectID)
		if err != nil {
			return fmt.Errorf("status store init failed: %w", err)
		}
		a.firestoreClient = client
		store, err := firestorestatus.New(client, firestorestatus.Config{
			ProjectID:  a.cfg.Status.ProjectID,
			Collection: a.cfg.Status.Collection,
		})
		if err != nil {
			return fmt.Errorf("status store init failed: %w", err)
		}
		a.status = store
		a.logger.Info("using firestore status store", zap.String("collection", a.cfg.Status.Collection))
	case "none":
		a.logger.Warn("status store disabled; job views report defaults")
	default:
		a.status = memoryStorage.NewStatusStore()
		a.logger.Info("using in-memory status store")
	}
	return nil
}

func (a *App) setupCounter(_ context.Context) error {
	switch a.cfg.Cache.Backend {
	case "redis":
		client, err := redisstore.NewClient(redisstore.Config{
			Address:  a.cfg.Cache.Address,
			Password: a.cfg.Cache.Password,
			DB:       a.cfg.Cache.DB,
		})
		if err != nil {
			return fmt.Errorf("pending counter init failed: %w", err)
		}
		a.redisClient = client
		counter, err := redisstore.NewCounter(client)
		if err != nil {
			return fmt.Errorf("pending counter init failed: %w", err)
		}
		a.counter = counter
		a.logger.Info("using redis pending counter", zap.String("address", a.cfg.Cache.Address))
	default:
		a.counter = memoryStorage.NewCounter()
		a.logger.Info("using in-memory pending counter")
	}
	return nil
}

func (a *App) setupObjects(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storageClient = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.objects = store
		a.logger.Info("using GCS object store", zap.String("bucket", a.cfg.Storage.Bucket))
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir, Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.objects = store
		a.logger.Info("using local object store", zap.String("base_dir", a.cfg.Storage.BaseDir))
	default:
		a.objects = memoryStorage.NewBlobStore(a.cfg.Storage.Bucket)
		a.logger.Info("using in-memory object store", zap.String("bucket", a.cfg.Storage.Bucket))
	}
	return nil
}

func (a *App) setupSearch(_ context.Context) error {
	if a.cfg.Search.Backend != "elasticsearch" {
		a.logger.Info("search index disabled")
		return nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: a.cfg.Search.Addresses,
		Username:  a.cfg.Search.Username,
		Password:  a.cfg.Search.Password,
		APIKey:    a.cfg.Search.APIKey,
		Index:     a.cfg.Search.Index,
	})
	if err != nil {
		return fmt.Errorf("search index init failed: %w", err)
	}
	index, err := elasticsearch.New(client, a.cfg.Search.Index)
	if err != nil {
		return fmt.Errorf("search index init failed: %w", err)
	}
	a.index = index
	a.logger.Info("using elasticsearch index", zap.String("index", a.cfg.Search.Index))
	return nil
}

func (a *App) setupQueue(ctx context.Context) error {
	switch a.cfg.Queue.Backend {
	case "pubsub":
		client, err := gcppubsub.NewClient(ctx, a.cfg.Queue.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub init failed: %w", err)
		}
		a.pubsubClient = client
		a.queue = client
		a.logger.Info("using Pub/Sub queues", zap.String("project", a.cfg.Queue.ProjectID))
	default:
		b := queueMemory.NewBroker(a.cfg.Queue.Buffer)
		b.Bind(a.cfg.Subscriptions.Explainer, a.cfg.Topics.ImageExplain)
		b.Bind(a.cfg.Subscriptions.Deletion, a.cfg.Topics.Deletion)
		// Crawl, writer and indexer consumers live outside this process.
		b.Sink(a.cfg.Topics.Crawl, a.cfg.Topics.Writer, a.cfg.Topics.Indexer)
		a.memoryQueue = b
		a.queue = b
		a.logger.Info("using in-memory queues", zap.Int("buffer", a.cfg.Queue.Buffer))
	}
	return nil
}

// Handler returns the API router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Ready checks the identity store, which every operation depends on.
func (a *App) Ready(ctx context.Context) error {
	if a.postgres == nil {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.postgres.Ping(pingCtx)
}

// Workers builds the named stage workers. "all" expands to every worker.
func (a *App) Workers(ctx context.Context, names ...string) ([]*worker.Worker, error) {
	names = expandWorkerNames(names)
	cfg := worker.Config{ReceiveBackoff: a.cfg.ReceiveBackoff()}
	out := make([]*worker.Worker, 0, len(names))
	for _, name := range names {
		handler, subscription, err := a.handler(ctx, name)
		if err != nil {
			return nil, err
		}
		cfg.Subscription = subscription
		out = append(out, worker.New(a.queue, a.queue, handler, cfg, a.logger.Named("worker")))
	}
	return out, nil
}

func expandWorkerNames(names []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		expanded := []string{name}
		if name == WorkerAll {
			expanded = WorkerNames
		}
		for _, n := range expanded {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

func (a *App) handler(ctx context.Context, name string) (worker.Handler, string, error) {
	switch name {
	case WorkerExtractor:
		fetcher := collyfetcher.New(collyfetcher.Config{
			UserAgent:    a.cfg.Fetch.UserAgent,
			Timeout:      a.cfg.FetchTimeout(),
			MaxBodyBytes: a.cfg.Fetch.MaxBodyBytes,
		})
		explainTopic := a.cfg.Topics.ImageExplain
		if !provider.SupportsVision(a.cfg.Providers.Explainer.Name) {
			a.logger.Info("explainer provider has no vision support; images are stored but not explained")
			explainTopic = ""
		}
		h := extractor.New(fetcher, a.objects, uuid.New(), extractor.Config{
			WriterTopic:  a.cfg.Topics.Writer,
			ExplainTopic: explainTopic,
		}, a.logger.Named(WorkerExtractor))
		if a.cfg.Fetch.PerHostRPS > 0 {
			h.WithLimiter(ratelimit.New(ratelimit.Config{
				DefaultRPS:   a.cfg.Fetch.PerHostRPS,
				DefaultBurst: a.cfg.Fetch.PerHostBurst,
			}))
		}
		return h, a.cfg.Subscriptions.Extractor, nil
	case WorkerExplainer:
		captioner := provider.NewCaptioner(ctx, providerConfig(a.cfg.Providers.Explainer), a.logger)
		return explainer.New(a.objects, captioner, explainer.Config{WriterTopic: a.cfg.Topics.Writer},
			a.logger.Named(WorkerExplainer)), a.cfg.Subscriptions.Explainer, nil
	case WorkerSummarizer:
		s := provider.NewSummarizer(ctx, providerConfig(a.cfg.Providers.Summarizer), a.logger)
		return summarizer.New(s, summarizer.Config{
			WriterTopic:   a.cfg.Topics.Writer,
			IndexerTopic:  a.cfg.Topics.Indexer,
			MaxInputWords: a.cfg.Summarizer.MaxInputWords,
		}, a.logger.Named(WorkerSummarizer)), a.cfg.Subscriptions.Summarizer, nil
	case WorkerDeletion:
		return deletion.NewHandler(a.cleanup), a.cfg.Subscriptions.Deletion, nil
	default:
		return nil, "", fmt.Errorf("unknown worker %q (want one of %s or %s)",
			name, strings.Join(WorkerNames, ", "), WorkerAll)
	}
}

func providerConfig(p config.ProviderConfig) provider.Config {
	return provider.Config{
		Name:      p.Name,
		Model:     p.Model,
		APIKey:    p.APIKey,
		ProjectID: p.ProjectID,
		Location:  p.Location,
		MaxTokens: p.MaxTokens,
		BaseURL:   p.BaseURL,
	}
}

// Run serves the API and blocks until the context is canceled or a signal
// arrives. With in-memory queues every stage worker runs in-process too,
// since nothing else can consume them.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var workers []*worker.Worker
	if a.memoryQueue != nil {
		var err error
		workers, err = a.Workers(ctx, WorkerAll)
		if err != nil {
			return err
		}
	}
	return a.serve(ctx, stop, a.cfg.Server.Port, a.Handler(), workers)
}

// RunWorkers runs the named workers with a health and metrics listener on
// worker.metrics_port, blocking until the context is canceled or a signal arrives.
func (a *App) RunWorkers(ctx context.Context, names ...string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers, err := a.Workers(ctx, names...)
	if err != nil {
		return err
	}
	return a.serve(ctx, stop, a.cfg.Worker.MetricsPort, a.healthHandler(), workers)
}

func (a *App) serve(ctx context.Context, stop context.CancelFunc, port int, handler http.Handler, workers []*worker.Worker) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if len(workers) > 0 {
			a.logger.Info("workers started", zap.Int("count", len(workers)))
			worker.RunAll(ctx, workers...)
		}
	}()

	go func() {
		a.logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-done

	return a.Close(shutdownCtx)
}

// healthHandler exposes probes and metrics for worker processes.
func (a *App) healthHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Ready(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// Cleanup runs the deletion orchestrator for jobID in-process.
func (a *App) Cleanup(ctx context.Context, jobID int64) error {
	return a.cleanup.Cleanup(ctx, jobID)
}

// Migrate applies the relational schema.
func (a *App) Migrate(ctx context.Context) error {
	if a.postgres == nil {
		return errors.New("migrate requires database.backend=postgres")
	}
	return a.postgres.Migrate(ctx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(_ context.Context) {
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storageClient = nil
	}
	if a.firestoreClient != nil {
		if err := a.firestoreClient.Close(); err != nil {
			a.logger.Warn("firestore client close failed", zap.Error(err))
		}
		a.firestoreClient = nil
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
		a.redisClient = nil
	}
	if a.postgres != nil {
		a.postgres.Close()
		a.postgres = nil
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerProvider = nil
	}
	_ = a.logger.Sync()
}
