// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Status        StatusConfig        `mapstructure:"status"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Search        SearchConfig        `mapstructure:"search"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Topics        TopicsConfig        `mapstructure:"topics"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Summarizer    SummarizerConfig    `mapstructure:"summarizer"`
	Deletion      DeletionConfig      `mapstructure:"deletion"`
	Fetch         FetchConfig         `mapstructure:"fetch"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DatabaseConfig selects and tunes the identity store.
type DatabaseConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// StatusConfig selects the status store. Backend "none" disables status writes and reads.
type StatusConfig struct {
	Backend    string `mapstructure:"backend"`
	ProjectID  string `mapstructure:"project_id"`
	Collection string `mapstructure:"collection"`
}

// CacheConfig selects the pending counter backend.
type CacheConfig struct {
	Backend  string `mapstructure:"backend"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig selects the object store for extracted images. BaseDir is
// the root directory of the local backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
}

// SearchConfig selects the optional search index.
type SearchConfig struct {
	Backend   string   `mapstructure:"backend"`
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	APIKey    string   `mapstructure:"api_key"`
}

// QueueConfig selects the message broker.
type QueueConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Buffer    int    `mapstructure:"buffer"`
}

// TopicsConfig names the topics messages are published to. Empty optional topics disable the hop.
type TopicsConfig struct {
	Crawl        string `mapstructure:"crawl"`
	Deletion     string `mapstructure:"deletion"`
	Writer       string `mapstructure:"writer"`
	ImageExplain string `mapstructure:"image_explain"`
	Indexer      string `mapstructure:"indexer"`
}

// SubscriptionsConfig names the subscription each worker consumes.
type SubscriptionsConfig struct {
	Extractor  string `mapstructure:"extractor"`
	Explainer  string `mapstructure:"explainer"`
	Summarizer string `mapstructure:"summarizer"`
	Deletion   string `mapstructure:"deletion"`
}

// ProvidersConfig configures the captioning and summarizing models.
type ProvidersConfig struct {
	Explainer  ProviderConfig `mapstructure:"explainer"`
	Summarizer ProviderConfig `mapstructure:"summarizer"`
}

// ProviderConfig names one model provider.
type ProviderConfig struct {
	Name      string `mapstructure:"name"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	ProjectID string `mapstructure:"project_id"`
	Location  string `mapstructure:"location"`
	MaxTokens int    `mapstructure:"max_tokens"`
	BaseURL   string `mapstructure:"base_url"`
}

// SummarizerConfig bounds summarizer input.
type SummarizerConfig struct {
	MaxInputWords int `mapstructure:"max_input_words"`
}

// DeletionConfig tunes cascade batch sizes.
type DeletionConfig struct {
	BatchSize            int `mapstructure:"batch_size"`
	ObjectBatchSize      int `mapstructure:"object_batch_size"`
	MaxObjectsPerRequest int `mapstructure:"max_objects_per_request"`
}

// FetchConfig controls image downloads. A zero PerHostRPS disables per-host throttling.
type FetchConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
	PerHostRPS     float64 `mapstructure:"per_host_rps"`
	PerHostBurst   int     `mapstructure:"per_host_burst"`
}

// WorkerConfig controls stage worker loops.
type WorkerConfig struct {
	ReceiveBackoffSeconds int `mapstructure:"receive_backoff_seconds"`
	MetricsPort           int `mapstructure:"metrics_port"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Version     string  `mapstructure:"version"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("database.backend", "memory")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("status.backend", "memory")
	v.SetDefault("status.collection", "scraping_jobs")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.bucket", "images")
	v.SetDefault("search.backend", "none")
	v.SetDefault("search.index", "pages")
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.buffer", 256)
	v.SetDefault("topics.crawl", "crawl")
	v.SetDefault("topics.deletion", "deletion")
	v.SetDefault("topics.writer", "writer")
	v.SetDefault("topics.image_explain", "image-explain")
	v.SetDefault("subscriptions.extractor", "image-extract")
	v.SetDefault("subscriptions.explainer", "image-explain")
	v.SetDefault("subscriptions.summarizer", "page-summary")
	v.SetDefault("subscriptions.deletion", "deletion")
	v.SetDefault("providers.explainer.name", "mock")
	v.SetDefault("providers.explainer.max_tokens", 512)
	v.SetDefault("providers.explainer.location", "us-central1")
	v.SetDefault("providers.summarizer.name", "mock")
	v.SetDefault("providers.summarizer.max_tokens", 512)
	v.SetDefault("providers.summarizer.location", "us-central1")
	v.SetDefault("providers.summarizer.base_url", "")
	v.SetDefault("summarizer.max_input_words", 3000)
	v.SetDefault("deletion.batch_size", 5000)
	v.SetDefault("deletion.object_batch_size", 1000)
	v.SetDefault("deletion.max_objects_per_request", 1000)
	v.SetDefault("fetch.user_agent", "crawl-pipeline/0.1")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_body_bytes", 10<<20)
	v.SetDefault("fetch.per_host_rps", 2.0)
	v.SetDefault("fetch.per_host_burst", 4)
	v.SetDefault("worker.receive_backoff_seconds", 5)
	v.SetDefault("worker.metrics_port", 9090)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "crawl-pipeline")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	if c.Topics.Crawl == "" {
		return fmt.Errorf("topics.crawl is required")
	}
	if c.Summarizer.MaxInputWords <= 0 {
		return fmt.Errorf("summarizer.max_input_words must be > 0")
	}
	if c.Deletion.BatchSize <= 0 {
		return fmt.Errorf("deletion.batch_size must be > 0")
	}
	if c.Deletion.ObjectBatchSize <= 0 {
		return fmt.Errorf("deletion.object_batch_size must be > 0")
	}
	if c.Deletion.MaxObjectsPerRequest <= 0 || c.Deletion.MaxObjectsPerRequest > 1000 {
		return fmt.Errorf("deletion.max_objects_per_request must be between 1 and 1000")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	return nil
}

func (c Config) validateBackends() error {
	switch c.Database.Backend {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set when database.backend is postgres")
		}
	default:
		return fmt.Errorf("database.backend %q is not supported", c.Database.Backend)
	}
	switch c.Status.Backend {
	case "memory", "none":
	case "firestore":
		if c.Status.ProjectID == "" || c.Status.Collection == "" {
			return fmt.Errorf("status.project_id and status.collection must be set when status.backend is firestore")
		}
	default:
		return fmt.Errorf("status.backend %q is not supported", c.Status.Backend)
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Address == "" {
			return fmt.Errorf("cache.address must be set when cache.backend is redis")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}
	switch c.Storage.Backend {
	case "memory", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required")
		}
	case "local":
		if c.Storage.Bucket == "" || c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.bucket and storage.base_dir must be set when storage.backend is local")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Search.Backend {
	case "none":
	case "elasticsearch":
		if len(c.Search.Addresses) == 0 || c.Search.Index == "" {
			return fmt.Errorf("search.addresses and search.index must be set when search.backend is elasticsearch")
		}
	default:
		return fmt.Errorf("search.backend %q is not supported", c.Search.Backend)
	}
	switch c.Queue.Backend {
	case "memory":
		if c.Queue.Buffer <= 0 {
			return fmt.Errorf("queue.buffer must be > 0")
		}
	case "pubsub":
		if c.Queue.ProjectID == "" {
			return fmt.Errorf("queue.project_id must be set when queue.backend is pubsub")
		}
	default:
		return fmt.Errorf("queue.backend %q is not supported", c.Queue.Backend)
	}
	return nil
}

// FetchTimeout converts the fetch timeout to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// ReceiveBackoff is the pause before a worker re-subscribes after a receive failure.
func (c Config) ReceiveBackoff() time.Duration {
	return time.Duration(c.Worker.ReceiveBackoffSeconds) * time.Second
}
