package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Dispatch    DispatchConfig `toml:"dispatch"`
	Worker      WorkerConfig   `toml:"worker"`
	Cache       CacheConfig    `toml:"cache"`
	Queue       QueueConfig    `toml:"queue"`
	GC          GCConfig       `toml:"gc"`
	Storage     StorageConfig  `toml:"storage"`
	Scraper     ScraperConfig  `toml:"scraper"`
	Analyzer    AnalyzerConfig `toml:"analyzer"`
	Frames      FramesConfig   `toml:"frames"`
	Logging     LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
	// EmbeddedWorkers runs this many worker loops inside the server
	// process. 0 disables in-process workers.
	EmbeddedWorkers int `toml:"embedded_workers"`
}

// DispatchConfig controls the direct (synchronous) processing path.
type DispatchConfig struct {
	MaxDirect     int    `toml:"max_direct"`     // Admission ceiling for inline processing
	DirectTimeout string `toml:"direct_timeout"` // e.g., "30s" - overall deadline for inline processing
}

// WorkerConfig controls the queue-draining worker runtime.
type WorkerConfig struct {
	Concurrency     int    `toml:"concurrency"`      // Max active jobs per worker
	PollInterval    string `toml:"poll_interval"`    // e.g., "1s" - base poll delay on empty queue
	MaxBackoff      string `toml:"max_backoff"`      // e.g., "30s" - cap on poll backoff
	ShutdownTimeout string `toml:"shutdown_timeout"` // e.g., "30s" - graceful drain window
}

type CacheConfig struct {
	TTLHours    int `toml:"ttl_hours"`    // Entry lifetime in hours
	SampleLimit int `toml:"sample_limit"` // Max entries sampled by Stats
}

type QueueConfig struct {
	MaxAttempts int `toml:"max_attempts"` // Retry bound per job
}

// GCConfig controls periodic deletion of terminal jobs.
type GCConfig struct {
	RetentionDays  int    `toml:"retention_days"`   // Terminal jobs older than this are deleted
	BatchSize      int    `toml:"batch_size"`       // Max writes per delete batch
	SweepInterval  string `toml:"sweep_interval"`   // e.g., "1h" - how often workers sweep
	ReapStaleAfter string `toml:"reap_stale_after"` // e.g., "2h" - promote stuck processing jobs; empty disables
}

type StorageConfig struct {
	Backend   string          `toml:"backend"` // "badger" (embedded) or "firestore" (shared)
	Badger    BadgerConfig    `toml:"badger"`
	Firestore FirestoreConfig `toml:"firestore"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// FirestoreConfig represents the shared Firestore backend configuration
type FirestoreConfig struct {
	ProjectID         string `toml:"project_id"`
	CacheCollection   string `toml:"cache_collection"`   // default "video_cache"
	JobsCollection    string `toml:"jobs_collection"`    // default "video_jobs"
	ResultsCollection string `toml:"results_collection"` // default "video_results"
}

// ScraperConfig configures the remote scrape-API clients per platform.
type ScraperConfig struct {
	TikTokEndpoint    string  `toml:"tiktok_endpoint"`
	InstagramEndpoint string  `toml:"instagram_endpoint"`
	APIKey            string  `toml:"api_key"`
	RequestTimeout    string  `toml:"request_timeout"`     // e.g., "60s"
	RatePerSecond     float64 `toml:"rate_per_second"`     // Per-platform request rate
	Burst             int     `toml:"burst"`               // Rate limiter burst
	EmbedFallback     bool    `toml:"embed_fallback"`      // Scrape the public embed page when the API omits metadata
	UserAgent         string  `toml:"user_agent"`
}

// AnalyzerConfig configures the multimodal LLM provider.
type AnalyzerConfig struct {
	Provider        string `toml:"provider"` // "gemini" or "claude"
	GoogleAPIKey    string `toml:"google_api_key"`
	AnthropicAPIKey string `toml:"anthropic_api_key"`
	Model           string `toml:"model"`
	Timeout         string `toml:"timeout"` // e.g., "120s"
}

// FramesConfig configures first-frame extraction.
type FramesConfig struct {
	FFmpegPath  string `toml:"ffmpeg_path"` // Binary path, default "ffmpeg"
	Timeout     string `toml:"timeout"`     // e.g., "20s"
	JPEGQuality int    `toml:"jpeg_quality"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns the configuration defaults. File, env, and CLI
// values override in that order.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:            8085,
			Host:            "0.0.0.0",
			EmbeddedWorkers: 1,
		},
		Dispatch: DispatchConfig{
			MaxDirect:     15,
			DirectTimeout: "30s",
		},
		Worker: WorkerConfig{
			Concurrency:     5,
			PollInterval:    "1s",
			MaxBackoff:      "30s",
			ShutdownTimeout: "30s",
		},
		Cache: CacheConfig{
			TTLHours:    168,
			SampleLimit: 1000,
		},
		Queue: QueueConfig{
			MaxAttempts: 3,
		},
		GC: GCConfig{
			RetentionDays: 1,
			BatchSize:     250,
			SweepInterval: "1h",
		},
		Storage: StorageConfig{
			Backend: "badger",
			Badger: BadgerConfig{
				Path: "./data/reelscan",
			},
			Firestore: FirestoreConfig{
				CacheCollection:   "video_cache",
				JobsCollection:    "video_jobs",
				ResultsCollection: "video_results",
			},
		},
		Scraper: ScraperConfig{
			RequestTimeout: "60s",
			RatePerSecond:  2,
			Burst:          4,
			EmbedFallback:  true,
			UserAgent:      "reelscan/" + GetVersion(),
		},
		Analyzer: AnalyzerConfig{
			Provider: "gemini",
			Timeout:  "120s",
		},
		Frames: FramesConfig{
			FFmpegPath:  "ffmpeg",
			Timeout:     "20s",
			JPEGQuality: 85,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFile loads configuration from a single file (empty path loads
// defaults + env only).
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration with priority: defaults -> file1 ->
// file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("REELSCAN_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("REELSCAN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("REELSCAN_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if v := os.Getenv("REELSCAN_MAX_DIRECT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Dispatch.MaxDirect = n
		}
	}
	if v := os.Getenv("REELSCAN_DIRECT_TIMEOUT"); v != "" {
		config.Dispatch.DirectTimeout = v
	}

	if v := os.Getenv("REELSCAN_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("REELSCAN_WORKER_POLL_INTERVAL"); v != "" {
		config.Worker.PollInterval = v
	}

	if v := os.Getenv("REELSCAN_CACHE_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Cache.TTLHours = n
		}
	}
	if v := os.Getenv("REELSCAN_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Queue.MaxAttempts = n
		}
	}

	if backend := os.Getenv("REELSCAN_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}
	if badgerPath := os.Getenv("REELSCAN_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if project := os.Getenv("REELSCAN_FIRESTORE_PROJECT"); project != "" {
		config.Storage.Firestore.ProjectID = project
	}

	if key := os.Getenv("REELSCAN_SCRAPER_API_KEY"); key != "" {
		config.Scraper.APIKey = key
	}
	if key := os.Getenv("REELSCAN_GOOGLE_API_KEY"); key != "" {
		config.Analyzer.GoogleAPIKey = key
	}
	if key := os.Getenv("REELSCAN_ANTHROPIC_API_KEY"); key != "" {
		config.Analyzer.AnthropicAPIKey = key
	}
	if provider := os.Getenv("REELSCAN_ANALYZER_PROVIDER"); provider != "" {
		config.Analyzer.Provider = provider
	}

	if level := os.Getenv("REELSCAN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("REELSCAN_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration invariants that would otherwise surface
// as confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Dispatch.MaxDirect < 0 {
		return fmt.Errorf("dispatch.max_direct cannot be negative")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1")
	}
	if c.Cache.TTLHours < 1 {
		return fmt.Errorf("cache.ttl_hours must be at least 1")
	}
	if c.GC.BatchSize < 1 || c.GC.BatchSize > 250 {
		return fmt.Errorf("gc.batch_size must be between 1 and 250")
	}
	switch c.Storage.Backend {
	case "badger", "firestore":
	default:
		return fmt.Errorf("invalid storage backend '%s': must be 'badger' or 'firestore'", c.Storage.Backend)
	}
	if c.Storage.Backend == "firestore" && c.Storage.Firestore.ProjectID == "" {
		return fmt.Errorf("storage.firestore.project_id is required for the firestore backend")
	}
	switch c.Analyzer.Provider {
	case "gemini", "claude":
	default:
		return fmt.Errorf("invalid analyzer provider '%s': must be 'gemini' or 'claude'", c.Analyzer.Provider)
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"dispatch.direct_timeout", c.Dispatch.DirectTimeout},
		{"worker.poll_interval", c.Worker.PollInterval},
		{"worker.max_backoff", c.Worker.MaxBackoff},
		{"worker.shutdown_timeout", c.Worker.ShutdownTimeout},
		{"gc.sweep_interval", c.GC.SweepInterval},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.name, err)
		}
	}
	return nil
}

// DirectTimeout returns the parsed direct-path deadline.
func (c *Config) DirectTimeout() time.Duration {
	return parseDurationOr(c.Dispatch.DirectTimeout, 30*time.Second)
}

// PollInterval returns the parsed worker base poll delay.
func (c *Config) PollInterval() time.Duration {
	return parseDurationOr(c.Worker.PollInterval, time.Second)
}

// MaxBackoff returns the parsed worker poll backoff cap.
func (c *Config) MaxBackoff() time.Duration {
	return parseDurationOr(c.Worker.MaxBackoff, 30*time.Second)
}

// ShutdownTimeout returns the parsed worker drain window.
func (c *Config) ShutdownTimeout() time.Duration {
	return parseDurationOr(c.Worker.ShutdownTimeout, 30*time.Second)
}

// SweepInterval returns the parsed GC sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return parseDurationOr(c.GC.SweepInterval, time.Hour)
}

// ReapStaleAfter returns the stale-lease reap age, or 0 when disabled.
func (c *Config) ReapStaleAfter() time.Duration {
	if c.GC.ReapStaleAfter == "" {
		return 0
	}
	return parseDurationOr(c.GC.ReapStaleAfter, 0)
}

// CacheTTL returns the cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// GCRetention returns the terminal-job retention window.
func (c *Config) GCRetention() time.Duration {
	return time.Duration(c.GC.RetentionDays) * 24 * time.Hour
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
