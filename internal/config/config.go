// Package config provides configuration management for the paper corpus service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the paper corpus service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Registry contains paper registry store settings.
	Registry RegistryConfig `mapstructure:"registry"`
	// Checkpoint contains run checkpoint store settings.
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	// Pipeline contains batch pipeline concurrency settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Dedup contains duplicate detection thresholds.
	Dedup DedupConfig `mapstructure:"dedup"`
	// PDF contains PDF download and conversion settings.
	PDF PDFConfig `mapstructure:"pdf"`
	// LLM contains field extraction provider settings.
	LLM LLMConfig `mapstructure:"llm"`
	// Cache contains extraction cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Kafka contains broker settings for the event publisher and intake listener.
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port" validate:"min=1,max=65535"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IdleTimeout is the maximum duration to keep idle connections open.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// MetricsPort is the worker's standalone metrics listener port (default: 9091).
	// The API server serves metrics on its main port instead.
	MetricsPort int `mapstructure:"metrics_port" validate:"min=1,max=65535"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration. The database backs
// the Postgres extraction cache; deployments on the file cache backend can
// leave these at their defaults.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host" validate:"required"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name" validate:"required"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	// Default is "require" for production security. Use "disable" only for local development.
	SSLMode string `mapstructure:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`
	// MaxConns is the maximum number of connections in the pool (default: 50).
	MaxConns int32 `mapstructure:"max_conns" validate:"gtefield=MinConns"`
	// MinConns is the minimum number of connections to keep open (default: 10).
	MinConns int32 `mapstructure:"min_conns" validate:"min=0"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
	// StatementCacheCapacity is the size of the prepared statement cache.
	StatementCacheCapacity int `mapstructure:"statement_cache_capacity" validate:"min=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic"`
	// Format is the log format (json, console, pretty).
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console pretty"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output" validate:"omitempty,oneof=stdout stderr"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path" validate:"omitempty,startswith=/"`
}

// RegistryConfig holds paper registry store settings.
type RegistryConfig struct {
	// Path is the location of the registry JSON file.
	Path string `mapstructure:"path" validate:"required"`
	// TitleSimilarityThreshold is the minimum trigram title similarity for
	// the registry's fuzzy identity tier (0.0-1.0). Zero uses the store default.
	TitleSimilarityThreshold float64 `mapstructure:"title_similarity_threshold" validate:"gte=0,lte=1"`
}

// CheckpointConfig holds run checkpoint store settings.
type CheckpointConfig struct {
	// Dir is the directory holding one checkpoint file per run.
	Dir string `mapstructure:"dir"`
	// Enabled turns checkpointing on. Interrupted runs cannot resume without it.
	Enabled bool `mapstructure:"enabled"`
}

// PipelineConfig holds batch pipeline concurrency settings. These are
// service-level defaults; individual batch submissions may override the
// per-run values.
type PipelineConfig struct {
	// QueueCapacity bounds the pending work queue (default: 100).
	QueueCapacity int `mapstructure:"queue_capacity" validate:"min=0"`
	// MaxDownloads caps the worker pool size and concurrent PDF downloads (default: 5).
	MaxDownloads int `mapstructure:"max_downloads" validate:"min=0"`
	// MaxConversions caps concurrent PDF-to-markdown conversions (default: 3).
	MaxConversions int `mapstructure:"max_conversions" validate:"min=0"`
	// MaxLLMCalls caps concurrent field extraction requests (default: 5).
	MaxLLMCalls int `mapstructure:"max_llm_calls" validate:"min=0"`
	// CheckpointInterval is the number of completed papers between checkpoint saves (default: 10).
	CheckpointInterval int `mapstructure:"checkpoint_interval" validate:"min=0"`
	// MaxPapers caps how many papers of a batch are accepted (default: 100).
	// Negative means unlimited.
	MaxPapers int `mapstructure:"max_papers"`
}

// DedupConfig holds duplicate detection thresholds for runs that operate
// without a registry.
type DedupConfig struct {
	// TitleThreshold is the trigram title similarity above which two papers
	// are considered potential duplicates (0.0-1.0, default: 0.95).
	TitleThreshold float64 `mapstructure:"title_threshold" validate:"gte=0,lte=1"`
	// AuthorThreshold is the author overlap required to confirm a title match
	// when both papers carry author lists (0.0-1.0, default: 0.5).
	AuthorThreshold float64 `mapstructure:"author_threshold" validate:"gte=0,lte=1"`
}

// PDFConfig holds PDF download and conversion settings.
type PDFConfig struct {
	// StorageDir is where downloaded PDFs and converted markdown are written.
	// Empty disables artifact storage; conversion still works in-memory.
	StorageDir string `mapstructure:"storage_dir"`
	// MaxPages limits how many pages are read per document. Zero reads all.
	MaxPages int `mapstructure:"max_pages" validate:"min=0"`
	// Timeout is the HTTP request timeout for downloads.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxSizeMB is the maximum PDF size in megabytes (default: 100).
	MaxSizeMB int64 `mapstructure:"max_size_mb" validate:"min=0"`
	// UserAgent is the User-Agent header sent with download requests.
	UserAgent string `mapstructure:"user_agent"`
	// RatePerSecond is the sustained download rate across all workers (default: 2).
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"gte=0"`
	// Burst is the download rate limiter burst size.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// LLMConfig holds field extraction provider settings.
type LLMConfig struct {
	// Provider is the LLM provider (openai, anthropic, none). "none" disables
	// field extraction; papers are still fetched, converted, and registered.
	Provider string `mapstructure:"provider" validate:"oneof=openai anthropic none"`
	// Temperature is the sampling temperature for extraction calls.
	Temperature float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0"`
	// TokenSplitRatio is the assumed input share of the token count when a
	// provider reports only a combined total (0.0-1.0, default: 0.7).
	TokenSplitRatio float64 `mapstructure:"token_split_ratio" validate:"gte=0,lte=1"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from PAPERCORPUS_LLM_OPENAI_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the OpenAI model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
	// InputCostPer1K is the USD price per 1000 input tokens, for cost annotation.
	InputCostPer1K float64 `mapstructure:"input_cost_per_1k" validate:"gte=0"`
	// OutputCostPer1K is the USD price per 1000 output tokens, for cost annotation.
	OutputCostPer1K float64 `mapstructure:"output_cost_per_1k" validate:"gte=0"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (loaded from PAPERCORPUS_LLM_ANTHROPIC_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the Anthropic model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
	// InputCostPer1K is the USD price per 1000 input tokens, for cost annotation.
	InputCostPer1K float64 `mapstructure:"input_cost_per_1k" validate:"gte=0"`
	// OutputCostPer1K is the USD price per 1000 output tokens, for cost annotation.
	OutputCostPer1K float64 `mapstructure:"output_cost_per_1k" validate:"gte=0"`
}

// CacheConfig holds extraction cache settings.
type CacheConfig struct {
	// Backend selects the cache backend (file, postgres, disabled).
	Backend string `mapstructure:"backend" validate:"omitempty,oneof=file postgres disabled"`
	// Dir is the entry directory for the file backend.
	Dir string `mapstructure:"dir"`
}

// KafkaConfig holds broker settings shared by the event publisher and the
// batch intake listener.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Events contains pipeline event publisher settings.
	Events EventsConfig `mapstructure:"events"`
	// Intake contains batch submission listener settings.
	Intake IntakeConfig `mapstructure:"intake"`
}

// EventsConfig holds pipeline event publisher settings.
type EventsConfig struct {
	// Enabled controls whether lifecycle events are published.
	Enabled bool `mapstructure:"enabled"`
	// Topic is the Kafka topic for pipeline events.
	Topic string `mapstructure:"topic"`
	// BatchTimeout is the maximum time to hold a message batch before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// IntakeConfig holds batch submission listener settings.
type IntakeConfig struct {
	// Enabled controls whether the worker consumes batch submissions from Kafka.
	Enabled bool `mapstructure:"enabled"`
	// Topic is the Kafka topic carrying batch submissions.
	Topic string `mapstructure:"topic"`
	// GroupID is the consumer group id for the listener.
	GroupID string `mapstructure:"group_id"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PAPERCORPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-corpus-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	// Enum-tagged fields are matched case-sensitively.
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	cfg.Cache.Backend = strings.ToLower(cfg.Cache.Backend)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = os.Getenv("PAPERCORPUS_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("PAPERCORPUS_LLM_ANTHROPIC_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "papercorpus")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "paper_corpus_service")
	// Default to "require" for production security. Use PAPERCORPUS_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 10)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Registry defaults
	v.SetDefault("registry.path", "data/registry.json")
	v.SetDefault("registry.title_similarity_threshold", 0.95)

	// Checkpoint defaults
	v.SetDefault("checkpoint.dir", "data/checkpoints")
	v.SetDefault("checkpoint.enabled", true)

	// Pipeline defaults
	v.SetDefault("pipeline.queue_capacity", 100)
	v.SetDefault("pipeline.max_downloads", 5)
	v.SetDefault("pipeline.max_conversions", 3)
	v.SetDefault("pipeline.max_llm_calls", 5)
	v.SetDefault("pipeline.checkpoint_interval", 10)
	v.SetDefault("pipeline.max_papers", 100)

	// Dedup defaults
	v.SetDefault("dedup.title_threshold", 0.95)
	v.SetDefault("dedup.author_threshold", 0.5)

	// PDF defaults
	v.SetDefault("pdf.storage_dir", "data/papers")
	v.SetDefault("pdf.max_pages", 0)
	v.SetDefault("pdf.timeout", "60s")
	v.SetDefault("pdf.max_size_mb", 100)
	v.SetDefault("pdf.user_agent", "Mozilla/5.0 (compatible; LitForge-PaperCorpus/1.0; +https://litforge.io/bot)")
	v.SetDefault("pdf.rate_per_second", 2.0)
	v.SetDefault("pdf.burst", 2)

	// LLM defaults. Extraction is off until a provider is selected, so the
	// server and migrate binaries start without an API key in the environment.
	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.token_split_ratio", 0.7)
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.openai.model", "gpt-4-turbo")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.openai.input_cost_per_1k", 0.01)
	v.SetDefault("llm.openai.output_cost_per_1k", 0.03)
	v.SetDefault("llm.anthropic.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.anthropic.input_cost_per_1k", 0.003)
	v.SetDefault("llm.anthropic.output_cost_per_1k", 0.015)

	// Cache defaults
	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.dir", "data/extraction_cache")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events.enabled", false)
	v.SetDefault("kafka.events.topic", "events.pipeline.paper_corpus_service")
	v.SetDefault("kafka.events.batch_timeout", "100ms")
	v.SetDefault("kafka.intake.enabled", false)
	v.SetDefault("kafka.intake.topic", "commands.process_batch.paper_corpus_service")
	v.SetDefault("kafka.intake.group_id", "paper-corpus-workers")
}

// validate checks the struct tags declared on the config types.
var validate = validator.New()

// Validate validates the configuration. Range and enum constraints live in
// struct tags; the checks below cover conditions tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			messages := make([]string, 0, len(fieldErrors))
			for _, fe := range fieldErrors {
				messages = append(messages, describeFieldError(fe))
			}
			return errors.New(strings.Join(messages, "; "))
		}
		return err
	}

	// The configured provider must have its API key in the environment
	// before a worker can serve extraction requests.
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("llm provider %q requires PAPERCORPUS_LLM_OPENAI_API_KEY to be set", c.LLM.Provider)
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("llm provider %q requires PAPERCORPUS_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
		}
	case "none":
		// Field extraction disabled; no key needed.
	}

	if c.Checkpoint.Enabled && c.Checkpoint.Dir == "" {
		return errors.New("checkpoint dir is required when checkpointing is enabled")
	}

	if c.Cache.Backend == "file" && c.Cache.Dir == "" {
		return errors.New("cache dir is required for the file cache backend")
	}

	if (c.Kafka.Events.Enabled || c.Kafka.Intake.Enabled) && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka brokers are required when the event publisher or intake listener is enabled")
	}
	if c.Kafka.Events.Enabled && c.Kafka.Events.Topic == "" {
		return errors.New("kafka events topic is required when the event publisher is enabled")
	}
	if c.Kafka.Intake.Enabled {
		if c.Kafka.Intake.Topic == "" {
			return errors.New("kafka intake topic is required when the intake listener is enabled")
		}
		if c.Kafka.Intake.GroupID == "" {
			return errors.New("kafka intake group id is required when the intake listener is enabled")
		}
	}

	return nil
}

// describeFieldError renders one struct-tag violation in plain words.
func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be less than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, fe.Param())
	default:
		return fmt.Sprintf("%s violates the %q constraint", field, fe.Tag())
	}
}
