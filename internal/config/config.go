// Package config provides configuration loading and management for courier.
// It supports loading configuration from YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Role selects which process the configuration is validated for.
type Role string

const (
	// RolePublisher is the ingress service that enqueues work items.
	RolePublisher Role = "publisher"
	// RoleSubscriber is the consumer service that processes work items.
	RoleSubscriber Role = "subscriber"
)

// QueueBackend selects the queue implementation.
type QueueBackend string

const (
	// QueueBackendMemory keeps messages in process. Publisher and subscriber
	// only share it when they run in the same process (tests, local dev).
	QueueBackendMemory QueueBackend = "memory"
	// QueueBackendSQS uses AWS SQS.
	QueueBackendSQS QueueBackend = "sqs"
	// QueueBackendPostgres uses a PostgreSQL table as a lease queue.
	QueueBackendPostgres QueueBackend = "postgres"
)

// IsValid returns true if the queue backend is known.
func (b QueueBackend) IsValid() bool {
	switch b {
	case QueueBackendMemory, QueueBackendSQS, QueueBackendPostgres:
		return true
	default:
		return false
	}
}

// OutcomeStoreKind selects where processing outcomes are persisted.
type OutcomeStoreKind string

const (
	OutcomeStoreNone          OutcomeStoreKind = "none"
	OutcomeStoreMemory        OutcomeStoreKind = "memory"
	OutcomeStoreRedis         OutcomeStoreKind = "redis"
	OutcomeStorePostgres      OutcomeStoreKind = "postgres"
	OutcomeStoreElasticsearch OutcomeStoreKind = "elasticsearch"
)

// IsValid returns true if the outcome store kind is known.
func (k OutcomeStoreKind) IsValid() bool {
	switch k {
	case OutcomeStoreNone, OutcomeStoreMemory, OutcomeStoreRedis, OutcomeStorePostgres, OutcomeStoreElasticsearch:
		return true
	default:
		return false
	}
}

// Config represents the complete application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Queue         QueueConfig         `yaml:"queue"`
	AWS           AWSConfig           `yaml:"aws"`
	Consumer      ConsumerConfig      `yaml:"consumer"`
	Inference     InferenceConfig     `yaml:"inference"`
	Outcomes      OutcomesConfig      `yaml:"outcomes"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Redis         RedisConfig         `yaml:"redis"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Logger        LoggerConfig        `yaml:"logger"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	BodyLimit    int           `yaml:"body_limit"`

	// CORSAllowOrigins is a comma-separated list of allowed origins.
	CORSAllowOrigins string `yaml:"cors_allow_origins"`
}

// QueueConfig identifies the queue both services talk to.
type QueueConfig struct {
	Backend QueueBackend `yaml:"backend"`

	// Address is the SQS queue URL, or the queue name for the postgres and
	// memory backends.
	Address string `yaml:"address"`

	// Retention bounds how long undeleted messages are kept by the memory
	// and postgres backends. SQS retention is a property of the queue itself.
	Retention time.Duration `yaml:"retention"`
}

// AWSConfig holds the region/account context for the SQS backend.
type AWSConfig struct {
	Region string `yaml:"region"`

	// Endpoint overrides the SQS endpoint (LocalStack, ElasticMQ).
	Endpoint string `yaml:"endpoint"`
}

// ConsumerConfig holds the polling parameters of the subscriber loop.
type ConsumerConfig struct {
	BatchSize         int           `yaml:"batch_size"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	WaitTime          time.Duration `yaml:"wait_time"`
	StatsInterval     time.Duration `yaml:"stats_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	NotifyTimeout     time.Duration `yaml:"notify_timeout"`
}

// InferenceConfig selects and authenticates the item processor.
type InferenceConfig struct {
	// Provider is "openai" or "echo".
	Provider       string        `yaml:"provider"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	SystemPrompt   string        `yaml:"system_prompt"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// OutcomesConfig controls where processing outcomes go.
type OutcomesConfig struct {
	Store        OutcomeStoreKind `yaml:"store"`
	TTL          time.Duration    `yaml:"ttl"`
	KafkaEnabled bool             `yaml:"kafka_enabled"`
}

// KafkaConfig holds Kafka connection and topic settings for outcome notifications.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`
}

// ElasticsearchConfig holds Elasticsearch connection settings.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Index     string   `yaml:"index"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Load reads configuration from the specified YAML file path.
// An empty path skips the file and builds the configuration from defaults
// and the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		// Clean the path to prevent path traversal attacks
		cleanPath := filepath.Clean(path)
		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	// Apply defaults for any unset values
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides copies recognized environment variables over file values.
// The variable names match the ones the services were deployed with.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("SQS_URL"); ok && v != "" {
		cfg.Queue.Address = v
	}
	if v, ok := lookup("QUEUE_BACKEND"); ok && v != "" {
		cfg.Queue.Backend = QueueBackend(v)
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("AWS_ACCOUNT_REGION"); ok && v != "" {
		cfg.AWS.Region = v
	}
	if v, ok := lookup("SQS_ENDPOINT"); ok && v != "" {
		cfg.AWS.Endpoint = v
	}
	if v, ok := lookup("OPENAI_API_KEY"); ok && v != "" {
		cfg.Inference.APIKey = v
	}
	if v, ok := lookup("OPENAI_MODEL"); ok && v != "" {
		cfg.Inference.Model = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.Logger.Level = v
	}
	return nil
}

// applyDefaults sets sensible default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.BodyLimit == 0 {
		cfg.Server.BodyLimit = 512 * 1024
	}
	if cfg.Server.CORSAllowOrigins == "" {
		cfg.Server.CORSAllowOrigins = "*"
	}

	// Queue defaults
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = QueueBackendSQS
	}
	if cfg.Queue.Retention == 0 {
		cfg.Queue.Retention = 14 * 24 * time.Hour
	}

	// Consumer defaults
	if cfg.Consumer.BatchSize == 0 {
		cfg.Consumer.BatchSize = 10
	}
	if cfg.Consumer.VisibilityTimeout == 0 {
		cfg.Consumer.VisibilityTimeout = 60 * time.Second
	}
	if cfg.Consumer.WaitTime == 0 {
		cfg.Consumer.WaitTime = 10 * time.Second
	}
	if cfg.Consumer.StatsInterval == 0 {
		cfg.Consumer.StatsInterval = 10 * time.Second
	}
	if cfg.Consumer.ShutdownTimeout == 0 {
		cfg.Consumer.ShutdownTimeout = 90 * time.Second
	}
	if cfg.Consumer.NotifyTimeout == 0 {
		cfg.Consumer.NotifyTimeout = 5 * time.Second
	}

	// Inference defaults
	if cfg.Inference.Provider == "" {
		cfg.Inference.Provider = "openai"
	}
	if cfg.Inference.BaseURL == "" {
		cfg.Inference.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Inference.SystemPrompt == "" {
		cfg.Inference.SystemPrompt = "You are a helpful assistant."
	}
	if cfg.Inference.RequestTimeout == 0 {
		cfg.Inference.RequestTimeout = 45 * time.Second
	}

	// Outcome defaults
	if cfg.Outcomes.Store == "" {
		cfg.Outcomes.Store = OutcomeStoreNone
	}
	if cfg.Outcomes.TTL == 0 {
		cfg.Outcomes.TTL = 7 * 24 * time.Hour
	}

	// Kafka defaults
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "courier-outcomes"
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 5 * time.Second
	}
	if cfg.Kafka.MaxAttempts == 0 {
		cfg.Kafka.MaxAttempts = 3
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	// Postgres defaults
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}

	// Elasticsearch defaults
	if len(cfg.Elasticsearch.Addresses) == 0 {
		cfg.Elasticsearch.Addresses = []string{"http://localhost:9200"}
	}
	if cfg.Elasticsearch.Index == "" {
		cfg.Elasticsearch.Index = "courier-outcomes"
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}
}

// Validate checks that every option required by role is present.
// A missing option is a startup error, never a runtime retry condition.
func (c *Config) Validate(role Role) error {
	var errs []error

	if !c.Queue.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("queue.backend %q is not one of memory, sqs, postgres", c.Queue.Backend))
	}
	if c.Queue.Address == "" {
		errs = append(errs, errors.New("queue.address (SQS_URL) is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port (PORT) %d is out of range", c.Server.Port))
	}
	if c.Queue.Backend == QueueBackendSQS && c.AWS.Region == "" {
		errs = append(errs, errors.New("aws.region (AWS_ACCOUNT_REGION) is required for the sqs backend"))
	}

	if role == RoleSubscriber {
		switch c.Inference.Provider {
		case "openai":
			if c.Inference.APIKey == "" {
				errs = append(errs, errors.New("inference.api_key (OPENAI_API_KEY) is required"))
			}
			if c.Inference.Model == "" {
				errs = append(errs, errors.New("inference.model (OPENAI_MODEL) is required"))
			}
		case "echo":
		default:
			errs = append(errs, fmt.Errorf("inference.provider %q is not one of openai, echo", c.Inference.Provider))
		}

		if c.Consumer.BatchSize < 1 {
			errs = append(errs, errors.New("consumer.batch_size must be at least 1"))
		}
		if !c.Outcomes.Store.IsValid() {
			errs = append(errs, fmt.Errorf("outcomes.store %q is not recognized", c.Outcomes.Store))
		}
	}

	return errors.Join(errs...)
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
