package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable configuration value object, built once at process
// start and passed into each component. Env vars override the yaml file for
// secrets and deploy-specific knobs.
type Config struct {
	Matcher  MatcherConfig  `yaml:"matcher"`
	Retry    RetryConfig    `yaml:"retry"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	MinIO    MinIOConfig    `yaml:"minio"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logger   LoggerConfig   `yaml:"logger"`
	Server   ServerConfig   `yaml:"server"`
}

type MatcherConfig struct {
	Threshold             float64 `yaml:"threshold"`
	MaxAttachments        int     `yaml:"max_attachments"`
	MaxDescriptionChars   int     `yaml:"max_description_chars"`
	MaxAttachmentChars    int     `yaml:"max_attachment_chars"`
	TopNEvidence          int     `yaml:"top_n_evidence"`
	InterCallDelaySeconds int     `yaml:"inter_call_delay_seconds"`
	RecordTimeoutSeconds  int     `yaml:"record_timeout_seconds"`
	Concurrency           int     `yaml:"concurrency"`
}

type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

type OpenAIConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	ExtractModel string  `yaml:"extract_model"`
	ScoreModel   string  `yaml:"score_model"`
	EmbedModel   string  `yaml:"embed_model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float32 `yaml:"temperature"`
}

type MinIOConfig struct {
	Endpoint       string `yaml:"endpoint"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	UseSSL         bool   `yaml:"use_ssl"`
	RecordsBucket  string `yaml:"records_bucket"`
	OutcomesBucket string `yaml:"outcomes_bucket"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	MatchQueue string `yaml:"match_queue"`
	RoutingKey string `yaml:"routing_key"`
	Prefetch   int    `yaml:"prefetch"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type ServerConfig struct {
	Port        string `yaml:"port"`
	AdminSecret string `yaml:"admin_secret"`
}

// Load reads the yaml config, applies env overrides, fills defaults, and
// validates. A validation error is fatal: the worker must refuse to start
// rather than process records with a broken configuration.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.RabbitMQ.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matcher.Threshold = f
		}
	}
	if v := os.Getenv("MAX_ATTACHMENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matcher.MaxAttachments = n
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("ADMIN_SECRET"); v != "" {
		cfg.Server.AdminSecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Matcher.Threshold == 0 {
		cfg.Matcher.Threshold = 0.7
	}
	if cfg.Matcher.MaxAttachments == 0 {
		cfg.Matcher.MaxAttachments = 5
	}
	if cfg.Matcher.MaxDescriptionChars == 0 {
		cfg.Matcher.MaxDescriptionChars = 12000
	}
	if cfg.Matcher.MaxAttachmentChars == 0 {
		cfg.Matcher.MaxAttachmentChars = 8000
	}
	if cfg.Matcher.TopNEvidence == 0 {
		cfg.Matcher.TopNEvidence = 5
	}
	if cfg.Matcher.RecordTimeoutSeconds == 0 {
		cfg.Matcher.RecordTimeoutSeconds = 300
	}
	if cfg.Matcher.Concurrency == 0 {
		cfg.Matcher.Concurrency = 2
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelayMS == 0 {
		cfg.Retry.BaseDelayMS = 1000
	}
	if cfg.Retry.MaxDelayMS == 0 {
		cfg.Retry.MaxDelayMS = 30000
	}
	if cfg.OpenAI.ExtractModel == "" {
		cfg.OpenAI.ExtractModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.ScoreModel == "" {
		cfg.OpenAI.ScoreModel = "gpt-4o"
	}
	if cfg.OpenAI.EmbedModel == "" {
		cfg.OpenAI.EmbedModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.MaxTokens == 0 {
		cfg.OpenAI.MaxTokens = 2048
	}
	if cfg.OpenAI.Temperature == 0 {
		cfg.OpenAI.Temperature = 0.1
	}
	if cfg.MinIO.RecordsBucket == "" {
		cfg.MinIO.RecordsBucket = "opportunities"
	}
	if cfg.MinIO.OutcomesBucket == "" {
		cfg.MinIO.OutcomesBucket = "match-outcomes"
	}
	if cfg.RabbitMQ.Exchange == "" {
		cfg.RabbitMQ.Exchange = "opportunity.events"
	}
	if cfg.RabbitMQ.MatchQueue == "" {
		cfg.RabbitMQ.MatchQueue = "q.opportunity_match"
	}
	if cfg.RabbitMQ.RoutingKey == "" {
		cfg.RabbitMQ.RoutingKey = "opportunity.match.requested"
	}
	if cfg.RabbitMQ.Prefetch == 0 {
		cfg.RabbitMQ.Prefetch = cfg.Matcher.Concurrency
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8081"
	}
}

// Validate enforces the required settings. Missing values here abort the
// process before any record is consumed.
func (c Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("configuration error: openai api_key is required (OPENAI_API_KEY)")
	}
	if c.MinIO.Endpoint == "" {
		return fmt.Errorf("configuration error: minio endpoint is required (MINIO_ENDPOINT)")
	}
	if c.RabbitMQ.URL == "" {
		return fmt.Errorf("configuration error: rabbitmq url is required (RABBITMQ_URL)")
	}
	if c.Postgres.URL == "" {
		return fmt.Errorf("configuration error: postgres url is required (DATABASE_URL)")
	}
	if c.Matcher.Threshold < 0 || c.Matcher.Threshold > 1 {
		return fmt.Errorf("configuration error: matcher threshold must be in [0,1], got %v", c.Matcher.Threshold)
	}
	return nil
}

// InterCallDelay is the pause inserted between successive LLM invocations
// within a single record's processing, independent of retry backoff.
func (c Config) InterCallDelay() time.Duration {
	return time.Duration(c.Matcher.InterCallDelaySeconds) * time.Second
}

// RecordTimeout is the total wall-clock budget for one record.
func (c Config) RecordTimeout() time.Duration {
	return time.Duration(c.Matcher.RecordTimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the initial backoff delay.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the backoff ceiling.
func (c Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
}
