package config

import "time"

// Config represents the full AMPA configuration
type Config struct {
	// Audit job selection and publishing
	Job JobConfig `yaml:"job" mapstructure:"job"`

	// General timeout for external commands
	CommandTimeout time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`

	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cooldown  CooldownConfig  `yaml:"cooldown" mapstructure:"cooldown"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Artifacts ArtifactsConfig `yaml:"artifacts" mapstructure:"artifacts"`
	CodeHost  CodeHostConfig  `yaml:"codehost" mapstructure:"codehost"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// JobConfig configures one audit job.
type JobConfig struct {
	ID       string        `yaml:"id" mapstructure:"id"`
	Stages   []string      `yaml:"stages" mapstructure:"stages"`
	Cooldown time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
	// Per-status overrides of Cooldown; status keys match case-insensitively
	CooldownByStatus map[string]time.Duration `yaml:"cooldown_by_status" mapstructure:"cooldown_by_status"`
	VerifyPR         bool                     `yaml:"verify_pr" mapstructure:"verify_pr"`
	// Transcripts longer than this many characters go to an artifact
	CommentThreshold int              `yaml:"comment_threshold" mapstructure:"comment_threshold"`
	CommentHeading   string           `yaml:"comment_heading" mapstructure:"comment_heading"`
	Completion       CompletionConfig `yaml:"completion" mapstructure:"completion"`
}

// CompletionConfig is the status update applied when an item is closed out.
type CompletionConfig struct {
	Status string            `yaml:"status" mapstructure:"status"`
	Stage  string            `yaml:"stage" mapstructure:"stage"`
	Flags  map[string]string `yaml:"flags" mapstructure:"flags"`
}

// AuditConfig configures the external audit command.
type AuditConfig struct {
	// Zero inherits CommandTimeout
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Argument vector; {id} is replaced in every argument
	Command []string `yaml:"command" mapstructure:"command"`
	Workdir string   `yaml:"workdir" mapstructure:"workdir"`
}

// StoreConfig configures the work-item CLI.
type StoreConfig struct {
	Binary  string        `yaml:"binary" mapstructure:"binary"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Author  string        `yaml:"author" mapstructure:"author"`
	Workdir string        `yaml:"workdir" mapstructure:"workdir"`
}

// CooldownConfig selects the cooldown state backend.
type CooldownConfig struct {
	// "json", "sqlite" or "redis"
	Backend  string `yaml:"backend" mapstructure:"backend"`
	Path     string `yaml:"path" mapstructure:"path"`
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
}

// LedgerConfig configures the SQLite run ledger.
type LedgerConfig struct {
	// Empty disables the ledger
	Path string `yaml:"path" mapstructure:"path"`
}

// ArtifactsConfig configures where oversized transcripts are stored.
type ArtifactsConfig struct {
	// "fs", "s3" or "gcs"
	Type string    `yaml:"type" mapstructure:"type"`
	Dir  string    `yaml:"dir" mapstructure:"dir"`
	S3   S3Config  `yaml:"s3" mapstructure:"s3"`
	GCS  GCSConfig `yaml:"gcs" mapstructure:"gcs"`
}

// S3Config configures the S3 artifact backend.
type S3Config struct {
	Bucket   string `yaml:"bucket" mapstructure:"bucket"`
	Region   string `yaml:"region" mapstructure:"region"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// GCSConfig configures the GCS artifact backend.
type GCSConfig struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// CodeHostConfig configures merged-PR verification.
type CodeHostConfig struct {
	// Name of the env var holding the API token
	TokenEnv          string        `yaml:"token_env" mapstructure:"token_env"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// NotifyConfig configures notifications.
type NotifyConfig struct {
	// Empty means log-only
	WebhookURL string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	// node-exporter textfile path; empty disables
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}
