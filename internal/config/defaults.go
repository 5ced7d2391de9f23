package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Job: JobConfig{
			ID:               "triage-audit",
			Stages:           []string{"in_review"},
			Cooldown:         6 * time.Hour,
			CooldownByStatus: map[string]time.Duration{},
			VerifyPR:         true,
			CommentThreshold: 65536,
			CommentHeading:   "# AMPA Audit Result",
			Completion: CompletionConfig{
				Status: "completed",
				Stage:  "in_review",
				Flags:  map[string]string{},
			},
		},
		CommandTimeout: time.Hour,
		Audit: AuditConfig{
			Command: []string{"opencode", "run", "/audit {id}"},
		},
		Store: StoreConfig{
			Binary:  "wl",
			Timeout: 60 * time.Second,
			Author:  "ampa",
		},
		Cooldown: CooldownConfig{
			Backend: "json",
			Path:    filepath.Join(".ampa", "state", "cooldown.json"),
		},
		Ledger: LedgerConfig{
			Path: filepath.Join(".ampa", "state", "ampa.db"),
		},
		Artifacts: ArtifactsConfig{
			Type: "fs",
			Dir:  filepath.Join(".ampa", "artifacts"),
		},
		CodeHost: CodeHostConfig{
			TokenEnv:          "GITHUB_TOKEN",
			RequestsPerSecond: 1,
			Timeout:           30 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefault writes a commented configuration template to path,
// creating parent directories.
func WriteDefault(path string) error {
	content := `# AMPA Configuration
# Every key can be overridden with an AMPA_ env var, e.g. AMPA_JOB_COOLDOWN=2h

job:
  id: triage-audit
  # Work-item stages to pull audit candidates from
  stages: [in_review]
  # Minimum time between audits of the same item
  cooldown: 6h
  # Per-status overrides, e.g.
  # cooldown_by_status:
  #   blocked: 24h
  cooldown_by_status: {}
  # Ask the code host whether a referenced PR is merged
  verify_pr: true
  # Transcripts longer than this (characters) are stored as artifacts
  comment_threshold: 65536
  comment_heading: "# AMPA Audit Result"
  # Update applied when an item is judged complete
  completion:
    status: completed
    stage: in_review
    flags: {}

# General timeout for external commands
command_timeout: 1h

audit:
  # 0 inherits command_timeout
  timeout: 0s
  # {id} is replaced with the work item id
  command: [opencode, run, "/audit {id}"]
  workdir: ""

store:
  binary: wl
  timeout: 60s
  author: ampa
  workdir: ""

cooldown:
  backend: json  # "json", "sqlite" or "redis"
  path: .ampa/state/cooldown.json
  # redis_url: redis://localhost:6379/0

ledger:
  # Empty disables the run ledger
  path: .ampa/state/ampa.db

artifacts:
  type: fs  # "fs", "s3" or "gcs" (gcs needs -tags gcp)
  dir: .ampa/artifacts
  # s3:
  #   bucket: my-audits
  #   region: us-east-1
  #   endpoint: ""
  #   prefix: ampa/
  # gcs:
  #   bucket: my-audits
  #   prefix: ampa/

codehost:
  token_env: GITHUB_TOKEN
  base_url: ""
  requests_per_second: 1
  timeout: 30s

notify:
  # Discord-compatible webhook; empty logs notifications only
  webhook_url: ""
  timeout: 10s

metrics:
  # node-exporter textfile; empty disables
  textfile: ""

log:
  level: info
  format: text  # "text" or "json"
`
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
