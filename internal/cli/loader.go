package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/analyzer"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/artifact"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/codehost"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/config"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/engine"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/notify"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/store"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

// loadConfig reads the configuration named by --config (or the default
// path). Errors are command errors.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// jobFromConfig maps the job section onto the engine's job description.
func jobFromConfig(cfg *config.Config) engine.Job {
	return engine.Job{
		ID:               cfg.Job.ID,
		Stages:           cfg.Job.Stages,
		Cooldown:         cfg.Job.Cooldown,
		CooldownByStatus: cfg.Job.CooldownByStatus,
		VerifyPR:         cfg.Job.VerifyPR,
		CommentThreshold: cfg.Job.CommentThreshold,
		CommentHeading:   cfg.Job.CommentHeading,
		Completion: workitem.StatusUpdate{
			Status: cfg.Job.Completion.Status,
			Stage:  cfg.Job.Completion.Stage,
			Flags:  cfg.Job.Completion.Flags,
		},
	}
}

// closers collects resources to release when a command finishes.
type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openStore opens (creating parent directories) the SQLite database at path.
func openStore(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return store.Open(path)
}

// openLedger opens the run ledger, or returns nil when it is disabled.
func openLedger(cfg *config.Config) (*store.Store, error) {
	if cfg.Ledger.Path == "" {
		return nil, nil
	}
	st, err := openStore(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", cfg.Ledger.Path, err)
	}
	return st, nil
}

// openCooldowns opens the configured cooldown backend. When the sqlite
// backend points at the ledger database the ledger connection is reused.
func openCooldowns(ctx context.Context, cfg *config.Config, ledger *store.Store) (cooldown.StateStore, io.Closer, error) {
	switch cfg.Cooldown.Backend {
	case "", "json":
		return cooldown.NewFileStore(cfg.Cooldown.Path), nil, nil
	case "sqlite":
		if ledger != nil && filepath.Clean(cfg.Cooldown.Path) == filepath.Clean(cfg.Ledger.Path) {
			return ledger, nil, nil
		}
		st, err := openStore(cfg.Cooldown.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open cooldown database %s: %w", cfg.Cooldown.Path, err)
		}
		return st, st, nil
	case "redis":
		rs, err := cooldown.DialRedis(ctx, cfg.Cooldown.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return rs, rs, nil
	default:
		return nil, nil, fmt.Errorf("unknown cooldown backend %q", cfg.Cooldown.Backend)
	}
}

func newWorkItems(cfg *config.Config) workitem.Store {
	return workitem.NewCLIStore(workitem.CLIConfig{
		Binary:  cfg.Store.Binary,
		Dir:     cfg.Store.Workdir,
		Author:  cfg.Store.Author,
		Timeout: cfg.Store.Timeout,
	})
}

func newAnalyzer(cfg *config.Config) (analyzer.Analyzer, error) {
	ex, err := analyzer.NewExec(analyzer.Config{
		Command: cfg.Audit.Command,
		Dir:     cfg.Audit.Workdir,
		Timeout: cfg.AuditTimeout(),
	})
	if err != nil {
		return nil, err
	}
	return ex, nil
}

// newCodeHost returns nil when PR verification is off.
func newCodeHost(cfg *config.Config) (codehost.CodeHost, error) {
	if !cfg.Job.VerifyPR {
		return nil, nil
	}
	gh, err := codehost.NewGitHub(codehost.GitHubConfig{
		Token:             os.Getenv(cfg.CodeHost.TokenEnv),
		BaseURL:           cfg.CodeHost.BaseURL,
		RequestsPerSecond: cfg.CodeHost.RequestsPerSecond,
		Timeout:           cfg.CodeHost.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return gh, nil
}

func newArtifacts(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	return artifact.New(ctx, artifact.Config{
		Type: artifact.StoreType(cfg.Artifacts.Type),
		Dir:  cfg.Artifacts.Dir,
		S3: artifact.S3Config{
			Bucket:   cfg.Artifacts.S3.Bucket,
			Region:   cfg.Artifacts.S3.Region,
			Endpoint: cfg.Artifacts.S3.Endpoint,
			Prefix:   cfg.Artifacts.S3.Prefix,
		},
		GCS: artifact.GCSConfig{
			Bucket: cfg.Artifacts.GCS.Bucket,
			Prefix: cfg.Artifacts.GCS.Prefix,
		},
	})
}

// newNotifier always logs; a webhook URL adds webhook delivery.
func newNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	logNotifier := notify.NewLogNotifier(logger)
	if cfg.Notify.WebhookURL == "" {
		return logNotifier
	}
	return notify.Multi{logNotifier, notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout)}
}
