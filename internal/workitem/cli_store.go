package workitem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// CommandRunner executes name with args in dir and returns stdout. Tests
// replace it to avoid shelling out.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// CLIConfig configures the command-line tracker adapter.
type CLIConfig struct {
	// Binary is the tracker executable, e.g. "wl".
	Binary string
	// Dir is the working directory the tracker runs in.
	Dir string
	// Author is recorded on comments posted by the audit job.
	Author string
	// Timeout bounds each individual tracker call.
	Timeout time.Duration
}

// CLIStore implements Store by invoking the tracker CLI with --json output.
type CLIStore struct {
	cfg CLIConfig
	run CommandRunner
}

// CLIOption customizes a CLIStore.
type CLIOption func(*CLIStore)

// WithCommandRunner swaps the process runner.
func WithCommandRunner(run CommandRunner) CLIOption {
	return func(s *CLIStore) {
		if run != nil {
			s.run = run
		}
	}
}

// NewCLIStore returns a Store backed by the tracker binary.
func NewCLIStore(cfg CLIConfig, opts ...CLIOption) *CLIStore {
	if cfg.Binary == "" {
		cfg.Binary = "wl"
	}
	s := &CLIStore{cfg: cfg, run: defaultCommandRunner}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListByStage returns every item currently in stage.
func (s *CLIStore) ListByStage(ctx context.Context, stage string) ([]Candidate, error) {
	out, err := s.exec(ctx, "list", "--stage", stage, "--json")
	if err != nil {
		return nil, err
	}
	items, err := parseCandidates(out)
	if err != nil {
		return nil, fmt.Errorf("list stage %q: %w", stage, err)
	}
	return items, nil
}

// Show returns the item with its children and comments.
func (s *CLIStore) Show(ctx context.Context, id string) (Record, error) {
	out, err := s.exec(ctx, "show", id, "--children", "--json")
	if err != nil {
		return Record{}, err
	}
	rec, err := parseRecord(out)
	if err != nil {
		return Record{}, fmt.Errorf("show %s: %w", id, err)
	}
	return rec, nil
}

// AddComment posts text as a comment on id.
func (s *CLIStore) AddComment(ctx context.Context, id, text string) error {
	args := []string{"comment", "add", id, "--comment", text}
	if s.cfg.Author != "" {
		args = append(args, "--author", s.cfg.Author)
	}
	args = append(args, "--json")
	_, err := s.exec(ctx, args...)
	return err
}

// UpdateStatus applies a status/stage transition. Flags are emitted in key
// order so invocations are reproducible.
func (s *CLIStore) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	args := []string{"update", id}
	if update.Status != "" {
		args = append(args, "--status", update.Status)
	}
	if update.Stage != "" {
		args = append(args, "--stage", update.Stage)
	}
	keys := make([]string, 0, len(update.Flags))
	for k := range update.Flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--"+strings.TrimLeft(k, "-"), update.Flags[k])
	}
	args = append(args, "--json")
	_, err := s.exec(ctx, args...)
	return err
}

func (s *CLIStore) exec(ctx context.Context, args ...string) ([]byte, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	out, err := s.run(ctx, s.cfg.Dir, s.cfg.Binary, args...)
	if err != nil {
		return out, fmt.Errorf("%w: %s %s: %v", ErrCommandFailed, s.cfg.Binary, args[0], err)
	}
	return out, nil
}

func defaultCommandRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.Bytes(), fmt.Errorf("timed out: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return stdout.Bytes(), errors.New(msg)
	}
	return stdout.Bytes(), nil
}
