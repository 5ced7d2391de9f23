// Package analyzer runs the external audit step for one work item.
//
// The analyzer never returns an error to its caller: spawn failures,
// timeouts, and non-zero exits all come back as a Transcript whose text
// describes what happened and whose exit code is non-zero.
package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Synthetic exit codes for failures that produce no process exit status.
const (
	ExitTimeout    = 124
	ExitSpawnError = 127
)

// IDPlaceholder is substituted with the work item id in every command argument.
const IDPlaceholder = "{id}"

// Transcript is the captured output of one audit invocation.
type Transcript struct {
	Text     string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Succeeded reports a clean exit with some output.
func (t Transcript) Succeeded() bool {
	return t.ExitCode == 0 && strings.TrimSpace(t.Text) != ""
}

// Analyzer runs the audit for a single item id.
type Analyzer interface {
	Invoke(ctx context.Context, id string) Transcript
}

// Config configures the exec-backed analyzer.
type Config struct {
	// Command is the argv template; IDPlaceholder is replaced in each element.
	Command []string
	// Dir is the working directory for the process.
	Dir string
	// Timeout bounds one invocation. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// Exec runs the audit as a child process.
type Exec struct {
	cfg Config
	now func() time.Time
}

// NewExec validates cfg and returns an exec-backed analyzer.
func NewExec(cfg Config) (*Exec, error) {
	if len(cfg.Command) == 0 || strings.TrimSpace(cfg.Command[0]) == "" {
		return nil, errors.New("analyzer: command is required")
	}
	return &Exec{cfg: cfg, now: time.Now}, nil
}

// Args returns the argv that would run for id.
func (e *Exec) Args(id string) []string {
	args := make([]string, len(e.cfg.Command))
	for i, a := range e.cfg.Command {
		args[i] = strings.ReplaceAll(a, IDPlaceholder, id)
	}
	return args
}

// Invoke runs the audit for id. Stdout and stderr are concatenated in that
// order.
func (e *Exec) Invoke(ctx context.Context, id string) Transcript {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	argv := e.Args(id)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.cfg.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := e.now()
	err := cmd.Run()
	elapsed := e.now().Sub(start)

	text := stdout.String() + stderr.String()
	if err == nil {
		return Transcript{Text: text, ExitCode: 0, Duration: elapsed}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Transcript{
			Text:     appendLine(text, fmt.Sprintf("audit of %s timed out after %s", id, e.cfg.Timeout)),
			ExitCode: ExitTimeout,
			Duration: elapsed,
			TimedOut: true,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return Transcript{Text: text, ExitCode: exitErr.ExitCode(), Duration: elapsed}
	}

	return Transcript{
		Text:     appendLine(text, fmt.Sprintf("audit of %s failed to run: %v", id, err)),
		ExitCode: ExitSpawnError,
		Duration: elapsed,
	}
}

func appendLine(text, line string) string {
	if text == "" {
		return line
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text + line
}
