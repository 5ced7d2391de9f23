package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/analyzer"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/codehost"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/config"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/engine"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/metrics"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/notify"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/workitem"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	DryRun bool

	// Collaborator overrides (for testing). Nil fields are built from config.
	Items     workitem.Store
	Analyzer  analyzer.Analyzer
	Cooldowns cooldown.StateStore
	CodeHost  codehost.CodeHost
	Notifier  notify.Notifier
	RunIDs    engine.RunIDGenerator
	Clock     engine.Clock
}

// AuditReport is the JSON shape of one cycle.
type AuditReport struct {
	engine.CycleResult
	Failures []string `json:"failures"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	return newAuditCommand(&AuditOptions{RootOptions: rootOpts})
}

func newAuditCommand(opts *AuditOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run one triage audit cycle",
		Long: `Run one triage audit cycle.

The cycle lists work items in the configured stages, picks the one most in
need of an audit (never-audited items first, then the oldest audit), runs the
audit command against it, posts the report as a comment, records the audit
time, and closes the item out when its PR is merged, its children are done,
and the audit says it is ready.

At most one item is audited per invocation. Run it from a scheduler.

Exit codes:
  0  cycle finished (including "no candidates")
  1  the audit failed or a result could not be recorded
  2  invalid flags or configuration

Examples:
  ampa audit
  ampa audit --dry-run
  ampa audit --config ./ampa.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "select a candidate without auditing it")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, m, cleanup, err := buildEngine(ctx, opts, cfg, logger)
	if err != nil {
		_ = cleanup.Close()
		return err
	}
	defer func() {
		if closeErr := cleanup.Close(); closeErr != nil {
			logger.Error("error releasing resources", "error", closeErr)
		}
	}()

	res, cycleErr := eng.RunCycle(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	formatter.VerboseLog("run %s: job=%s eligible=%d outcome=%s", res.RunID, res.JobID, res.Eligible, res.Outcome)
	if res.Candidate != nil {
		formatter.VerboseLog("run %s: report_source=%s comment_posted=%t artifact=%q cooldown_updated=%t",
			res.RunID, res.ReportSource, res.CommentPosted, res.ArtifactRef, res.CooldownUpdated)
	}
	if opts.Format == "json" {
		if err := formatter.Success(AuditReport{CycleResult: res, Failures: res.FailureMessages()}); err != nil {
			return WrapExitError(ExitFailure, "failed to write output", err)
		}
	} else {
		writeCycleText(cmd.OutOrStdout(), res)
	}

	if cycleErr != nil {
		return WrapExitError(ExitFailure, "audit cycle interrupted", cycleErr)
	}
	return cycleExitError(res)
}

// buildEngine wires the engine from cfg, honoring any overrides in opts.
// The returned closer releases every opened resource.
func buildEngine(ctx context.Context, opts *AuditOptions, cfg *config.Config, logger *slog.Logger) (*engine.Engine, *metrics.Metrics, io.Closer, error) {
	var cleanup closers

	ledger, err := openLedger(cfg)
	if err != nil {
		return nil, nil, cleanup, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	if ledger != nil {
		cleanup = append(cleanup, ledger)
	}

	cooldowns := opts.Cooldowns
	if cooldowns == nil {
		var c io.Closer
		cooldowns, c, err = openCooldowns(ctx, cfg, ledger)
		if err != nil {
			return nil, nil, cleanup, WrapExitError(ExitCommandError, "failed to open cooldown store", err)
		}
		if c != nil {
			cleanup = append(cleanup, c)
		}
	}

	items := opts.Items
	if items == nil {
		items = newWorkItems(cfg)
	}

	an := opts.Analyzer
	if an == nil {
		an, err = newAnalyzer(cfg)
		if err != nil {
			return nil, nil, cleanup, WrapExitError(ExitCommandError, "invalid audit command", err)
		}
	}

	host := opts.CodeHost
	if host == nil {
		host, err = newCodeHost(cfg)
		if err != nil {
			return nil, nil, cleanup, WrapExitError(ExitCommandError, "failed to configure code host", err)
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = newNotifier(cfg, logger)
	}

	m := metrics.New()
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithNotifier(notifier),
		engine.WithDryRun(opts.DryRun),
	}
	if ledger != nil {
		engineOpts = append(engineOpts, engine.WithLedger(ledger))
	}
	if host != nil {
		engineOpts = append(engineOpts, engine.WithCodeHost(host))
	}
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDs(opts.RunIDs))
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(opts.Clock))
	}

	// Without an artifact store oversized transcripts are truncated inline.
	arts, err := newArtifacts(ctx, cfg)
	if err != nil {
		logger.Warn("artifact store unavailable", "type", cfg.Artifacts.Type, "error", err)
	} else {
		engineOpts = append(engineOpts, engine.WithArtifacts(arts))
		if c, ok := arts.(io.Closer); ok {
			cleanup = append(cleanup, c)
		}
	}

	eng, err := engine.New(items, an, cooldowns, jobFromConfig(cfg), engineOpts...)
	if err != nil {
		return nil, nil, cleanup, WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	return eng, m, cleanup, nil
}

// cycleExitError maps a finished cycle onto the exit code. Report parse
// failures alone are not fatal: the raw transcript was still published.
func cycleExitError(res engine.CycleResult) error {
	if res.Outcome == engine.OutcomeAuditFailed {
		return NewExitError(ExitFailure, fmt.Sprintf("audit of %s failed (exit %d)", res.Candidate.ID, res.ExitCode))
	}
	var fatal []string
	for _, f := range res.Failures {
		if f.Kind != engine.FailureParse {
			fatal = append(fatal, f.Error())
		}
	}
	if len(fatal) > 0 {
		return WrapExitError(ExitFailure, "audit cycle finished with failures", errors.New(strings.Join(fatal, "; ")))
	}
	return nil
}

func writeCycleText(w io.Writer, res engine.CycleResult) {
	if res.Candidate == nil {
		fmt.Fprintf(w, "No audit candidates (job %s)\n", res.JobID)
		writeFailuresText(w, res)
		return
	}

	c := res.Candidate
	fmt.Fprintf(w, "Run:       %s\n", res.RunID)
	fmt.Fprintf(w, "Outcome:   %s\n", res.Outcome)
	fmt.Fprintf(w, "Item:      %s  %s\n", c.ID, c.Title)
	fmt.Fprintf(w, "Eligible:  %d\n", res.Eligible)
	if res.Outcome == engine.OutcomeSelected {
		writeFailuresText(w, res)
		return
	}

	exit := fmt.Sprintf("%d", res.ExitCode)
	if res.TimedOut {
		exit += " (timed out)"
	}
	fmt.Fprintf(w, "Exit:      %s\n", exit)
	if res.ReportSource != "" {
		fmt.Fprintf(w, "Report:    %s\n", res.ReportSource)
	}
	fmt.Fprintf(w, "Comment:   %s\n", yesNo(res.CommentPosted))
	if res.ArtifactRef != "" {
		fmt.Fprintf(w, "Artifact:  %s\n", res.ArtifactRef)
	}
	fmt.Fprintf(w, "Cooldown:  %s\n", yesNo(res.CooldownUpdated))
	if res.Decision != nil {
		d := res.Decision
		fmt.Fprintf(w, "Merged PR: %s (%s)\n", yesNo(d.MergedPR), d.Evidence)
		fmt.Fprintf(w, "Children:  %s\n", openDone(d.ChildrenOpen))
		fmt.Fprintf(w, "Ready:     %s\n", yesNo(d.ReadyToken))
	}
	fmt.Fprintf(w, "Completed: %s\n", yesNo(res.Completed))
	if res.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", res.Summary)
	}
	writeFailuresText(w, res)
}

func writeFailuresText(w io.Writer, res engine.CycleResult) {
	if len(res.Failures) == 0 {
		return
	}
	fmt.Fprintf(w, "\nFailures (%d):\n", len(res.Failures))
	for _, msg := range res.FailureMessages() {
		fmt.Fprintf(w, "  - %s\n", msg)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func openDone(open bool) string {
	if open {
		return "open"
	}
	return "done"
}
