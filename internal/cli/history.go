package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/config"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit  int
	ItemID string
	JobID  string // empty means job.id from config; "*" means every job
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded audit cycles",
		Long: `List audit cycles recorded in the run ledger, newest first.

With a run id, print that single run in full.

Examples:
  ampa history
  ampa history --limit 5 --item WL-42
  ampa history --job '*' --format json
  ampa history 01920c4e-7b7a-7cc2-9f4a-3f0e5a1b2c3d`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runHistoryShow(opts, args[0], cmd)
			}
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs (0 for all)")
	cmd.Flags().StringVar(&opts.ItemID, "item", "", "only runs that audited this item")
	cmd.Flags().StringVar(&opts.JobID, "job", "", "job id (default job.id from config, '*' for all)")

	return cmd
}

// openLedgerForRead opens the configured ledger, failing when it is disabled
// or has never been written.
func openLedgerForRead(cfg *config.Config) (*store.Store, error) {
	if cfg.Ledger.Path == "" {
		return nil, NewExitError(ExitCommandError, "run ledger is disabled (ledger.path is empty)")
	}
	if _, err := os.Stat(cfg.Ledger.Path); err != nil {
		return nil, WrapExitError(ExitCommandError, "run ledger not found", err)
	}
	st, err := store.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	return st, nil
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	jobID := opts.JobID
	switch jobID {
	case "":
		jobID = cfg.Job.ID
	case "*":
		jobID = ""
	}

	st, err := openLedgerForRead(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ReadRuns(commandContext(cmd), store.RunFilter{JobID: jobID, ItemID: opts.ItemID, Limit: opts.Limit})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read ledger", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(runs)
	}
	writeHistoryText(cmd.OutOrStdout(), runs)
	return nil
}

func runHistoryShow(opts *HistoryOptions, runID string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := openLedgerForRead(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.ReadRun(commandContext(cmd), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return WrapExitError(ExitFailure, "unknown run", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read ledger", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(run)
	}
	writeRunText(cmd.OutOrStdout(), run)
	return nil
}

func writeHistoryText(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No recorded runs")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tJOB\tITEM\tOUTCOME\tEXIT\tFAILURES\tRUN")
	for _, r := range runs {
		item := r.ItemID
		if item == "" {
			item = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.StartedAt.UTC().Format(time.RFC3339), r.JobID, item, r.Outcome,
			exitText(r), len(r.Failures), r.ID)
	}
	tw.Flush()
}

func writeRunText(w io.Writer, r store.Run) {
	fmt.Fprintf(w, "Run:       %s\n", r.ID)
	fmt.Fprintf(w, "Job:       %s\n", r.JobID)
	if r.ItemID != "" {
		fmt.Fprintf(w, "Item:      %s\n", r.ItemID)
	}
	fmt.Fprintf(w, "Outcome:   %s\n", r.Outcome)
	fmt.Fprintf(w, "Started:   %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:  %s\n", r.Duration())
	fmt.Fprintf(w, "Exit:      %s\n", exitText(r))
	if r.ReportSource != "" {
		fmt.Fprintf(w, "Report:    %s\n", r.ReportSource)
	}
	fmt.Fprintf(w, "Comment:   %s\n", yesNo(r.CommentPosted))
	if r.ArtifactRef != "" {
		fmt.Fprintf(w, "Artifact:  %s\n", r.ArtifactRef)
	}
	fmt.Fprintf(w, "Completed: %s\n", yesNo(r.Completed))
	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures (%d):\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
}

// exitText renders the exit code, or "-" when nothing was invoked.
func exitText(r store.Run) string {
	switch {
	case r.ItemID == "" || r.Outcome == "selected":
		return "-"
	case r.TimedOut:
		return fmt.Sprintf("%d (timeout)", r.ExitCode)
	default:
		return fmt.Sprintf("%d", r.ExitCode)
	}
}
