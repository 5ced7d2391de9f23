package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cooldown"
)

// CooldownOptions holds flags shared by the cooldown subcommands.
type CooldownOptions struct {
	*RootOptions
	JobID string // empty means job.id from config
}

// CooldownEntry is one item's last audit time.
type CooldownEntry struct {
	ItemID    string    `json:"item_id"`
	LastAudit time.Time `json:"last_audit"`
}

// NewCooldownCommand creates the cooldown command and its subcommands.
func NewCooldownCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CooldownOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cooldown",
		Short: "Inspect or reset per-item audit cooldowns",
		Long: `Inspect or reset the persisted last-audit times of a job.

An item is not audited again until its cooldown has elapsed. Resetting an
item makes it eligible on the next cycle unless an audit comment on the item
itself is still recent.`,
	}
	cmd.PersistentFlags().StringVar(&opts.JobID, "job", "", "job id (default job.id from config)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List last audit times, oldest first",
		Example: `  ampa cooldown list
  ampa cooldown list --job nightly --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCooldownList(opts, cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "reset <item-id>",
		Short:         "Forget the last audit time of one item",
		Example:       `  ampa cooldown reset WL-42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCooldownReset(opts, args[0], cmd)
		},
	})

	return cmd
}

// withCooldowns opens the configured backend for the duration of fn.
func withCooldowns(ctx context.Context, opts *CooldownOptions, fn func(s cooldown.StateStore, jobID string) error) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	jobID := opts.JobID
	if jobID == "" {
		jobID = cfg.Job.ID
	}

	s, closer, err := openCooldowns(ctx, cfg, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open cooldown store", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	return fn(s, jobID)
}

func runCooldownList(opts *CooldownOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	return withCooldowns(ctx, opts, func(s cooldown.StateStore, jobID string) error {
		records, err := s.Get(ctx, jobID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read cooldown state", err)
		}
		entries := sortedEntries(records)

		if opts.Format == "json" {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Success(map[string]any{"job_id": jobID, "items": entries})
		}
		writeCooldownText(cmd.OutOrStdout(), jobID, entries)
		return nil
	})
}

func runCooldownReset(opts *CooldownOptions, itemID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	return withCooldowns(ctx, opts, func(s cooldown.StateStore, jobID string) error {
		removed, err := cooldown.Forget(ctx, s, jobID, itemID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to update cooldown state", err)
		}
		if !removed {
			return NewExitError(ExitFailure, fmt.Sprintf("no cooldown record for %s in job %s", itemID, jobID))
		}

		if opts.Format == "json" {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Success(map[string]string{"job_id": jobID, "item_id": itemID})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset cooldown for %s (job %s)\n", itemID, jobID)
		return nil
	})
}

// sortedEntries orders records oldest first, then by id.
func sortedEntries(records cooldown.Records) []CooldownEntry {
	entries := make([]CooldownEntry, 0, len(records))
	for id, t := range records {
		entries = append(entries, CooldownEntry{ItemID: id, LastAudit: t})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastAudit.Equal(entries[j].LastAudit) {
			return entries[i].LastAudit.Before(entries[j].LastAudit)
		}
		return entries[i].ItemID < entries[j].ItemID
	})
	return entries
}

func writeCooldownText(w io.Writer, jobID string, entries []CooldownEntry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No cooldown records for job %s\n", jobID)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tLAST AUDIT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\n", e.ItemID, e.LastAudit.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}

// commandContext returns the command's context, or Background when unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
