package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/config"
	"github.com/SorraTheOrc/SorraAgents-sub001/internal/report"
)

// ExtractOptions holds flags for the extract command.
type ExtractOptions struct {
	*RootOptions
	SummaryOnly bool
}

// ExtractResult is the JSON shape of an offline extraction.
type ExtractResult struct {
	Source   report.Source `json:"source"`
	FellBack bool          `json:"fell_back"`
	Report   string        `json:"report"`
	Summary  string        `json:"summary"`
}

// NewExtractCommand creates the extract command.
func NewExtractCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExtractOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "extract <file|->",
		Short: "Extract the audit report from a saved transcript",
		Long: `Extract the structured audit report from a saved transcript.

The report is the text between the audit report markers. When the end marker
is missing everything after the start marker is used; when no usable report
is found the whole transcript is returned. Pass "-" to read stdin.

Examples:
  ampa extract transcript.txt
  ampa extract --summary transcript.txt
  opencode run "/audit WL-7" | ampa extract --format json -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.SummaryOnly, "summary", false, "print only the report's Summary section")

	return cmd
}

func runExtract(opts *ExtractOptions, source string, cmd *cobra.Command) error {
	data, err := readTranscript(source, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transcript", err)
	}

	logger := newLogger(config.LogConfig{Level: "warn"}, opts.Verbose, cmd.ErrOrStderr())
	ext := report.NewExtractor(logger).Extract(string(data))
	result := ExtractResult{
		Source:   ext.Source,
		FellBack: ext.FellBack(),
		Report:   ext.Report,
		Summary:  report.Summary(ext.Report),
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(result)
	}

	out := cmd.OutOrStdout()
	if opts.SummaryOnly {
		if result.Summary == "" {
			return NewExitError(ExitFailure, "no Summary section in report")
		}
		fmt.Fprintln(out, result.Summary)
		return nil
	}
	fmt.Fprintln(out, result.Report)
	return nil
}

func readTranscript(source string, stdin io.Reader) ([]byte, error) {
	if source == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(source)
}
