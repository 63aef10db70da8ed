package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"datadeploy/internal/flags"
	"datadeploy/internal/history"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect runs recorded in the history ledger",
	Long: `Inspect runs recorded by "run --history" or "serve --history".

Examples:
  datadeploy history list --history runs.db
  datadeploy history show 6f1c2d3e-... --history runs.db
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one run and its step results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		run, stepRows, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printRun(cmd.OutOrStdout(), run, stepRows)
		return nil
	},
}

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	c, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	if c.Runtime.History == "" {
		return nil, errors.New("no history ledger configured (use --history or runtime.history)")
	}
	return history.Open(c.Runtime.History)
}

func printRuns(w io.Writer, runs []history.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Trigger", "Revision", "Status", "Result", "Exit"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.Trigger, shortRev(r.Revision), r.Status, runResult(r), r.ExitCode})
	}
	t.Render()
}

func printRun(w io.Writer, r history.Run, stepRows []history.Step) {
	fmt.Fprintf(w, "Run:      %s\n", r.ID)
	fmt.Fprintf(w, "Trigger:  %s\n", r.Trigger)
	if r.Revision != "" {
		fmt.Fprintf(w, "Revision: %s\n", r.Revision)
	}
	fmt.Fprintf(w, "Status:   %s\n", r.Status)
	if res := runResult(r); res != "" {
		fmt.Fprintf(w, "Result:   %s\n", res)
	}
	fmt.Fprintf(w, "Started:  %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Finished: %s (%s)\n", r.FinishedAt.UTC().Format(time.RFC3339), r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond))
	}
	fmt.Fprintf(w, "Exit:     %d\n", r.ExitCode)
	if len(stepRows) == 0 {
		return
	}

	fmt.Fprintln(w)
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Step", "Status", "Duration", "Message"})
	for _, s := range stepRows {
		msg := s.Message
		if s.Error != "" {
			msg = s.Error
		}
		t.AppendRow(table.Row{s.Position + 1, s.StepID, string(s.Status), s.Duration.String(), msg})
	}
	t.Render()
}

func runResult(r history.Run) string {
	switch {
	case r.Failure != "":
		return r.Failure + " failure"
	case r.Commit != "":
		return r.Outcome + " " + shortRev(r.Commit)
	default:
		return r.Outcome
	}
}

func shortRev(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.PersistentFlags().StringVar(&cfg.Runtime.History, flags.FlagHistory, "", "SQLite ledger path")
	historyCmd.AddCommand(historyListCmd)
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list (0 = all)")
	historyCmd.AddCommand(historyShowCmd)
}
