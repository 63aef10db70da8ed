package cli

import (
	"fmt"
	"io"

	"datadeploy/internal/steps"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var stepsListQuiet bool

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List the steps of the deployment chain",
	Long: `Inspect the deployment chain.

Every run executes these steps in order and stops at the first failure.

Examples:
  datadeploy steps list
  datadeploy steps show commit
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var stepsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List steps in execution order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, s := range steps.List() {
			if stepsListQuiet {
				fmt.Fprintln(cmd.OutOrStdout(), s.ID())
				continue
			}
			printStep(cmd.OutOrStdout(), i+1, s)
		}
		return nil
	},
}

var stepsShowCmd = &cobra.Command{
	Use:   "show [step-id]",
	Short: "Show details of one step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ok := steps.Lookup(args[0])
		if !ok {
			return fmt.Errorf("step not found: %s", args[0])
		}
		pos := 0
		for i, id := range steps.Order {
			if id == s.ID() {
				pos = i + 1
			}
		}
		printStep(cmd.OutOrStdout(), pos, s)
		return nil
	},
}

func printStep(w io.Writer, pos int, s steps.Step) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "STEP %d: %s\n", pos, s.ID())
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintln(w, s.Title())
	fmt.Fprintln(w, s.Description())
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(stepsCmd)
	stepsCmd.AddCommand(stepsListCmd)
	stepsListCmd.Flags().BoolVarP(&stepsListQuiet, "quiet", "q", false, "Only print step IDs")
	stepsCmd.AddCommand(stepsShowCmd)
}
