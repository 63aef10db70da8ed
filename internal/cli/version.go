package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		version, commit, date := BuildInfo()
		w := cmd.OutOrStdout()
		if versionShort {
			fmt.Fprintln(w, version)
			return
		}
		fmt.Fprintf(w, "datadeploy %s\n", version)
		fmt.Fprintf(w, "commit:   %s\n", commit)
		fmt.Fprintf(w, "built:    %s\n", date)
		fmt.Fprintf(w, "platform: %s/%s (%s)\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version")
}
