package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/dissent/internal/buildconfig"
	"github.com/Harshitk-cp/dissent/internal/convergence"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and convergence engine hash",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "dissent %s\n", buildconfig.Version())
		fmt.Fprintf(out, "Git Commit:  %s\n", buildconfig.Commit())
		fmt.Fprintf(out, "Engine Hash: %s\n", convergence.EngineHash())
	},
}
