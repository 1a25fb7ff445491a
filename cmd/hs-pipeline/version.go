package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "hs-pipeline", version.GetVersion())
	},
}
