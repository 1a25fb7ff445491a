package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show replay index counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, _, err := newDriver(cmd)
		if err != nil {
			return err
		}

		dbPath, _ := cmd.Flags().GetString("db")
		stats, err := driver.Stats(cmd.Context(), dbPath)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "total: %d\ndownloaded: %d\npending: %d\n", stats.Total, stats.Downloaded, stats.Pending)
		return nil
	},
}

func init() {
	statsCmd.Flags().String("db", "", "Replay index path (default <data-dir>/replays.db)")
}
