package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var fetchMetaCmd = &cobra.Command{
	Use:   "fetch-meta",
	Short: "Populate the card catalog and write meta decks",
	RunE:  runFetchMeta,
}

func init() {
	fetchMetaCmd.Flags().Bool("refresh", false, "Re-download the card table and archetype catalog")
	fetchMetaCmd.Flags().Bool("list", false, "Print the meta decks")
}

func runFetchMeta(cmd *cobra.Command, args []string) error {
	driver, cfg, err := newDriver(cmd)
	if err != nil {
		return err
	}

	refresh, _ := cmd.Flags().GetBool("refresh")
	decks, err := driver.RefreshArchetypes(cmd.Context(), refresh)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %d meta decks to %s\n", len(decks), cfg.Data.Dir)

	if list, _ := cmd.Flags().GetBool("list"); list {
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tCLASS\tARCHETYPE\tFORMAT\tSIGNATURE")
		for _, d := range decks {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\n", d.Key, d.Class, d.ArchetypeID, d.Format, len(d.SignatureCardIDs))
		}
		return w.Flush()
	}
	return nil
}
