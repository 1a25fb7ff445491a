package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/meta"
)

var scrapeDecksCmd = &cobra.Command{
	Use:   "scrape-decks",
	Short: "Scrape deck codes from the secondary deck source",
	RunE:  runScrapeDecks,
}

func init() {
	scrapeDecksCmd.Flags().Int("limit", 50, "Maximum decks to keep (0 for all)")
}

func runScrapeDecks(cmd *cobra.Command, args []string) error {
	driver, cfg, err := newDriver(cmd)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	result, err := driver.ScrapeDecks(cmd.Context(), limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Found %d deck codes, wrote %d decks (%d undecodable) to %s\n",
		result.Found, len(result.Decks), result.Failed, cfg.Path(meta.TopDecksFileName))
	return nil
}
