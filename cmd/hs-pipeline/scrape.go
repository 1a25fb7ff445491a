package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/pipeline"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/replays"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Discover replays and download pending payloads",
	RunE:  runScrape,
}

func init() {
	scrapeCmd.Flags().String("output", "", "Directory for downloaded replay XML (default <data-dir>/replays)")
	scrapeCmd.Flags().String("db", "", "Replay index path (default <data-dir>/replays.db)")
	scrapeCmd.Flags().Int("max-replays", 100, "Maximum replays to download in this run (0 for all pending)")
	scrapeCmd.Flags().Float64("rate-limit", 0, "Minimum seconds between requests (overrides config)")
	scrapeCmd.Flags().StringSlice("sample-ids", nil, "Replay shortids to add before downloading")
	scrapeCmd.Flags().Duration("crawl-max-age", replays.DefaultCrawlMaxAge, "Skip archetypes crawled more recently than this")
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("rate-limit") {
		seconds, _ := cmd.Flags().GetFloat64("rate-limit")
		if seconds < 0 {
			return fmt.Errorf("--rate-limit must be non-negative")
		}
		cfg.HTTP.RateLimit = time.Duration(seconds * float64(time.Second)).String()
	}

	opts := pipeline.ScrapeOptions{}
	opts.OutputDir, _ = cmd.Flags().GetString("output")
	opts.DBPath, _ = cmd.Flags().GetString("db")
	opts.MaxReplays, _ = cmd.Flags().GetInt("max-replays")
	opts.SampleIDs, _ = cmd.Flags().GetStringSlice("sample-ids")
	opts.CrawlMaxAge, _ = cmd.Flags().GetDuration("crawl-max-age")

	result, err := pipeline.New(cfg, nil).RunScrape(cmd.Context(), opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Discovered: %d new of %d seen (%d archetypes crawled, %d fresh, %d failed)\n",
		result.Discovery.Added, result.Discovery.Seen,
		result.Discovery.ArchetypesCrawled, result.Discovery.ArchetypesSkipped, result.Discovery.ArchetypesFailed)
	fmt.Fprintf(out, "Downloaded: %d of %d attempted (%d failed, %d skipped)\n",
		result.Download.Downloaded, result.Download.Attempted, result.Download.Failed, result.Download.Skipped)
	fmt.Fprintf(out, "Index: %d total, %d downloaded, %d pending\n",
		result.Index.Total, result.Index.Downloaded, result.Index.Pending)
	return nil
}
