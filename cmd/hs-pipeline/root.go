package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/config"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/logging"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/pipeline"
)

var rootCmd = &cobra.Command{
	Use:           "hs-pipeline",
	Short:         "Hearthstone replay and meta-deck ingestion pipeline",
	Long:          "hs-pipeline crawls archetypes and meta decks, discovers and downloads replays into a durable index, and tensorizes training samples.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with an interrupt-aware context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.hs-pipeline/config.toml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config and HS_DATA_DIR)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("pretty", false, "Human-readable console logs")

	rootCmd.AddCommand(tensorizeCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(fetchMetaCmd)
	rootCmd.AddCommand(scrapeDecksCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves configuration with precedence flags > env > file >
// defaults, validates it and initializes logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		defaultPath, err := config.DefaultPath()
		if err == nil {
			path = defaultPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Data.Dir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if cmd.Flags().Changed("pretty") {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("pretty")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Init(cfg.Log.Level, cfg.Log.Pretty)
	return cfg, nil
}

// newDriver loads configuration and builds a pipeline driver.
func newDriver(cmd *cobra.Command) (*pipeline.Driver, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.New(cfg, nil), cfg, nil
}
