package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/tensor"
)

var tensorizeCmd = &cobra.Command{
	Use:   "tensorize",
	Short: "Convert a JSON sample file into .npy arrays",
	RunE:  runTensorize,
}

func init() {
	tensorizeCmd.Flags().String("input", "", "JSON sample file")
	tensorizeCmd.Flags().String("output", "", "Output dataset directory")
	tensorizeCmd.Flags().Int("seq-len", 0, "Cards per sample (default from config)")
	tensorizeCmd.Flags().Int("feature-dim", 0, "Features per card (default from config)")
	tensorizeCmd.Flags().String("prefix", string(tensor.PrefixAuto), "Sample array location: auto, item or samples.item")
	_ = tensorizeCmd.MarkFlagRequired("input")
	_ = tensorizeCmd.MarkFlagRequired("output")
}

func runTensorize(cmd *cobra.Command, args []string) error {
	driver, _, err := newDriver(cmd)
	if err != nil {
		return err
	}

	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	prefixFlag, _ := cmd.Flags().GetString("prefix")

	prefix, err := tensor.ParsePrefix(prefixFlag)
	if err != nil {
		return err
	}

	opts := tensor.DefaultOptions()
	opts.Prefix = prefix
	opts.SeqLen, _ = cmd.Flags().GetInt("seq-len")
	opts.FeatureDim, _ = cmd.Flags().GetInt("feature-dim")

	meta, err := driver.Tensorize(cmd.Context(), input, output, opts)
	if err != nil {
		return fmt.Errorf("tensorize %s: %w", input, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d samples (seq_len=%d, feature_dim=%d, skipped=%d) to %s\n",
		meta.NumSamples, meta.SeqLen, meta.FeatureDim, meta.Skipped, output)
	return nil
}
