// Package tensor converts large JSON sample files into fixed-shape .npy
// arrays without holding the dataset in memory.
package tensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/fsutil"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/logging"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/version"
)

// Defaults for Options.
const (
	DefaultSeqLen             = 24
	DefaultFeatureDim         = 11
	DefaultCountProgressEvery = 100_000
	DefaultWriteProgressEvery = 10_000
)

// Output file names.
const (
	CardIDsFile      = "card_ids.npy"
	CardFeaturesFile = "card_features.npy"
	LabelsFile       = "labels.npy"
	OutcomesFile     = "outcomes.npy"
	MetadataFile     = "metadata.json"
)

// Options configures a Tensorizer.
type Options struct {
	SeqLen     int
	FeatureDim int
	Prefix     Prefix

	// CountProgressEvery and WriteProgressEvery set how often each pass logs.
	CountProgressEvery int
	WriteProgressEvery int
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		SeqLen:             DefaultSeqLen,
		FeatureDim:         DefaultFeatureDim,
		Prefix:             PrefixAuto,
		CountProgressEvery: DefaultCountProgressEvery,
		WriteProgressEvery: DefaultWriteProgressEvery,
	}
}

// Metadata describes a tensorized dataset.
type Metadata struct {
	NumSamples int              `json:"num_samples"`
	SeqLen     int              `json:"seq_len"`
	FeatureDim int              `json:"feature_dim"`
	Shapes     map[string][]int `json:"shapes"`
	Prefix     Prefix           `json:"prefix"`
	Skipped    int              `json:"skipped"`
	CreatedAt  time.Time        `json:"created_at"`
	Version    string           `json:"version"`
}

// Tensorizer converts a JSON sample file in two streaming passes: one to
// count samples, one to write them into preallocated arrays.
type Tensorizer struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a Tensorizer. Zero-valued options fall back to defaults.
func New(opts Options) (*Tensorizer, error) {
	defaults := DefaultOptions()
	if opts.SeqLen == 0 {
		opts.SeqLen = defaults.SeqLen
	}
	if opts.FeatureDim == 0 {
		opts.FeatureDim = defaults.FeatureDim
	}
	if opts.Prefix == "" {
		opts.Prefix = defaults.Prefix
	}
	if opts.CountProgressEvery <= 0 {
		opts.CountProgressEvery = defaults.CountProgressEvery
	}
	if opts.WriteProgressEvery <= 0 {
		opts.WriteProgressEvery = defaults.WriteProgressEvery
	}

	if opts.SeqLen < 0 || opts.FeatureDim < 0 {
		return nil, fmt.Errorf("seq_len and feature_dim must be positive")
	}
	if _, err := ParsePrefix(string(opts.Prefix)); err != nil {
		return nil, err
	}

	return &Tensorizer{opts: opts, logger: logging.Component("tensorizer")}, nil
}

// Tensorize reads input and writes the dataset into outputDir.
// On an I/O error partially written arrays are left in place.
func (t *Tensorizer) Tensorize(ctx context.Context, input, outputDir string) (*Metadata, error) {
	prefix := t.opts.Prefix
	if prefix == PrefixAuto {
		detected, err := DetectPrefix(input)
		if err != nil {
			return nil, fmt.Errorf("detect prefix: %w", err)
		}
		prefix = detected
	}
	t.logger.Info().Str("input", input).Str("prefix", string(prefix)).Msg("tensorizing")

	n, skipped, err := t.count(ctx, input, prefix)
	if err != nil {
		return nil, err
	}
	t.logger.Info().Int("samples", n).Int("skipped", skipped).Msg("pass 1 complete")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	shapes := map[string][]int{
		"card_ids":      {n, t.opts.SeqLen},
		"card_features": {n, t.opts.SeqLen, t.opts.FeatureDim},
		"labels":        {n},
		"outcomes":      {n, 1},
	}

	if err := t.write(ctx, input, prefix, outputDir, n, shapes); err != nil {
		return nil, err
	}

	meta := &Metadata{
		NumSamples: n,
		SeqLen:     t.opts.SeqLen,
		FeatureDim: t.opts.FeatureDim,
		Shapes:     shapes,
		Prefix:     prefix,
		Skipped:    skipped,
		CreatedAt:  time.Now().UTC(),
		Version:    version.GetVersion(),
	}
	if err := fsutil.WriteJSONAtomic(filepath.Join(outputDir, MetadataFile), meta); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	t.logger.Info().Int("samples", n).Str("output", outputDir).Msg("tensorization complete")
	return meta, nil
}

func (t *Tensorizer) count(ctx context.Context, input string, prefix Prefix) (int, int, error) {
	it, err := OpenSamples(input, prefix)
	if err != nil {
		return 0, 0, err
	}
	defer it.Close()

	n := 0
	for it.Next() {
		n++
		if n%t.opts.CountProgressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return 0, 0, err
			}
			t.logger.Info().Int("counted", n).Msg("pass 1 progress")
		}
	}
	if err := it.Err(); err != nil {
		return 0, 0, fmt.Errorf("pass 1: %w", err)
	}
	return n, it.Skipped(), nil
}

// arrays holds the four open outputs of pass 2.
type arrays struct {
	cardIDs, cardFeatures, labels, outcomes *Array
}

func (a *arrays) close() error {
	var firstErr error
	for _, arr := range []*Array{a.cardIDs, a.cardFeatures, a.labels, a.outcomes} {
		if arr == nil {
			continue
		}
		if err := arr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *Tensorizer) create(outputDir string, shapes map[string][]int) (*arrays, error) {
	out := &arrays{}
	var err error
	if out.cardIDs, err = CreateArray(filepath.Join(outputDir, CardIDsFile), Int32, shapes["card_ids"]...); err != nil {
		return nil, err
	}
	if out.cardFeatures, err = CreateArray(filepath.Join(outputDir, CardFeaturesFile), Float32, shapes["card_features"]...); err != nil {
		_ = out.close()
		return nil, err
	}
	if out.labels, err = CreateArray(filepath.Join(outputDir, LabelsFile), Int32, shapes["labels"]...); err != nil {
		_ = out.close()
		return nil, err
	}
	if out.outcomes, err = CreateArray(filepath.Join(outputDir, OutcomesFile), Float32, shapes["outcomes"]...); err != nil {
		_ = out.close()
		return nil, err
	}
	return out, nil
}

func (t *Tensorizer) write(ctx context.Context, input string, prefix Prefix, outputDir string, n int, shapes map[string][]int) (err error) {
	out, err := t.create(outputDir, shapes)
	if err != nil {
		return fmt.Errorf("allocate arrays: %w", err)
	}
	defer func() {
		if closeErr := out.close(); closeErr != nil && err == nil {
			err = fmt.Errorf("flush arrays: %w", closeErr)
		}
	}()

	it, err := OpenSamples(input, prefix)
	if err != nil {
		return err
	}
	defer it.Close()

	seqLen, featureDim := t.opts.SeqLen, t.opts.FeatureDim
	features := make([]float32, seqLen*featureDim)

	i := 0
	for it.Next() {
		if i >= n {
			return fmt.Errorf("pass 2 found more than the %d samples counted in pass 1", n)
		}
		s := it.Sample()

		ids := s.CardIDs
		if len(ids) > seqLen {
			ids = ids[:seqLen]
		}
		if err := out.cardIDs.WriteInt32s(int64(i)*int64(seqLen), ids); err != nil {
			return fmt.Errorf("write card_ids row %d: %w", i, err)
		}

		if rows := fillFeatures(features, s.CardFeatures, seqLen, featureDim); rows > 0 {
			offset := int64(i) * int64(seqLen) * int64(featureDim)
			if err := out.cardFeatures.WriteFloat32s(offset, features[:rows*featureDim]); err != nil {
				return fmt.Errorf("write card_features row %d: %w", i, err)
			}
		}

		if label := s.Label(); label != 0 {
			if err := out.labels.WriteInt32s(int64(i), []int32{label}); err != nil {
				return fmt.Errorf("write label %d: %w", i, err)
			}
		}
		if outcome := s.Outcome(); outcome != 0 {
			if err := out.outcomes.WriteFloat32s(int64(i), []float32{outcome}); err != nil {
				return fmt.Errorf("write outcome %d: %w", i, err)
			}
		}

		i++
		if i%t.opts.WriteProgressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			t.logger.Info().Int("written", i).Int("total", n).Msg("pass 2 progress")
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("pass 2: %w", err)
	}
	if i != n {
		return fmt.Errorf("pass 2 wrote %d samples, pass 1 counted %d", i, n)
	}
	return nil
}

// fillFeatures copies up to seqLen rows into dst, truncating or zero-padding
// each row to featureDim, and returns the number of rows filled.
func fillFeatures(dst []float32, rows [][]float32, seqLen, featureDim int) int {
	if len(rows) > seqLen {
		rows = rows[:seqLen]
	}
	for r, row := range rows {
		line := dst[r*featureDim : (r+1)*featureDim]
		n := copy(line, row)
		clear(line[n:])
	}
	return len(rows)
}
