package tensor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeBenchSamples(b *testing.B, n int) string {
	b.Helper()
	samples := make([]map[string]any, n)
	for i := range samples {
		ids := make([]int, DefaultSeqLen)
		features := make([][]float64, DefaultSeqLen)
		for j := range ids {
			ids[j] = 1000 + i + j
			row := make([]float64, DefaultFeatureDim)
			for k := range row {
				row[k] = float64(k) * 0.5
			}
			features[j] = row
		}
		samples[i] = map[string]any{
			"card_ids":      ids,
			"card_features": features,
			"action_label":  i % 4,
			"game_outcome":  float64(i % 2),
		}
	}
	data, err := json.Marshal(samples)
	if err != nil {
		b.Fatal(err)
	}
	path := filepath.Join(b.TempDir(), "samples.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		b.Fatal(err)
	}
	return path
}

func BenchmarkSampleIterator(b *testing.B) {
	for _, n := range []int{100, 1000} {
		path := writeBenchSamples(b, n)

		b.Run(fmt.Sprintf("%d_samples", n), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				it, err := OpenSamples(path, PrefixItem)
				if err != nil {
					b.Fatal(err)
				}
				count := 0
				for it.Next() {
					count++
				}
				if err := it.Err(); err != nil {
					b.Fatal(err)
				}
				_ = it.Close()
				if count != n {
					b.Fatalf("read %d samples, want %d", count, n)
				}
			}
		})
	}
}

func BenchmarkTensorize(b *testing.B) {
	path := writeBenchSamples(b, 1000)
	tz, err := New(DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for b.Loop() {
		if _, err := tz.Tensorize(context.Background(), path, b.TempDir()); err != nil {
			b.Fatal(err)
		}
	}
}
