package tensor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeSamples = `[{"card_ids":[7,8,9],"card_features":[[1,0,0,0,0,0,0,0,0,0,0]],"action_label":2,"game_outcome":1.0},{"card_ids":[],"card_features":[],"action_label":0,"game_outcome":0.0},{"card_ids":[1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19,20,21,22,23,24,25],"card_features":[],"action_label":5,"game_outcome":-1.0}]`

func tensorize(t *testing.T, opts Options, body string) (*Metadata, string) {
	t.Helper()
	tz, err := New(opts)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "dataset")
	meta, err := tz.Tensorize(context.Background(), writeInput(t, body), out)
	require.NoError(t, err)
	return meta, out
}

func TestTensorize_ThreeSamples(t *testing.T) {
	meta, out := tensorize(t, DefaultOptions(), threeSamples)

	assert.Equal(t, 3, meta.NumSamples)
	assert.Equal(t, PrefixItem, meta.Prefix)

	ids := readNPY(t, filepath.Join(out, CardIDsFile))
	assert.Equal(t, []int{3, 24}, ids.shape)
	idValues := ids.int32s()
	assert.Equal(t, []int32{7, 8, 9}, idValues[0:3])
	assert.Equal(t, make([]int32, 21), idValues[3:24])
	assert.Equal(t, make([]int32, 24), idValues[24:48])

	want := make([]int32, 24)
	for i := range want {
		want[i] = int32(i + 1)
	}
	assert.Equal(t, want, idValues[48:72])

	features := readNPY(t, filepath.Join(out, CardFeaturesFile))
	assert.Equal(t, []int{3, 24, 11}, features.shape)
	featureValues := features.float32s()
	assert.Equal(t, float32(1), featureValues[0])
	for i, v := range featureValues[1:] {
		require.Zero(t, v, "card_features flat index %d", i+1)
	}

	labels := readNPY(t, filepath.Join(out, LabelsFile))
	assert.Equal(t, "<i4", labels.descr)
	assert.Equal(t, []int{3}, labels.shape)
	assert.Equal(t, []int32{2, 0, 5}, labels.int32s())

	outcomes := readNPY(t, filepath.Join(out, OutcomesFile))
	assert.Equal(t, "<f4", outcomes.descr)
	assert.Equal(t, []int{3, 1}, outcomes.shape)
	assert.Equal(t, []float32{1, 0, -1}, outcomes.float32s())
}

func TestTensorize_WritesMetadata(t *testing.T) {
	_, out := tensorize(t, DefaultOptions(), threeSamples)

	raw, err := os.ReadFile(filepath.Join(out, MetadataFile))
	require.NoError(t, err)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.EqualValues(t, 3, meta["num_samples"])
	assert.EqualValues(t, 24, meta["seq_len"])
	assert.EqualValues(t, 11, meta["feature_dim"])
	assert.Equal(t, "item", meta["prefix"])
	assert.EqualValues(t, 0, meta["skipped"])

	shapes := meta["shapes"].(map[string]any)
	assert.Equal(t, []any{3.0, 24.0, 11.0}, shapes["card_features"])
	assert.Equal(t, []any{3.0, 1.0}, shapes["outcomes"])
}

func TestTensorize_SamplesPrefixAndSwitching(t *testing.T) {
	body := `{"source": "selfplay", "samples": ` + threeSamples + `}`

	meta, _ := tensorize(t, DefaultOptions(), body)
	assert.Equal(t, PrefixSamplesItem, meta.Prefix)
	assert.Equal(t, 3, meta.NumSamples)

	opts := DefaultOptions()
	opts.Prefix = PrefixItem
	meta, out := tensorize(t, opts, body)
	assert.Zero(t, meta.NumSamples)
	assert.Equal(t, []int{0, 24}, readNPY(t, filepath.Join(out, CardIDsFile)).shape)

	opts.Prefix = PrefixSamplesItem
	meta, _ = tensorize(t, opts, threeSamples)
	assert.Zero(t, meta.NumSamples)
}

func TestTensorize_PaddingAndTruncation(t *testing.T) {
	opts := DefaultOptions()
	opts.SeqLen = 2
	opts.FeatureDim = 3

	body := `[
		{"card_ids": [5], "card_features": [[1, 2, 3, 4, 5], [6], [7, 7, 7]]},
		{"card_ids": [1, 2, 3], "card_features": [[9, 9]]}
	]`
	meta, out := tensorize(t, opts, body)
	require.Equal(t, 2, meta.NumSamples)

	assert.Equal(t, []int32{5, 0, 1, 2}, readNPY(t, filepath.Join(out, CardIDsFile)).int32s())
	assert.Equal(t, []float32{
		1, 2, 3, 6, 0, 0,
		9, 9, 0, 0, 0, 0,
	}, readNPY(t, filepath.Join(out, CardFeaturesFile)).float32s())
}

func TestTensorize_SkipsBadItemsConsistently(t *testing.T) {
	body := `[
		{"card_ids": [1], "action_label": 1},
		{"card_ids": "bad", "action_label": 9},
		{"card_ids": [3], "action_label": 3}
	]`
	meta, out := tensorize(t, DefaultOptions(), body)

	assert.Equal(t, 2, meta.NumSamples)
	assert.Equal(t, 1, meta.Skipped)
	assert.Equal(t, []int32{1, 3}, readNPY(t, filepath.Join(out, LabelsFile)).int32s())
}

func TestTensorize_ManySamplesWithProgress(t *testing.T) {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < 250; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"card_ids":[%d],"action_label":%d}`, i, i)
	}
	b.WriteString("]")

	opts := DefaultOptions()
	opts.CountProgressEvery = 100
	opts.WriteProgressEvery = 10
	meta, out := tensorize(t, opts, b.String())

	assert.Equal(t, 250, meta.NumSamples)
	labels := readNPY(t, filepath.Join(out, LabelsFile)).int32s()
	require.Len(t, labels, 250)
	for i, v := range labels {
		require.Equal(t, int32(i), v)
	}
}

func TestTensorize_MalformedInputFails(t *testing.T) {
	tz, err := New(DefaultOptions())
	require.NoError(t, err)

	_, err = tz.Tensorize(context.Background(), writeInput(t, `[{"card_ids": [1]`), t.TempDir())
	assert.Error(t, err)
}

func TestTensorize_MissingInput(t *testing.T) {
	tz, err := New(DefaultOptions())
	require.NoError(t, err)

	_, err = tz.Tensorize(context.Background(), filepath.Join(t.TempDir(), "missing.json"), t.TempDir())
	assert.Error(t, err)
}

func TestNew_RejectsUnknownPrefix(t *testing.T) {
	_, err := New(Options{Prefix: "rows"})
	assert.Error(t, err)
}
