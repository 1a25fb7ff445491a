package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "hs-pipeline ") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestTensorizeCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "samples.json")
	if err := os.WriteFile(input, []byte(`[{"card_ids":[1,2],"action_label":1},{"card_ids":[3]}]`), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	output := filepath.Join(dir, "dataset")

	out, err := runCLI(t, "tensorize", "--input", input, "--output", output, "--prefix", "auto", "--data-dir", dir, "--log-level", "error")
	if err != nil {
		t.Fatalf("tensorize failed: %v", err)
	}
	if !strings.Contains(out, "Wrote 2 samples") {
		t.Errorf("unexpected output %q", out)
	}

	for _, name := range []string{"card_ids.npy", "card_features.npy", "labels.npy", "outcomes.npy", "metadata.json"} {
		if _, err := os.Stat(filepath.Join(output, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestTensorizeCommand_RejectsUnknownPrefix(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "tensorize", "--input", filepath.Join(dir, "x.json"), "--output", dir, "--prefix", "rows", "--data-dir", dir)
	if err == nil {
		t.Fatal("expected error for unknown prefix")
	}
}
