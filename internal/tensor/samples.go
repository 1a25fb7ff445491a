package tensor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Prefix selects where the sample array sits in the input document.
type Prefix string

const (
	// PrefixAuto detects the prefix from the start of the file.
	PrefixAuto Prefix = "auto"

	// PrefixItem iterates a top-level array.
	PrefixItem Prefix = "item"

	// PrefixSamplesItem iterates the array under a top-level "samples" key.
	PrefixSamplesItem Prefix = "samples.item"
)

// detectWindow is how much of the input DetectPrefix inspects.
const detectWindow = 2048

var samplesKey = []byte(`"samples":`)

// ParsePrefix validates a prefix name.
func ParsePrefix(s string) (Prefix, error) {
	switch p := Prefix(s); p {
	case PrefixAuto, PrefixItem, PrefixSamplesItem:
		return p, nil
	case "":
		return PrefixAuto, nil
	default:
		return "", fmt.Errorf("unknown prefix %q (want auto, item or samples.item)", s)
	}
}

// DetectPrefix returns PrefixSamplesItem when the first 2 KiB of the file
// contain `"samples":`, and PrefixItem otherwise.
func DetectPrefix(path string) (Prefix, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, detectWindow)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	if bytes.Contains(head[:n], samplesKey) {
		return PrefixSamplesItem, nil
	}
	return PrefixItem, nil
}

// Sample is one training example.
type Sample struct {
	CardIDs      []int32     `json:"card_ids"`
	CardFeatures [][]float32 `json:"card_features"`
	ActionLabel  *int32      `json:"action_label"`
	GameOutcome  *float32    `json:"game_outcome"`
}

// Label returns the action label, or 0 when absent.
func (s *Sample) Label() int32 {
	if s.ActionLabel == nil {
		return 0
	}
	return *s.ActionLabel
}

// Outcome returns the game outcome, or 0 when absent.
func (s *Sample) Outcome() float32 {
	if s.GameOutcome == nil {
		return 0
	}
	return *s.GameOutcome
}

// SampleIterator streams samples from a JSON file one at a time.
//
// Items whose fields have the wrong JSON types are skipped and counted.
// A document whose layout does not match the prefix yields no samples.
// Malformed JSON stops iteration with an error.
type SampleIterator struct {
	file    *os.File
	dec     *json.Decoder
	prefix  Prefix
	started bool
	done    bool
	current Sample
	skipped int
	err     error
}

// OpenSamples opens path for iteration under prefix, which must not be
// PrefixAuto.
func OpenSamples(path string, prefix Prefix) (*SampleIterator, error) {
	if prefix != PrefixItem && prefix != PrefixSamplesItem {
		return nil, fmt.Errorf("unsupported prefix %q", prefix)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &SampleIterator{
		file:   f,
		dec:    json.NewDecoder(bufio.NewReaderSize(f, 1<<16)),
		prefix: prefix,
	}, nil
}

// Next advances to the next sample.
func (it *SampleIterator) Next() bool {
	if it.done {
		return false
	}

	if !it.started {
		it.started = true
		ok, err := it.enterArray()
		if err != nil {
			return it.fail(err)
		}
		if !ok {
			it.done = true
			return false
		}
	}

	for it.dec.More() {
		var s Sample
		err := it.dec.Decode(&s)
		if err == nil {
			it.current = s
			return true
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			it.skipped++
			continue
		}
		return it.fail(fmt.Errorf("decode sample: %w", err))
	}

	it.done = true
	return false
}

// Sample returns the current sample.
func (it *SampleIterator) Sample() Sample {
	return it.current
}

// Skipped returns how many items were skipped so far.
func (it *SampleIterator) Skipped() int {
	return it.skipped
}

// Err returns the error that stopped iteration, if any.
func (it *SampleIterator) Err() error {
	return it.err
}

// Close closes the underlying file.
func (it *SampleIterator) Close() error {
	return it.file.Close()
}

func (it *SampleIterator) fail(err error) bool {
	it.err = err
	it.done = true
	return false
}

// enterArray positions the decoder just inside the sample array. It
// reports false when the document has no array at the prefix.
func (it *SampleIterator) enterArray() (bool, error) {
	tok, err := it.dec.Token()
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read document: %w", err)
	}

	switch it.prefix {
	case PrefixItem:
		return tok == json.Delim('['), nil

	case PrefixSamplesItem:
		if tok != json.Delim('{') {
			return false, nil
		}
		for it.dec.More() {
			keyTok, err := it.dec.Token()
			if err != nil {
				return false, fmt.Errorf("read key: %w", err)
			}
			if key, _ := keyTok.(string); key == "samples" {
				valueTok, err := it.dec.Token()
				if err != nil {
					return false, fmt.Errorf("read samples: %w", err)
				}
				if valueTok == json.Delim('[') {
					return true, nil
				}
				if err := it.skipRest(valueTok); err != nil {
					return false, err
				}
				continue
			}
			if err := it.skipValue(); err != nil {
				return false, err
			}
		}
		return false, nil
	}
	return false, nil
}

// skipValue consumes the next value without materializing it.
func (it *SampleIterator) skipValue() error {
	tok, err := it.dec.Token()
	if err != nil {
		return fmt.Errorf("skip value: %w", err)
	}
	return it.skipRest(tok)
}

// skipRest consumes the remainder of a value whose first token is tok.
func (it *SampleIterator) skipRest(tok json.Token) error {
	depth := 0
	for {
		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '[', '{':
				depth++
			case ']', '}':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}

		var err error
		if tok, err = it.dec.Token(); err != nil {
			return fmt.Errorf("skip value: %w", err)
		}
	}
}
