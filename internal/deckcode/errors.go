package deckcode

import "fmt"

// ErrorKind classifies decode failures.
type ErrorKind string

const (
	ErrBase64             ErrorKind = "base64"
	ErrTruncated          ErrorKind = "truncated"
	ErrUnsupportedVersion ErrorKind = "unsupported_version"
)

// DecodeError is returned by Decode and EncodeVersion.
type DecodeError struct {
	Kind   ErrorKind
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deck code: %s at byte %d: %v", e.Kind, e.Offset, e.Err)
	}
	return fmt.Sprintf("deck code: %s at byte %d", e.Kind, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
