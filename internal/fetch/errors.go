package fetch

import (
	"fmt"
	"net/http"
)

// Kind classifies a fetch failure.
type Kind string

// Failure kinds.
const (
	KindHTTP      Kind = "http"      // Upstream answered with a non-2xx status
	KindTransport Kind = "transport" // DNS, TLS, connection reset, body read errors
	KindTimeout   Kind = "timeout"   // Per-request timeout elapsed
)

// FetchError describes a failed fetch.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int // Set for KindHTTP
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	default:
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
		}
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsClientError returns true for 4xx responses. Callers treat these as
// unrecoverable for the current run.
func (e *FetchError) IsClientError() bool {
	return e.Kind == KindHTTP && e.StatusCode >= 400 && e.StatusCode < 500
}

// IsRetryable returns true for server errors, timeouts and transport failures.
func (e *FetchError) IsRetryable() bool {
	switch e.Kind {
	case KindHTTP:
		return e.StatusCode >= 500
	default:
		return true
	}
}
