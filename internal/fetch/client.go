// Package fetch provides a paced, blocking HTTP GET client.
//
// Every request made through a Client waits on a shared pacing gate so that
// consecutive request starts are at least MinInterval apart. Gzip bodies are
// inflated transparently, whether declared by Content-Encoding or only
// recognisable by their magic bytes.
package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/logging"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/metrics"
)

const (
	// DefaultMinInterval is the default spacing between request starts.
	DefaultMinInterval = 1 * time.Second

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second

	// MinTimeout is the lowest accepted per-request timeout.
	MinTimeout = 15 * time.Second

	// DefaultUserAgent mimics a desktop browser; several upstreams reject
	// unknown clients outright.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// APIKeyHeader carries the optional API key.
	APIKeyHeader = "X-Api-Key"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Options configures a Client.
type Options struct {
	// MinInterval is the minimum time between request starts (default: 1s).
	// A negative value disables pacing.
	MinInterval time.Duration

	// Timeout for each request (default: 30s, never below 15s).
	Timeout time.Duration

	// UserAgent overrides DefaultUserAgent.
	UserAgent string

	// APIKey is sent as X-Api-Key when non-empty.
	APIKey string

	// HTTPClient allows injecting a custom HTTP client.
	HTTPClient *http.Client
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		MinInterval: DefaultMinInterval,
		Timeout:     DefaultTimeout,
		UserAgent:   DefaultUserAgent,
	}
}

// Stats tracks client activity.
type Stats struct {
	TotalRequests   int
	FailedRequests  int
	LastRequestTime time.Time
	Latency         metrics.Summary
}

// Client is a paced HTTP GET client. It performs no retries.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	apiKey     string
	logger     zerolog.Logger
	latency    *metrics.Histogram

	stats   Stats
	statsMu sync.Mutex
}

// New creates a Client.
func New(options Options) *Client {
	if options.MinInterval == 0 {
		options.MinInterval = DefaultMinInterval
	}
	if options.Timeout == 0 {
		options.Timeout = DefaultTimeout
	}
	if options.Timeout < MinTimeout {
		options.Timeout = MinTimeout
	}
	if options.UserAgent == "" {
		options.UserAgent = DefaultUserAgent
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: options.Timeout,
		}
	}

	limit := rate.Inf
	if options.MinInterval > 0 {
		limit = rate.Every(options.MinInterval)
	}

	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		userAgent:  options.UserAgent,
		apiKey:     options.APIKey,
		logger:     logging.Component("fetch"),
		latency:    metrics.NewHistogram(0),
	}
}

// Fetch performs a paced GET and returns the (inflated) body.
// Failures are returned as *FetchError.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: KindTransport, URL: url, Err: fmt.Errorf("pacing gate: %w", err)}
	}

	c.updateStats(func(s *Stats) {
		s.TotalRequests++
		s.LastRequestTime = time.Now()
	})

	start := time.Now()
	body, err := c.do(ctx, url)
	c.latency.Record(time.Since(start))
	if err != nil {
		c.updateStats(func(s *Stats) { s.FailedRequests++ })
		c.logger.Warn().Err(err).Str("url", url).Msg("fetch failed")
		return nil, err
	}

	return body, nil
}

// FetchJSON fetches url and decodes the body into v.
func (c *Client) FetchJSON(ctx context.Context, url string, v any) error {
	body, err := c.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode JSON from %s: %w", url, err)
	}
	return nil
}

// GetStats returns a copy of the client statistics.
func (c *Client) GetStats() Stats {
	c.statsMu.Lock()
	stats := c.stats
	c.statsMu.Unlock()

	stats.Latency = c.latency.Summary()
	return stats
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, URL: url, Err: err}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/json,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	// Setting Accept-Encoding ourselves disables the transport's implicit
	// decompression; inflation happens below.
	req.Header.Set("Accept-Encoding", "gzip")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{Kind: KindHTTP, URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(url, err)
	}

	declared := strings.Contains(strings.ToLower(resp.Header.Get("Content-Encoding")), "gzip")
	if declared || IsGzip(body) {
		inflated, err := Gunzip(body)
		if err != nil {
			return nil, &FetchError{Kind: KindTransport, URL: url, Err: err}
		}
		body = inflated
	}

	return body, nil
}

func (c *Client) updateStats(fn func(*Stats)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	fn(&c.stats)
}

func classify(url string, err error) *FetchError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: KindTransport, URL: url, Err: err}
}

// IsGzip reports whether b starts with the gzip magic bytes.
func IsGzip(b []byte) bool {
	return bytes.HasPrefix(b, gzipMagic)
}

// Gunzip inflates a gzip stream held in memory.
func Gunzip(b []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() { _ = gr.Close() }()

	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return out, nil
}
