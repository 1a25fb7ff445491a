// Package replays discovers replay shortids and downloads their XML payloads.
package replays

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/fetch"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/fsutil"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/jsonshape"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/logging"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/storage"
)

var (
	// ErrMissingPayload is returned when game metadata has no replay_xml URL.
	ErrMissingPayload = errors.New("game metadata has no replay_xml")

	// ErrUnrecoverable is returned for shortids that already failed with a
	// client error in this process.
	ErrUnrecoverable = errors.New("replay marked unrecoverable")
)

// Fetcher retrieves raw bytes from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DownloadIndex is the part of the replay index the downloader needs.
type DownloadIndex interface {
	Pending(ctx context.Context, limit int) ([]string, error)
	MarkDownloaded(ctx context.Context, shortID, path string) error
}

// gameMetadata is the subset of the game metadata payload we use.
type gameMetadata struct {
	ReplayXML string `json:"replay_xml"`
}

var gameMetadataSchema = jsonshape.Schema{
	Name: "game-metadata",
	Definition: `{
		"type": "object",
		"properties": {
			"replay_xml": {"type": ["string", "null"]}
		}
	}`,
}

// Summary counts the outcomes of a DownloadPending run.
type Summary struct {
	Attempted  int `json:"attempted"`
	Downloaded int `json:"downloaded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Downloader fetches replay payloads and records them in the index.
// It is not safe for concurrent use.
type Downloader struct {
	fetcher       Fetcher
	index         DownloadIndex
	baseURL       string
	outputDir     string
	unrecoverable map[string]bool
	logger        zerolog.Logger
}

// NewDownloader creates a Downloader writing into outputDir.
func NewDownloader(fetcher Fetcher, index DownloadIndex, baseURL, outputDir string) *Downloader {
	return &Downloader{
		fetcher:       fetcher,
		index:         index,
		baseURL:       strings.TrimRight(baseURL, "/"),
		outputDir:     outputDir,
		unrecoverable: make(map[string]bool),
		logger:        logging.Component("downloader"),
	}
}

// MetadataURL returns the game metadata endpoint for a shortid.
func (d *Downloader) MetadataURL(shortID string) string {
	return fmt.Sprintf("%s/api/v1/games/%s/", d.baseURL, url.PathEscape(shortID))
}

// Path returns the output file for a shortid.
func (d *Downloader) Path(shortID string) string {
	return filepath.Join(d.outputDir, shortID+".xml")
}

// Download fetches one replay, writes it to the output directory and marks
// it downloaded. On any error the shortid stays pending. A 4xx response
// marks the shortid unrecoverable for the lifetime of the Downloader.
func (d *Downloader) Download(ctx context.Context, shortID string) error {
	if d.unrecoverable[shortID] {
		return ErrUnrecoverable
	}

	err := d.download(ctx, shortID)
	var fe *fetch.FetchError
	if errors.As(err, &fe) && fe.IsClientError() || errors.Is(err, storage.ErrInvalidShortID) {
		d.unrecoverable[shortID] = true
	}
	return err
}

// outputPath returns Path(shortID) after checking it stays inside the
// output directory.
func (d *Downloader) outputPath(shortID string) (string, error) {
	if !storage.ValidShortID(shortID) {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidShortID, shortID)
	}
	path := d.Path(shortID)
	rel, err := filepath.Rel(d.outputDir, path)
	if err != nil || rel != filepath.Base(path) {
		return "", fmt.Errorf("%w: %q resolves outside %s", storage.ErrInvalidShortID, shortID, d.outputDir)
	}
	return path, nil
}

func (d *Downloader) download(ctx context.Context, shortID string) error {
	path, err := d.outputPath(shortID)
	if err != nil {
		return err
	}

	body, err := d.fetcher.Fetch(ctx, d.MetadataURL(shortID))
	if err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}

	if err := jsonshape.Validate(gameMetadataSchema, body); err != nil {
		return err
	}
	var meta gameMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if meta.ReplayXML == "" {
		return ErrMissingPayload
	}

	payload, err := d.fetcher.Fetch(ctx, d.resolve(meta.ReplayXML))
	if err != nil {
		return fmt.Errorf("fetch replay: %w", err)
	}

	// Payloads can be gzip-framed inside an already decoded transport body.
	if fetch.IsGzip(payload) {
		if payload, err = fetch.Gunzip(payload); err != nil {
			return fmt.Errorf("inflate replay: %w", err)
		}
	}

	if err := fsutil.WriteFileAtomic(path, payload, 0o644); err != nil {
		return fmt.Errorf("write replay: %w", err)
	}

	if err := d.index.MarkDownloaded(ctx, shortID, path); err != nil {
		return fmt.Errorf("mark downloaded: %w", err)
	}
	return nil
}

// resolve makes a root-relative replay URL absolute against the base URL.
func (d *Downloader) resolve(replayURL string) string {
	if strings.HasPrefix(replayURL, "/") && !strings.HasPrefix(replayURL, "//") {
		return d.baseURL + replayURL
	}
	return replayURL
}

// DownloadPending downloads up to max pending replays one at a time.
// Per-replay failures are counted, not returned. A max of zero or less
// processes every pending replay.
func (d *Downloader) DownloadPending(ctx context.Context, max int) (Summary, error) {
	var summary Summary

	limit := max
	if limit > 0 {
		limit += len(d.unrecoverable)
	}
	pending, err := d.index.Pending(ctx, limit)
	if err != nil {
		return summary, fmt.Errorf("list pending: %w", err)
	}

	for _, shortID := range pending {
		if max > 0 && summary.Attempted >= max {
			break
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if d.unrecoverable[shortID] {
			summary.Skipped++
			continue
		}

		summary.Attempted++
		if err := d.Download(ctx, shortID); err != nil {
			summary.Failed++
			d.logger.Warn().Err(err).Str("shortid", shortID).Msg("replay download failed")
			continue
		}
		summary.Downloaded++
		d.logger.Debug().Str("shortid", shortID).Msg("replay downloaded")
	}

	d.logger.Info().
		Int("attempted", summary.Attempted).
		Int("downloaded", summary.Downloaded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("download pass complete")
	return summary, nil
}
