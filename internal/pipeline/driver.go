// Package pipeline composes the fetcher, catalogs, index, downloader and
// tensorizer into the pipeline operations exposed by the CLI.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/cards"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/config"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/fetch"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/fsutil"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/logging"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/meta"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/replays"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/storage"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/storage/models"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/tensor"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/version"
)

// Default file names under the data directory.
const (
	IndexFileName  = "replays.db"
	ReplaysDirName = "replays"
)

// Fetcher retrieves raw bytes from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// NewFetcher builds the paced HTTP client described by cfg.
func NewFetcher(cfg *config.Config) *fetch.Client {
	interval := cfg.RateLimitDuration()
	if interval <= 0 {
		interval = -1
	}

	userAgent := cfg.HTTP.UserAgent
	if userAgent == "" {
		userAgent = fetch.DefaultUserAgent + " " + version.UserAgentSuffix()
	}

	return fetch.New(fetch.Options{
		MinInterval: interval,
		Timeout:     cfg.TimeoutDuration(),
		UserAgent:   userAgent,
		APIKey:      cfg.HTTP.APIKey,
	})
}

// Driver runs pipeline operations. Each operation is independently
// invocable and safe to repeat.
type Driver struct {
	cfg     *config.Config
	fetcher Fetcher
	catalog *cards.Catalog
	crawler *meta.Crawler
	runID   string
	logger  zerolog.Logger
}

// New creates a Driver. A nil fetcher is replaced by NewFetcher(cfg).
func New(cfg *config.Config, fetcher Fetcher) *Driver {
	if fetcher == nil {
		fetcher = NewFetcher(cfg)
	}

	runID := uuid.NewString()
	return &Driver{
		cfg:     cfg,
		fetcher: fetcher,
		catalog: cards.NewCatalog(fetcher, cards.CatalogOptions{
			URL:       cfg.Upstream.CardsURL,
			CachePath: cfg.Path(cards.CacheFileName),
		}),
		crawler: meta.NewCrawler(fetcher, meta.CrawlerOptions{
			URL:       cfg.Upstream.ArchetypesURL,
			CachePath: cfg.Path(meta.ArchetypesFileName),
		}),
		runID:  runID,
		logger: logging.Component("pipeline").With().Str("run_id", runID).Logger(),
	}
}

// RunID identifies this Driver's log lines.
func (d *Driver) RunID() string {
	return d.runID
}

// Catalog returns the card catalog.
func (d *Driver) Catalog() *cards.Catalog {
	return d.catalog
}

// RefreshCatalog loads the card catalog, from cache unless force is set.
func (d *Driver) RefreshCatalog(ctx context.Context, force bool) error {
	var err error
	if force {
		err = d.catalog.Refresh(ctx)
	} else {
		err = d.catalog.Load(ctx)
	}
	if err != nil {
		return fmt.Errorf("refresh catalog: %w", err)
	}
	d.logger.Info().Int("cards", d.catalog.Len()).Msg("card catalog ready")
	return nil
}

// Archetypes returns the archetype catalog, from cache unless refresh is
// set or no cache exists.
func (d *Driver) Archetypes(ctx context.Context, refresh bool) ([]meta.Archetype, error) {
	if !refresh {
		archetypes, err := d.crawler.LoadCachedArchetypes()
		if err == nil {
			return archetypes, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn().Err(err).Msg("archetype cache unusable, refetching")
		}
	}

	archetypes, err := d.crawler.FetchArchetypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh archetypes: %w", err)
	}
	return archetypes, nil
}

// RefreshArchetypes loads the catalog and archetypes, builds meta decks and
// writes meta_decks.json and meta_deck_lists.json.
func (d *Driver) RefreshArchetypes(ctx context.Context, refresh bool) ([]meta.MetaDeck, error) {
	if err := d.RefreshCatalog(ctx, refresh); err != nil {
		return nil, err
	}

	archetypes, err := d.Archetypes(ctx, refresh)
	if err != nil {
		return nil, err
	}

	decks := meta.BuildMetaDecks(archetypes, d.catalog, d.cfg.Meta.MinSignature)
	if err := meta.WriteMetaDecks(d.cfg.Data.Dir, decks); err != nil {
		return nil, fmt.Errorf("write meta decks: %w", err)
	}

	d.logger.Info().Int("archetypes", len(archetypes)).Int("meta_decks", len(decks)).Msg("meta decks written")
	return decks, nil
}

// OpenIndex opens the replay index at path, or at the default location
// under the data directory when path is empty.
func (d *Driver) OpenIndex(path string) (*storage.Index, error) {
	if path == "" {
		path = d.cfg.Path(IndexFileName)
	}
	idx, err := storage.OpenIndex(path)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return idx, nil
}

// DiscoverOptions configures Discover.
type DiscoverOptions struct {
	SampleIDs   []string
	CrawlMaxAge time.Duration
}

// Discover adds sample ids and, when a discovery URL is configured,
// shortids for every due archetype.
func (d *Driver) Discover(ctx context.Context, idx *storage.Index, opts DiscoverOptions) (replays.DiscoverResult, error) {
	discoverOpts := replays.DiscoverOptions{
		SampleIDs: opts.SampleIDs,
		MaxAge:    opts.CrawlMaxAge,
	}

	if d.cfg.Upstream.DiscoveryURL != "" {
		archetypes, err := d.Archetypes(ctx, false)
		if err != nil {
			return replays.DiscoverResult{}, err
		}
		discoverOpts.Archetypes = archetypes
	} else {
		d.logger.Warn().Msg("no discovery_url configured, only sample ids are discovered")
	}

	discoverer := replays.NewDiscoverer(d.fetcher, idx, d.cfg.Upstream.DiscoveryURL)
	result, err := discoverer.Discover(ctx, discoverOpts)
	if err != nil {
		return result, fmt.Errorf("discover: %w", err)
	}
	return result, nil
}

// DownloadPending downloads up to max pending replays into outputDir.
func (d *Driver) DownloadPending(ctx context.Context, idx *storage.Index, outputDir string, max int) (replays.Summary, error) {
	if outputDir == "" {
		outputDir = d.cfg.Path(ReplaysDirName)
	}
	downloader := replays.NewDownloader(d.fetcher, idx, d.cfg.Upstream.ReplayBaseURL, outputDir)
	return downloader.DownloadPending(ctx, max)
}

// ScrapeOptions configures RunScrape.
type ScrapeOptions struct {
	DBPath      string
	OutputDir   string
	MaxReplays  int
	SampleIDs   []string
	CrawlMaxAge time.Duration
}

// ScrapeResult summarizes RunScrape.
type ScrapeResult struct {
	Discovery replays.DiscoverResult
	Download  replays.Summary
	Index     models.IndexStats
}

// RunScrape discovers replays and then downloads pending ones.
func (d *Driver) RunScrape(ctx context.Context, opts ScrapeOptions) (*ScrapeResult, error) {
	idx, err := d.OpenIndex(opts.DBPath)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	result := &ScrapeResult{}
	if result.Discovery, err = d.Discover(ctx, idx, DiscoverOptions{
		SampleIDs:   opts.SampleIDs,
		CrawlMaxAge: opts.CrawlMaxAge,
	}); err != nil {
		return nil, err
	}

	if result.Download, err = d.DownloadPending(ctx, idx, opts.OutputDir, opts.MaxReplays); err != nil {
		return nil, err
	}

	if result.Index, err = idx.Stats(ctx); err != nil {
		return nil, err
	}

	event := d.logger.Info().
		Int("added", result.Discovery.Added).
		Int("downloaded", result.Download.Downloaded).
		Int("failed", result.Download.Failed).
		Int("pending", result.Index.Pending)
	if client, ok := d.fetcher.(*fetch.Client); ok {
		latency := client.GetStats().Latency
		event = event.Int("requests", latency.Count).Dur("p95_latency", latency.P95)
	}
	event.Msg("scrape complete")
	return result, nil
}

// Stats returns the replay index counts.
func (d *Driver) Stats(ctx context.Context, dbPath string) (models.IndexStats, error) {
	idx, err := d.OpenIndex(dbPath)
	if err != nil {
		return models.IndexStats{}, err
	}
	defer idx.Close()
	return idx.Stats(ctx)
}

// ScrapeDecks scrapes the secondary deck source and writes top_meta_decks.json.
func (d *Driver) ScrapeDecks(ctx context.Context, limit int) (*meta.ScrapeResult, error) {
	if err := d.RefreshCatalog(ctx, false); err != nil {
		return nil, err
	}

	source := meta.NewDeckSource(d.fetcher, d.catalog, d.cfg.Upstream.DeckSourceURL)
	result, err := source.Scrape(ctx, limit)
	if err != nil {
		return nil, err
	}

	decks := result.Decks
	if decks == nil {
		decks = []meta.TopDeck{}
	}
	if err := fsutil.WriteJSONAtomic(d.cfg.Path(meta.TopDecksFileName), decks); err != nil {
		return nil, fmt.Errorf("write top decks: %w", err)
	}
	return result, nil
}

// Tensorize converts input into a dataset under outputDir. Zero-valued
// options take the configured tensor parameters.
func (d *Driver) Tensorize(ctx context.Context, input, outputDir string, opts tensor.Options) (*tensor.Metadata, error) {
	if opts.SeqLen == 0 {
		opts.SeqLen = d.cfg.Tensor.SeqLen
	}
	if opts.FeatureDim == 0 {
		opts.FeatureDim = d.cfg.Tensor.FeatureDim
	}

	tz, err := tensor.New(opts)
	if err != nil {
		return nil, err
	}

	d.logger.Info().Str("input", input).Str("output", filepath.Clean(outputDir)).Msg("starting tensorization")
	return tz.Tensorize(ctx, input, outputDir)
}
