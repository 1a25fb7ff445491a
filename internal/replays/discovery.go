package replays

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/jsonshape"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/logging"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/meta"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/storage"
)

// ArchetypePlaceholder is substituted with the archetype id in discovery URLs.
const ArchetypePlaceholder = "{archetype_id}"

// DefaultCrawlMaxAge is how long an archetype crawl stays fresh.
const DefaultCrawlMaxAge = 24 * time.Hour

// DiscoveryIndex is the part of the replay index discovery needs.
type DiscoveryIndex interface {
	AddMany(ctx context.Context, discoveries []storage.Discovery) (int, error)
	ArchetypeDueForCrawl(ctx context.Context, id int, maxAge time.Duration) (bool, error)
	UpsertArchetypeCrawl(ctx context.Context, id int, name, playerClass string) error
}

// discoveredReplay is one entry of a discovery response.
type discoveredReplay struct {
	ShortID     string `json:"shortid"`
	PlayerClass string `json:"player_class"`
}

var discoverySchema = jsonshape.Schema{
	Name: "replay-discovery",
	Definition: `{
		"$defs": {
			"entries": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["shortid"],
					"properties": {
						"shortid": {"type": "string", "pattern": "^[A-Za-z0-9_-]+$"},
						"player_class": {"type": ["string", "null"]}
					}
				}
			}
		},
		"anyOf": [
			{"$ref": "#/$defs/entries"},
			{
				"type": "object",
				"required": ["results"],
				"properties": {"results": {"$ref": "#/$defs/entries"}}
			}
		]
	}`,
}

// DiscoverOptions selects what a discovery pass crawls.
type DiscoverOptions struct {
	// SampleIDs are added untagged.
	SampleIDs []string

	// Archetypes are crawled through the discovery URL when one is configured.
	Archetypes []meta.Archetype

	// MaxAge skips archetypes crawled more recently than this.
	MaxAge time.Duration
}

// DiscoverResult summarizes a discovery pass.
type DiscoverResult struct {
	Added             int `json:"added"`
	Seen              int `json:"seen"`
	ArchetypesCrawled int `json:"archetypes_crawled"`
	ArchetypesSkipped int `json:"archetypes_skipped"`
	ArchetypesFailed  int `json:"archetypes_failed"`
}

// Discoverer adds replay shortids to the index.
type Discoverer struct {
	fetcher     Fetcher
	index       DiscoveryIndex
	urlTemplate string
	logger      zerolog.Logger
}

// NewDiscoverer creates a Discoverer. urlTemplate may be empty, in which
// case archetype crawling is disabled.
func NewDiscoverer(fetcher Fetcher, index DiscoveryIndex, urlTemplate string) *Discoverer {
	return &Discoverer{
		fetcher:     fetcher,
		index:       index,
		urlTemplate: urlTemplate,
		logger:      logging.Component("discovery"),
	}
}

// Discover adds sample ids, then crawls each due archetype. Per-archetype
// fetch failures are counted and leave the archetype due for the next run.
func (d *Discoverer) Discover(ctx context.Context, opts DiscoverOptions) (DiscoverResult, error) {
	var result DiscoverResult

	if len(opts.SampleIDs) > 0 {
		discoveries := make([]storage.Discovery, 0, len(opts.SampleIDs))
		for _, id := range opts.SampleIDs {
			if id = strings.TrimSpace(id); id == "" {
				continue
			}
			if !storage.ValidShortID(id) {
				return result, fmt.Errorf("sample id: %w: %q", storage.ErrInvalidShortID, id)
			}
			discoveries = append(discoveries, storage.Discovery{ShortID: id})
		}
		added, err := d.index.AddMany(ctx, discoveries)
		if err != nil {
			return result, fmt.Errorf("add sample ids: %w", err)
		}
		result.Seen += len(discoveries)
		result.Added += added
	}

	if len(opts.Archetypes) == 0 {
		return result, nil
	}
	if d.urlTemplate == "" {
		d.logger.Warn().Int("archetypes", len(opts.Archetypes)).Msg("no discovery_url configured, skipping archetype discovery")
		return result, nil
	}

	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultCrawlMaxAge
	}

	for _, a := range opts.Archetypes {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		due, err := d.index.ArchetypeDueForCrawl(ctx, a.ID, maxAge)
		if err != nil {
			return result, err
		}
		if !due {
			result.ArchetypesSkipped++
			continue
		}

		seen, added, err := d.crawlArchetype(ctx, a)
		if err != nil {
			result.ArchetypesFailed++
			d.logger.Warn().Err(err).Int("archetype_id", a.ID).Msg("archetype discovery failed")
			continue
		}
		result.ArchetypesCrawled++
		result.Seen += seen
		result.Added += added
	}

	d.logger.Info().
		Int("seen", result.Seen).
		Int("added", result.Added).
		Int("crawled", result.ArchetypesCrawled).
		Int("skipped", result.ArchetypesSkipped).
		Int("failed", result.ArchetypesFailed).
		Msg("discovery complete")
	return result, nil
}

// DiscoveryURL expands the URL template for an archetype.
func (d *Discoverer) DiscoveryURL(archetypeID int) string {
	return strings.ReplaceAll(d.urlTemplate, ArchetypePlaceholder, strconv.Itoa(archetypeID))
}

func (d *Discoverer) crawlArchetype(ctx context.Context, a meta.Archetype) (seen, added int, err error) {
	body, err := d.fetcher.Fetch(ctx, d.DiscoveryURL(a.ID))
	if err != nil {
		return 0, 0, err
	}

	entries, err := parseDiscovery(body)
	if err != nil {
		return 0, 0, err
	}

	discoveries := make([]storage.Discovery, 0, len(entries))
	for _, e := range entries {
		class := strings.ToUpper(e.PlayerClass)
		if class == "" {
			class = a.PlayerClass
		}
		discoveries = append(discoveries, storage.Discovery{
			ShortID:     e.ShortID,
			ArchetypeID: a.ID,
			PlayerClass: class,
		})
	}

	added, err = d.index.AddMany(ctx, discoveries)
	if err != nil {
		return 0, 0, err
	}
	if err := d.index.UpsertArchetypeCrawl(ctx, a.ID, a.Name, a.PlayerClass); err != nil {
		return 0, 0, err
	}
	return len(discoveries), added, nil
}

func parseDiscovery(body []byte) ([]discoveredReplay, error) {
	if err := jsonshape.Validate(discoverySchema, body); err != nil {
		return nil, err
	}

	var entries []discoveredReplay
	if err := json.Unmarshal(body, &entries); err == nil {
		return entries, nil
	}

	var wrapped struct {
		Results []discoveredReplay `json:"results"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode discovery response: %w", err)
	}
	return wrapped.Results, nil
}
