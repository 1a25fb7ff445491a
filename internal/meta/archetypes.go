// Package meta crawls the upstream archetype catalog and derives meta decks
// from archetype signatures.
package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/cards"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/fsutil"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/jsonshape"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/logging"
)

// ArchetypesFileName is the raw archetype response cache inside the data directory.
const ArchetypesFileName = "archetypes.json"

// ErrUnknownShape is returned when the archetype catalog payload does not
// have the expected shape.
var ErrUnknownShape = errors.New("unknown archetype payload shape")

// Fetcher retrieves raw bytes from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// CardResolver resolves DBF ids against the card catalog.
type CardResolver interface {
	Resolve(dbfID int) (cards.Card, bool)
	ResolveMany(dbfIDs []int) []string
}

// Archetype is one archetype catalog entry.
type Archetype struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	PlayerClass       string `json:"player_class"`
	StandardSignature []int  `json:"standard_signature_components"`
	WildSignature     []int  `json:"wild_signature_components"`
	URL               string `json:"url,omitempty"`
}

// upstreamArchetype mirrors the catalog payload.
type upstreamArchetype struct {
	ID              int             `json:"id"`
	Name            string          `json:"name"`
	PlayerClass     json.RawMessage `json:"player_class"`
	PlayerClassName string          `json:"player_class_name"`
	URL             string          `json:"url"`
	Standard        *signatureCore  `json:"standard_ccp_signature_core"`
	Wild            *signatureCore  `json:"wild_ccp_signature_core"`
}

type signatureCore struct {
	Components []int `json:"components"`
}

var archetypeSchema = jsonshape.Schema{
	Name: "archetype-catalog",
	Definition: `{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["id", "name"],
			"properties": {
				"id": {"type": "integer"},
				"name": {"type": "string"},
				"player_class": {"type": ["integer", "string", "null"]},
				"player_class_name": {"type": ["string", "null"]},
				"url": {"type": ["string", "null"]},
				"standard_ccp_signature_core": {"$ref": "#/$defs/core"},
				"wild_ccp_signature_core": {"$ref": "#/$defs/core"}
			}
		},
		"$defs": {
			"core": {
				"type": ["object", "null"],
				"properties": {
					"components": {"type": "array", "items": {"type": "integer"}}
				}
			}
		}
	}`,
}

// classByID maps the numeric card-class enum to its name.
var classByID = map[int]string{
	1:  "DEATHKNIGHT",
	2:  "DRUID",
	3:  "HUNTER",
	4:  "MAGE",
	5:  "PALADIN",
	6:  "PRIEST",
	7:  "ROGUE",
	8:  "SHAMAN",
	9:  "WARLOCK",
	10: "WARRIOR",
	11: "DREAM",
	12: "NEUTRAL",
	13: "WHIZBANG",
	14: "DEMONHUNTER",
}

// CrawlerOptions configures a Crawler.
type CrawlerOptions struct {
	// URL of the archetype catalog.
	URL string

	// CachePath is where the raw response is stored after a successful fetch.
	CachePath string
}

// Crawler fetches the archetype catalog.
type Crawler struct {
	fetcher   Fetcher
	url       string
	cachePath string
	logger    zerolog.Logger
}

// NewCrawler creates a Crawler.
func NewCrawler(fetcher Fetcher, options CrawlerOptions) *Crawler {
	return &Crawler{
		fetcher:   fetcher,
		url:       options.URL,
		cachePath: options.CachePath,
		logger:    logging.Component("crawler"),
	}
}

// FetchArchetypes downloads, validates and parses the catalog, then caches
// the raw response.
func (c *Crawler) FetchArchetypes(ctx context.Context) ([]Archetype, error) {
	body, err := c.fetcher.Fetch(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("fetch archetypes: %w", err)
	}

	archetypes, err := ParseArchetypes(body)
	if err != nil {
		return nil, err
	}

	if c.cachePath != "" {
		if err := fsutil.WriteFileAtomic(c.cachePath, body, 0o644); err != nil {
			return nil, fmt.Errorf("cache archetypes: %w", err)
		}
	}

	c.logger.Info().Int("archetypes", len(archetypes)).Msg("fetched archetype catalog")
	return archetypes, nil
}

// LoadCachedArchetypes parses the cached raw response.
func (c *Crawler) LoadCachedArchetypes() ([]Archetype, error) {
	body, err := os.ReadFile(c.cachePath)
	if err != nil {
		return nil, err
	}
	return ParseArchetypes(body)
}

// ParseArchetypes validates a catalog payload and converts it to records.
// Payloads of any other shape are rejected with ErrUnknownShape.
func ParseArchetypes(body []byte) ([]Archetype, error) {
	if err := jsonshape.Validate(archetypeSchema, body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownShape, err)
	}

	var rows []upstreamArchetype
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode archetypes: %w", err)
	}

	archetypes := make([]Archetype, 0, len(rows))
	for _, row := range rows {
		a := Archetype{
			ID:          row.ID,
			Name:        row.Name,
			PlayerClass: playerClass(row),
			URL:         row.URL,
		}
		if row.Standard != nil {
			a.StandardSignature = row.Standard.Components
		}
		if row.Wild != nil {
			a.WildSignature = row.Wild.Components
		}
		archetypes = append(archetypes, a)
	}
	return archetypes, nil
}

func playerClass(row upstreamArchetype) string {
	if row.PlayerClassName != "" {
		return strings.ToUpper(row.PlayerClassName)
	}

	raw := strings.TrimSpace(string(row.PlayerClass))
	if raw == "" || raw == "null" {
		return ""
	}

	var name string
	if err := json.Unmarshal(row.PlayerClass, &name); err == nil {
		return strings.ToUpper(name)
	}

	if id, err := strconv.Atoi(raw); err == nil {
		return classByID[id]
	}
	return ""
}
