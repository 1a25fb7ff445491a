// Package cards provides the card metadata catalog keyed by DBF id.
package cards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/fsutil"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/jsonshape"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/logging"
)

// CacheFileName is the catalog cache file inside the data directory.
const CacheFileName = "dbf_map.json"

// Fetcher retrieves raw bytes from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Card is the metadata for one card. Immutable after load.
type Card struct {
	CardID    string `json:"card_id"`
	Name      string `json:"name"`
	Cost      int    `json:"cost"`
	Type      string `json:"type"`
	CardClass string `json:"card_class"`
}

// upstreamCard is one row of the upstream card table.
type upstreamCard struct {
	DbfID     *int   `json:"dbfId"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Cost      int    `json:"cost"`
	Type      string `json:"type"`
	CardClass string `json:"cardClass"`
}

var cardTableSchema = jsonshape.Schema{
	Name: "card-table",
	Definition: `{
		"type": "array",
		"items": {
			"type": "object",
			"properties": {
				"dbfId": {"type": "integer"},
				"id": {"type": "string"}
			}
		}
	}`,
}

// CatalogOptions configures a Catalog.
type CatalogOptions struct {
	// URL of the upstream card table.
	URL string

	// CachePath is where the string-keyed cache is read from and written to.
	CachePath string
}

// Catalog resolves DBF ids to card metadata. It loads lazily from the disk
// cache, falling back to the upstream table.
type Catalog struct {
	fetcher   Fetcher
	url       string
	cachePath string
	logger    zerolog.Logger

	mu     sync.RWMutex
	cards  map[int]Card
	loaded bool
}

// NewCatalog creates a Catalog.
func NewCatalog(fetcher Fetcher, options CatalogOptions) *Catalog {
	return &Catalog{
		fetcher:   fetcher,
		url:       options.URL,
		cachePath: options.CachePath,
		logger:    logging.Component("catalog"),
		cards:     make(map[int]Card),
	}
}

// NewStaticCatalog creates an already-loaded Catalog from a fixed table.
func NewStaticCatalog(cards map[int]Card) *Catalog {
	c := &Catalog{
		logger: logging.Component("catalog"),
		cards:  make(map[int]Card, len(cards)),
		loaded: true,
	}
	for id, card := range cards {
		c.cards[id] = card
	}
	return c
}

// Load populates the catalog once: from the cache when present, otherwise
// from upstream (writing the cache afterwards). Later calls are no-ops.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	cards, err := c.readCache()
	switch {
	case err == nil:
		c.logger.Debug().Str("path", c.cachePath).Int("cards", len(cards)).Msg("loaded card cache")
		c.set(cards)
		return nil
	case errors.Is(err, os.ErrNotExist):
		// fall through to upstream
	default:
		c.logger.Warn().Err(err).Str("path", c.cachePath).Msg("card cache unreadable, refetching")
	}

	return c.Refresh(ctx)
}

// Refresh downloads the upstream table and rewrites the cache.
func (c *Catalog) Refresh(ctx context.Context) error {
	if c.fetcher == nil || c.url == "" {
		return fmt.Errorf("card catalog has no upstream configured")
	}

	body, err := c.fetcher.Fetch(ctx, c.url)
	if err != nil {
		return fmt.Errorf("fetch card table: %w", err)
	}

	cards, skipped, err := parseCardTable(body)
	if err != nil {
		return err
	}

	if c.cachePath != "" {
		if err := c.writeCache(cards); err != nil {
			return err
		}
	}

	c.logger.Info().Int("cards", len(cards)).Int("skipped", skipped).Msg("refreshed card catalog")
	c.set(cards)
	return nil
}

// Resolve returns the metadata for a DBF id. Unknown ids report false.
func (c *Catalog) Resolve(dbfID int) (Card, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	card, ok := c.cards[dbfID]
	return card, ok
}

// ResolveMany returns the string card ids of the resolvable DBF ids, in input order.
func (c *Catalog) ResolveMany(dbfIDs []int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(dbfIDs))
	for _, id := range dbfIDs {
		if card, ok := c.cards[id]; ok {
			out = append(out, card.CardID)
		}
	}
	return out
}

// Len returns the number of cards loaded.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cards)
}

func (c *Catalog) set(cards map[int]Card) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cards = cards
	c.loaded = true
}

func (c *Catalog) readCache() (map[int]Card, error) {
	if c.cachePath == "" {
		return nil, os.ErrNotExist
	}

	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return nil, err
	}

	var onDisk map[string]Card
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("parse card cache: %w", err)
	}

	cards := make(map[int]Card, len(onDisk))
	for key, card := range onDisk {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("card cache key %q is not numeric", key)
		}
		cards[id] = card
	}
	return cards, nil
}

func (c *Catalog) writeCache(cards map[int]Card) error {
	onDisk := make(map[string]Card, len(cards))
	for id, card := range cards {
		onDisk[strconv.Itoa(id)] = card
	}
	if err := fsutil.WriteJSONAtomic(c.cachePath, onDisk); err != nil {
		return fmt.Errorf("write card cache: %w", err)
	}
	return nil
}

// parseCardTable validates and converts the upstream table. Rows without a
// DBF id or string id are skipped.
func parseCardTable(body []byte) (map[int]Card, int, error) {
	if err := jsonshape.Validate(cardTableSchema, body); err != nil {
		return nil, 0, err
	}

	var rows []upstreamCard
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, 0, fmt.Errorf("decode card table: %w", err)
	}

	cards := make(map[int]Card, len(rows))
	skipped := 0
	for _, row := range rows {
		if row.DbfID == nil || row.ID == "" {
			skipped++
			continue
		}
		cards[*row.DbfID] = Card{
			CardID:    row.ID,
			Name:      row.Name,
			Cost:      row.Cost,
			Type:      row.Type,
			CardClass: row.CardClass,
		}
	}
	return cards, skipped, nil
}
