package meta

import (
	"context"
	"fmt"
	"html"

	"github.com/rs/zerolog"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/deckcode"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/logging"
)

// TopDecksFileName is the output of the secondary deck source.
const TopDecksFileName = "top_meta_decks.json"

// TopDeck is a complete deck list scraped from the deck source.
type TopDeck struct {
	Code   string        `json:"code"`
	Format string        `json:"format"`
	HeroID int           `json:"hero_id"`
	Class  string        `json:"class"`
	Cards  []TopDeckCard `json:"cards"`
	Total  int           `json:"total"`
}

// TopDeckCard is one card entry of a TopDeck.
type TopDeckCard struct {
	DbfID  int    `json:"dbf_id"`
	CardID string `json:"card_id,omitempty"`
	Count  int    `json:"count"`
}

// ScrapeResult summarizes a deck source scrape.
type ScrapeResult struct {
	Decks  []TopDeck
	Found  int
	Failed int
}

// DeckSource extracts deck codes from an HTML listing page.
type DeckSource struct {
	fetcher  Fetcher
	resolver CardResolver
	url      string
	logger   zerolog.Logger
}

// NewDeckSource creates a DeckSource reading the page at url.
func NewDeckSource(fetcher Fetcher, resolver CardResolver, url string) *DeckSource {
	return &DeckSource{
		fetcher:  fetcher,
		resolver: resolver,
		url:      url,
		logger:   logging.Component("decksource"),
	}
}

// Scrape fetches the listing page and decodes up to limit decks.
// A limit of zero or less means no limit. Codes that fail to decode are
// counted and skipped.
func (s *DeckSource) Scrape(ctx context.Context, limit int) (*ScrapeResult, error) {
	body, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch deck source: %w", err)
	}

	codes := deckcode.FindCodes(html.UnescapeString(string(body)))
	result := &ScrapeResult{Found: len(codes)}

	for _, code := range codes {
		if limit > 0 && len(result.Decks) >= limit {
			break
		}

		deck, err := deckcode.Decode(code)
		if err != nil {
			result.Failed++
			s.logger.Debug().Err(err).Str("code", code).Msg("skipping undecodable deck code")
			continue
		}
		result.Decks = append(result.Decks, s.topDeck(code, deck))
	}

	s.logger.Info().
		Int("found", result.Found).
		Int("decoded", len(result.Decks)).
		Int("failed", result.Failed).
		Msg("scraped deck source")
	return result, nil
}

func (s *DeckSource) topDeck(code string, deck *deckcode.Deck) TopDeck {
	td := TopDeck{
		Code:   code,
		Format: deck.Format.String(),
		HeroID: deck.HeroID,
		Total:  deck.TotalCards(),
	}
	if hero, ok := s.resolver.Resolve(deck.HeroID); ok {
		td.Class = hero.CardClass
	}

	for _, cc := range deck.AllCards() {
		card := TopDeckCard{DbfID: cc.ID, Count: cc.Count}
		if c, ok := s.resolver.Resolve(cc.ID); ok {
			card.CardID = c.CardID
		}
		td.Cards = append(td.Cards, card)
	}
	return td
}
