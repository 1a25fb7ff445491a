// Package deckcode decodes and encodes the base64 + varint deck-code format.
//
// After base64 decoding, a deck code is a sequence of unsigned LEB128 varints:
//
//	reserved byte, version, format,
//	num_heroes, hero...,
//	num_singles, id...,
//	num_doubles, id...,
//	[num_n, (id, count)...]
//
// The trailing n-copies section is optional.
package deckcode

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
)

// Format is the deck format.
type Format uint64

// Known formats.
const (
	FormatWild     Format = 1
	FormatStandard Format = 2
)

func (f Format) String() string {
	switch f {
	case FormatWild:
		return "wild"
	case FormatStandard:
		return "standard"
	default:
		return fmt.Sprintf("format(%d)", uint64(f))
	}
}

// CurrentVersion is the only version Encode emits.
const CurrentVersion = 1

// DeckSize is the card count of a complete constructed deck.
const DeckSize = 30

// CardCount is a card id with its multiplicity.
type CardCount struct {
	ID    int `json:"dbf_id"`
	Count int `json:"count"`
}

// Deck is a decoded deck code.
type Deck struct {
	Format  Format      `json:"format"`
	HeroID  int         `json:"hero_id"`
	Singles []int       `json:"singles"`
	Doubles []int       `json:"doubles"`
	NCopies []CardCount `json:"n_copies,omitempty"`
}

// AllCards expands the deck into (id, count) pairs in file order:
// singles, then doubles, then n-copies.
func (d *Deck) AllCards() []CardCount {
	cards := make([]CardCount, 0, len(d.Singles)+len(d.Doubles)+len(d.NCopies))
	for _, id := range d.Singles {
		cards = append(cards, CardCount{ID: id, Count: 1})
	}
	for _, id := range d.Doubles {
		cards = append(cards, CardCount{ID: id, Count: 2})
	}
	cards = append(cards, d.NCopies...)
	return cards
}

// TotalCards returns |singles| + 2·|doubles| + Σcount.
func (d *Deck) TotalCards() int {
	total := len(d.Singles) + 2*len(d.Doubles)
	for _, c := range d.NCopies {
		total += c.Count
	}
	return total
}

// IsComplete reports whether the deck holds exactly DeckSize cards.
// Decode never enforces this.
func (d *Deck) IsComplete() bool {
	return d.TotalCards() == DeckSize
}

// Decode parses a deck code. Surrounding whitespace is ignored and any
// version is accepted.
func Decode(code string) (*Deck, error) {
	raw, err := decodeBase64(strings.TrimSpace(code))
	if err != nil {
		return nil, &DecodeError{Kind: ErrBase64, Err: err}
	}

	r := &reader{buf: raw}

	// Reserved byte.
	if _, err := r.reserved(); err != nil {
		return nil, err
	}
	if _, err := r.varint("version"); err != nil {
		return nil, err
	}

	format, err := r.varint("format")
	if err != nil {
		return nil, err
	}
	deck := &Deck{Format: Format(format)}

	heroes, err := r.list("hero")
	if err != nil {
		return nil, err
	}
	if len(heroes) > 0 {
		deck.HeroID = heroes[0]
	}

	if deck.Singles, err = r.list("single"); err != nil {
		return nil, err
	}
	if deck.Doubles, err = r.list("double"); err != nil {
		return nil, err
	}

	if r.remaining() > 0 {
		n, err := r.varint("n-copies count")
		if err != nil {
			return nil, err
		}
		if n > maxListLen || n > uint64(r.remaining())/2 {
			return nil, &DecodeError{Kind: ErrTruncated, Offset: r.off, Err: fmt.Errorf("n-copies count %d exceeds remaining input", n)}
		}
		deck.NCopies = make([]CardCount, 0, n)
		for i := uint64(0); i < n; i++ {
			id, err := r.varint("n-copies id")
			if err != nil {
				return nil, err
			}
			count, err := r.varint("n-copies count")
			if err != nil {
				return nil, err
			}
			deck.NCopies = append(deck.NCopies, CardCount{ID: int(id), Count: int(count)})
		}
	}

	return deck, nil
}

// Encode produces a version-1 deck code. Card order is preserved.
func Encode(deck *Deck) (string, error) {
	return EncodeVersion(deck, CurrentVersion)
}

// EncodeVersion is Encode with an explicit version; only CurrentVersion is supported.
func EncodeVersion(deck *Deck, version uint64) (string, error) {
	if version != CurrentVersion {
		return "", &DecodeError{Kind: ErrUnsupportedVersion, Err: fmt.Errorf("cannot encode version %d", version)}
	}

	buf := []byte{0}
	buf = binary.AppendUvarint(buf, version)
	buf = binary.AppendUvarint(buf, uint64(deck.Format))

	if deck.HeroID > 0 {
		buf = binary.AppendUvarint(buf, 1)
		buf = binary.AppendUvarint(buf, uint64(deck.HeroID))
	} else {
		buf = binary.AppendUvarint(buf, 0)
	}

	buf = appendList(buf, deck.Singles)
	buf = appendList(buf, deck.Doubles)

	if len(deck.NCopies) > 0 {
		buf = binary.AppendUvarint(buf, uint64(len(deck.NCopies)))
		for _, c := range deck.NCopies {
			buf = binary.AppendUvarint(buf, uint64(c.ID))
			buf = binary.AppendUvarint(buf, uint64(c.Count))
		}
	} else {
		buf = binary.AppendUvarint(buf, 0)
	}

	return base64.StdEncoding.EncodeToString(buf), nil
}

func appendList(buf []byte, ids []int) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(ids)))
	for _, id := range ids {
		buf = binary.AppendUvarint(buf, uint64(id))
	}
	return buf
}

// codePattern matches deck codes embedded in free text or HTML.
var codePattern = regexp.MustCompile(`AAE[A-Za-z0-9+/]{8,}={0,2}`)

// FindCodes returns the distinct deck codes in text, in order of appearance.
func FindCodes(text string) []string {
	matches := codePattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	codes := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		codes = append(codes, m)
	}
	return codes
}

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
