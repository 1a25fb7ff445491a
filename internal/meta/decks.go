package meta

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/fsutil"
)

// Output files written by WriteMetaDecks.
const (
	MetaDecksFileName     = "meta_decks.json"
	MetaDeckListsFileName = "meta_deck_lists.json"
)

// excludedClasses are never turned into meta decks.
var excludedClasses = map[string]bool{
	"NEUTRAL":  true,
	"WHIZBANG": true,
}

// MetaDeck is a normalized deck descriptor derived from an archetype signature.
type MetaDeck struct {
	Key              string   `json:"key"`
	Name             string   `json:"name"`
	Class            string   `json:"class"`
	ArchetypeID      int      `json:"archetype_id"`
	SignatureCardIDs []string `json:"signature_card_ids"`
	Format           string   `json:"format"`
	URL              string   `json:"url,omitempty"`
}

// DeckKey derives a meta deck key from class and archetype name.
func DeckKey(class, name string) string {
	return strings.ToLower(class) + "_" + slug(name)
}

func slug(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// BuildMetaDecks joins archetype signatures against the card catalog.
//
// The standard signature is used when it resolves to at least minSignature
// cards; otherwise the wild signature is tried. Archetypes where neither
// qualifies are dropped, as are NEUTRAL and WHIZBANG archetypes. The result
// is sorted by key, then archetype id.
func BuildMetaDecks(archetypes []Archetype, resolver CardResolver, minSignature int) []MetaDeck {
	decks := make([]MetaDeck, 0, len(archetypes))
	for _, a := range archetypes {
		if a.PlayerClass == "" || excludedClasses[a.PlayerClass] {
			continue
		}

		format := "standard"
		ids := resolver.ResolveMany(a.StandardSignature)
		if len(ids) < minSignature {
			format = "wild"
			ids = resolver.ResolveMany(a.WildSignature)
		}
		if len(ids) == 0 || len(ids) < minSignature {
			continue
		}

		decks = append(decks, MetaDeck{
			Key:              DeckKey(a.PlayerClass, a.Name),
			Name:             a.Name,
			Class:            a.PlayerClass,
			ArchetypeID:      a.ID,
			SignatureCardIDs: ids,
			Format:           format,
			URL:              a.URL,
		})
	}

	sort.SliceStable(decks, func(i, j int) bool {
		if decks[i].Key != decks[j].Key {
			return decks[i].Key < decks[j].Key
		}
		return decks[i].ArchetypeID < decks[j].ArchetypeID
	})

	// Disambiguate archetypes that share a class and name.
	seen := make(map[string]int, len(decks))
	for i := range decks {
		seen[decks[i].Key]++
		if seen[decks[i].Key] > 1 {
			decks[i].Key += "_" + strconv.Itoa(decks[i].ArchetypeID)
		}
	}
	return decks
}

// WriteMetaDecks writes meta_decks.json, an object keyed by deck key, and
// meta_deck_lists.json, which groups signature card id lists by class.
func WriteMetaDecks(dir string, decks []MetaDeck) error {
	keyed := make(map[string]MetaDeck, len(decks))
	lists := make(map[string][][]string)
	for _, d := range decks {
		keyed[d.Key] = d
		lists[d.Class] = append(lists[d.Class], d.SignatureCardIDs)
	}

	if err := fsutil.WriteJSONAtomic(filepath.Join(dir, MetaDecksFileName), keyed); err != nil {
		return err
	}
	return fsutil.WriteJSONAtomic(filepath.Join(dir, MetaDeckListsFileName), lists)
}
