package cards

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/jsonshape"
)

type stubFetcher struct {
	body  []byte
	err   error
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.calls++
	return s.body, s.err
}

const cardTable = `[
	{"dbfId": 754, "id": "CS2_005", "name": "Claw", "cost": 1, "type": "SPELL", "cardClass": "DRUID"},
	{"dbfId": 274, "id": "HERO_06", "name": "Malfurion Stormrage", "type": "HERO", "cardClass": "DRUID"},
	{"id": "NO_DBF", "name": "Orphan"},
	{"dbfId": 99}
]`

func TestCatalog_LoadFromUpstreamWritesCache(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), CacheFileName)
	fetcher := &stubFetcher{body: []byte(cardTable)}

	catalog := NewCatalog(fetcher, CatalogOptions{URL: "http://cards", CachePath: cachePath})
	require.NoError(t, catalog.Load(context.Background()))

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 2, catalog.Len())

	card, ok := catalog.Resolve(754)
	require.True(t, ok)
	assert.Equal(t, Card{CardID: "CS2_005", Name: "Claw", Cost: 1, Type: "SPELL", CardClass: "DRUID"}, card)

	_, ok = catalog.Resolve(99)
	assert.False(t, ok)

	raw, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	var onDisk map[string]Card
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Contains(t, onDisk, "754")
	assert.Contains(t, onDisk, "274")
}

func TestCatalog_LoadPrefersCache(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), CacheFileName)
	require.NoError(t, os.WriteFile(cachePath, []byte(`{"1": {"card_id": "EX1_001", "name": "Lightwarden"}}`), 0o644))

	fetcher := &stubFetcher{err: errors.New("must not be called")}
	catalog := NewCatalog(fetcher, CatalogOptions{URL: "http://cards", CachePath: cachePath})
	require.NoError(t, catalog.Load(context.Background()))
	require.NoError(t, catalog.Load(context.Background()))

	assert.Zero(t, fetcher.calls)
	card, ok := catalog.Resolve(1)
	require.True(t, ok)
	assert.Equal(t, "EX1_001", card.CardID)
}

func TestCatalog_CorruptCacheRefetches(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), CacheFileName)
	require.NoError(t, os.WriteFile(cachePath, []byte(`{"x": {}}`), 0o644))

	fetcher := &stubFetcher{body: []byte(cardTable)}
	catalog := NewCatalog(fetcher, CatalogOptions{URL: "http://cards", CachePath: cachePath})
	require.NoError(t, catalog.Load(context.Background()))

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 2, catalog.Len())
}

func TestCatalog_RefreshRejectsUnknownShape(t *testing.T) {
	fetcher := &stubFetcher{body: []byte(`{"cards": []}`)}
	catalog := NewCatalog(fetcher, CatalogOptions{URL: "http://cards"})

	err := catalog.Refresh(context.Background())
	var shapeErr *jsonshape.ShapeError
	assert.True(t, errors.As(err, &shapeErr), "got %v", err)
}

func TestCatalog_RefreshPropagatesFetchError(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("boom")}
	catalog := NewCatalog(fetcher, CatalogOptions{URL: "http://cards"})
	assert.Error(t, catalog.Load(context.Background()))
}

func TestCatalog_ResolveMany(t *testing.T) {
	catalog := NewStaticCatalog(map[int]Card{
		1: {CardID: "C1"},
		2: {CardID: "C2"},
	})

	assert.Equal(t, []string{"C2", "C1"}, catalog.ResolveMany([]int{2, 3, 1}))
	assert.Empty(t, catalog.ResolveMany(nil))
}
