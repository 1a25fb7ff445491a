package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// setupTestIndex opens a migrated index in a temp directory with a clock
// that advances one second per call.
func setupTestIndex(t *testing.T) (*Index, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "replays.db")
	idx, err := OpenIndex(dbPath)
	if err != nil {
		t.Fatalf("Failed to open index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	idx.now = steppingClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return idx, dbPath
}

func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestIndex_AddIsIdempotent(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	added, err := idx.Add(ctx, Discovery{ShortID: "abc", ArchetypeID: 7, PlayerClass: "MAGE"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !added {
		t.Error("first Add should report true")
	}

	added, err = idx.Add(ctx, Discovery{ShortID: "abc", ArchetypeID: 9, PlayerClass: "ROGUE"})
	if err != nil {
		t.Fatalf("duplicate Add returned error: %v", err)
	}
	if added {
		t.Error("duplicate Add should report false")
	}

	record, err := idx.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.ArchetypeID == nil || *record.ArchetypeID != 7 {
		t.Errorf("ArchetypeID = %v, want 7", record.ArchetypeID)
	}
	if record.PlayerClass == nil || *record.PlayerClass != "MAGE" {
		t.Errorf("PlayerClass = %v, want MAGE", record.PlayerClass)
	}
}

func TestIndex_AddUntagged(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	if _, err := idx.Add(ctx, Discovery{ShortID: "plain"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	record, err := idx.Get(ctx, "plain")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.ArchetypeID != nil || record.PlayerClass != nil {
		t.Errorf("expected no tags, got archetype=%v class=%v", record.ArchetypeID, record.PlayerClass)
	}
	if !record.IsPending() {
		t.Error("new record should be pending")
	}
}

func TestIndex_AddRejectsInvalidShortID(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	for _, shortID := range []string{"", "../escaped", "a/b", `a\b`, "a.xml", "a b", "%2e%2e"} {
		if _, err := idx.Add(ctx, Discovery{ShortID: shortID}); !errors.Is(err, ErrInvalidShortID) {
			t.Errorf("Add(%q) error = %v, want ErrInvalidShortID", shortID, err)
		}
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}

	if _, err := idx.Add(ctx, Discovery{ShortID: "aB3_x-9"}); err != nil {
		t.Errorf("Add(aB3_x-9) failed: %v", err)
	}
}

func TestIndex_DiscoverDownloadFlow(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	for _, shortID := range []string{"a", "b", "a"} {
		if _, err := idx.Add(ctx, Discovery{ShortID: shortID}); err != nil {
			t.Fatalf("Add(%s) failed: %v", shortID, err)
		}
	}

	pending, err := idx.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if !reflect.DeepEqual(pending, []string{"a", "b"}) {
		t.Errorf("Pending = %v, want [a b]", pending)
	}

	if err := idx.MarkDownloaded(ctx, "a", "/out/a.xml"); err != nil {
		t.Fatalf("MarkDownloaded failed: %v", err)
	}

	pending, err = idx.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if !reflect.DeepEqual(pending, []string{"b"}) {
		t.Errorf("Pending = %v, want [b]", pending)
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 2 || stats.Downloaded != 1 || stats.Pending != 1 {
		t.Errorf("Stats = %+v, want total=2 downloaded=1 pending=1", stats)
	}
}

func TestIndex_PendingOrderAndLimit(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	for _, shortID := range []string{"zz", "mm", "aa", "qq"} {
		if _, err := idx.Add(ctx, Discovery{ShortID: shortID}); err != nil {
			t.Fatalf("Add(%s) failed: %v", shortID, err)
		}
	}

	pending, err := idx.Pending(ctx, 2)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if !reflect.DeepEqual(pending, []string{"zz", "mm"}) {
		t.Errorf("Pending(2) = %v, want [zz mm]", pending)
	}

	all, err := idx.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("Pending(0) returned %d ids, want 4", len(all))
	}
}

func TestIndex_MarkDownloadedUnknown(t *testing.T) {
	idx, _ := setupTestIndex(t)

	err := idx.MarkDownloaded(context.Background(), "missing", "/out/missing.xml")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIndex_MarkDownloadedTwiceUpdatesPath(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	if _, err := idx.Add(ctx, Discovery{ShortID: "x"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := idx.MarkDownloaded(ctx, "x", "/first/x.xml"); err != nil {
		t.Fatalf("MarkDownloaded failed: %v", err)
	}
	first, err := idx.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if err := idx.MarkDownloaded(ctx, "x", "/second/x.xml"); err != nil {
		t.Fatalf("second MarkDownloaded failed: %v", err)
	}
	second, err := idx.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !second.Downloaded {
		t.Error("record should stay downloaded")
	}
	if *second.DownloadPath != "/second/x.xml" {
		t.Errorf("DownloadPath = %s, want /second/x.xml", *second.DownloadPath)
	}
	if !second.DownloadedAt.After(*first.DownloadedAt) {
		t.Errorf("DownloadedAt did not advance: %v -> %v", first.DownloadedAt, second.DownloadedAt)
	}
}

func TestIndex_GetUnknown(t *testing.T) {
	idx, _ := setupTestIndex(t)

	_, err := idx.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIndex_AddMany(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	if _, err := idx.Add(ctx, Discovery{ShortID: "a"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	added, err := idx.AddMany(ctx, []Discovery{
		{ShortID: "a"},
		{ShortID: "b", ArchetypeID: 3},
		{ShortID: "c"},
		{ShortID: "b"},
	})
	if err != nil {
		t.Fatalf("AddMany failed: %v", err)
	}
	if added != 2 {
		t.Errorf("AddMany added %d, want 2", added)
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
}

func TestIndex_AddManyRollsBackOnError(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	_, err := idx.AddMany(ctx, []Discovery{{ShortID: "a"}, {ShortID: ""}})
	if err == nil {
		t.Fatal("expected error for empty shortid")
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d after rollback, want 0", stats.Total)
	}
}

func TestIndex_SurvivesReopen(t *testing.T) {
	idx, dbPath := setupTestIndex(t)
	ctx := context.Background()

	for _, shortID := range []string{"a", "b", "c"} {
		if _, err := idx.Add(ctx, Discovery{ShortID: shortID}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := idx.MarkDownloaded(ctx, "b", "/out/b.xml"); err != nil {
		t.Fatalf("MarkDownloaded failed: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenIndex(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen index: %v", err)
	}
	defer reopened.Close()

	pending, err := reopened.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if !reflect.DeepEqual(pending, []string{"a", "c"}) {
		t.Errorf("Pending after reopen = %v, want [a c]", pending)
	}

	added, err := reopened.Add(ctx, Discovery{ShortID: "a"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if added {
		t.Error("shortid from previous run should not be re-added")
	}
}

func TestIndex_ArchetypeDueForCrawl(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	due, err := idx.ArchetypeDueForCrawl(ctx, 42, time.Hour)
	if err != nil {
		t.Fatalf("ArchetypeDueForCrawl failed: %v", err)
	}
	if !due {
		t.Error("never-crawled archetype should be due")
	}

	if err := idx.UpsertArchetypeCrawl(ctx, 42, "Big Shaman", "SHAMAN"); err != nil {
		t.Fatalf("UpsertArchetypeCrawl failed: %v", err)
	}

	due, err = idx.ArchetypeDueForCrawl(ctx, 42, time.Hour)
	if err != nil {
		t.Fatalf("ArchetypeDueForCrawl failed: %v", err)
	}
	if due {
		t.Error("just-crawled archetype should not be due")
	}

	idx.now = func() time.Time { return time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC) }
	due, err = idx.ArchetypeDueForCrawl(ctx, 42, time.Hour)
	if err != nil {
		t.Fatalf("ArchetypeDueForCrawl failed: %v", err)
	}
	if !due {
		t.Error("archetype crawled two hours ago should be due with a one hour max age")
	}
}

func TestReplaysTable_RejectsDownloadedWithoutPath(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	if _, err := idx.Add(ctx, Discovery{ShortID: "a"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	_, err := idx.db.Conn().ExecContext(ctx, `UPDATE replays SET downloaded = 1 WHERE shortid = 'a'`)
	if err == nil {
		t.Error("expected CHECK constraint violation")
	}
}
