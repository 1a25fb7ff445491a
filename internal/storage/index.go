package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/logging"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/storage/models"
	"github.com/ramonehamilton/hs-replay-pipeline/internal/storage/repository"
)

var (
	// ErrNotFound is returned when a shortid is not in the index.
	ErrNotFound = errors.New("replay not found")

	// ErrInvalidShortID is returned for shortids outside the URL-safe alphabet.
	ErrInvalidShortID = errors.New("invalid shortid")
)

var shortIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidShortID reports whether id is a non-empty URL-safe identifier.
func ValidShortID(id string) bool {
	return shortIDPattern.MatchString(id)
}

// Discovery is a replay identifier with optional tags.
type Discovery struct {
	ShortID     string
	ArchetypeID int    // zero when untagged
	PlayerClass string // empty when untagged
}

// Index is the durable replay discovery index. Every write is committed
// before it returns, so state survives a crash between operations.
type Index struct {
	db      *DB
	replays repository.ReplayRepository
	crawls  repository.ArchetypeCrawlRepository
	logger  zerolog.Logger
	now     func() time.Time
}

// OpenIndex opens (creating and migrating if needed) the index at path.
func OpenIndex(path string) (*Index, error) {
	db, err := Open(DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return NewIndex(db), nil
}

// NewIndex wraps an open, migrated database.
func NewIndex(db *DB) *Index {
	return &Index{
		db:      db,
		replays: repository.NewReplayRepository(db.Conn()),
		crawls:  repository.NewArchetypeCrawlRepository(db.Conn()),
		logger:  logging.Component("index"),
		now:     time.Now,
	}
}

// Close closes the underlying database.
func (i *Index) Close() error {
	return i.db.Close()
}

// Add records a shortid as pending. It returns false, without error, when
// the shortid is already present; existing tags are left unchanged.
func (i *Index) Add(ctx context.Context, d Discovery) (bool, error) {
	return i.add(ctx, i.replays, d)
}

// AddMany adds a batch of discoveries in one transaction and returns how
// many were new.
func (i *Index) AddMany(ctx context.Context, discoveries []Discovery) (int, error) {
	added := 0
	err := i.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		replays := repository.NewReplayRepository(tx)
		for _, d := range discoveries {
			ok, err := i.add(ctx, replays, d)
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (i *Index) add(ctx context.Context, replays repository.ReplayRepository, d Discovery) (bool, error) {
	if !ValidShortID(d.ShortID) {
		return false, fmt.Errorf("%w: %q", ErrInvalidShortID, d.ShortID)
	}

	record := &models.ReplayRecord{
		ShortID:      d.ShortID,
		DiscoveredAt: i.now(),
	}
	if d.ArchetypeID != 0 {
		id := d.ArchetypeID
		record.ArchetypeID = &id
	}
	if d.PlayerClass != "" {
		class := d.PlayerClass
		record.PlayerClass = &class
	}

	return replays.Insert(ctx, record)
}

// MarkDownloaded flips a replay to downloaded. Calling it again updates the
// path and timestamp. Unknown shortids return ErrNotFound.
func (i *Index) MarkDownloaded(ctx context.Context, shortID, path string) error {
	ok, err := i.replays.MarkDownloaded(ctx, shortID, path, i.now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mark downloaded %s: %w", shortID, ErrNotFound)
	}
	return nil
}

// Pending returns up to limit pending shortids in discovery order.
// A limit of zero or less returns all of them.
func (i *Index) Pending(ctx context.Context, limit int) ([]string, error) {
	return i.replays.ListPending(ctx, limit)
}

// Get returns the record for a shortid, or ErrNotFound.
func (i *Index) Get(ctx context.Context, shortID string) (*models.ReplayRecord, error) {
	record, err := i.replays.GetByShortID(ctx, shortID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("get %s: %w", shortID, ErrNotFound)
	}
	return record, nil
}

// Stats returns total, downloaded and pending counts.
func (i *Index) Stats(ctx context.Context) (models.IndexStats, error) {
	stats, err := i.replays.Stats(ctx)
	if err != nil {
		return models.IndexStats{}, err
	}
	return *stats, nil
}

// UpsertArchetypeCrawl records that an archetype was crawled now.
func (i *Index) UpsertArchetypeCrawl(ctx context.Context, id int, name, playerClass string) error {
	record := &models.ArchetypeCrawlRecord{
		ID:          id,
		Name:        name,
		LastCrawled: i.now(),
	}
	if playerClass != "" {
		record.PlayerClass = &playerClass
	}
	return i.crawls.Upsert(ctx, record)
}

// ArchetypeDueForCrawl reports whether an archetype was never crawled or was
// last crawled more than maxAge ago.
func (i *Index) ArchetypeDueForCrawl(ctx context.Context, id int, maxAge time.Duration) (bool, error) {
	record, err := i.crawls.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if record == nil {
		return true, nil
	}
	return i.now().Sub(record.LastCrawled) > maxAge, nil
}
