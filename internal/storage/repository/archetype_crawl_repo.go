package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/storage/models"
)

// ArchetypeCrawlRepository handles database operations for archetype crawl records.
type ArchetypeCrawlRepository interface {
	// Upsert inserts or replaces the crawl record for an archetype.
	Upsert(ctx context.Context, record *models.ArchetypeCrawlRecord) error

	// GetByID retrieves a crawl record, or nil when the archetype was never crawled.
	GetByID(ctx context.Context, id int) (*models.ArchetypeCrawlRecord, error)
}

type archetypeCrawlRepository struct {
	db Querier
}

// NewArchetypeCrawlRepository creates an archetype crawl repository.
func NewArchetypeCrawlRepository(db Querier) ArchetypeCrawlRepository {
	return &archetypeCrawlRepository{db: db}
}

func (r *archetypeCrawlRepository) Upsert(ctx context.Context, record *models.ArchetypeCrawlRecord) error {
	query := `
		INSERT INTO archetype_crawls (id, name, player_class, last_crawled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			player_class = excluded.player_class,
			last_crawled = excluded.last_crawled
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Name,
		record.PlayerClass,
		formatTime(record.LastCrawled),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert archetype crawl %d: %w", record.ID, err)
	}
	return nil
}

func (r *archetypeCrawlRepository) GetByID(ctx context.Context, id int) (*models.ArchetypeCrawlRecord, error) {
	query := `
		SELECT id, name, player_class, last_crawled
		FROM archetype_crawls
		WHERE id = ?
	`

	var (
		record      models.ArchetypeCrawlRecord
		playerClass sql.NullString
		lastCrawled string
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(&record.ID, &record.Name, &playerClass, &lastCrawled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archetype crawl %d: %w", id, err)
	}

	if playerClass.Valid {
		record.PlayerClass = &playerClass.String
	}
	if record.LastCrawled, err = parseTime(lastCrawled); err != nil {
		return nil, fmt.Errorf("failed to parse last_crawled for %d: %w", id, err)
	}

	return &record, nil
}
