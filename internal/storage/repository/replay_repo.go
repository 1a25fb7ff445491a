package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ramonehamilton/hs-replay-pipeline/internal/storage/models"
)

// ReplayRepository handles database operations for discovered replays.
type ReplayRepository interface {
	// Insert adds a replay unless its shortid is already present.
	// It reports whether a row was inserted.
	Insert(ctx context.Context, replay *models.ReplayRecord) (bool, error)

	// MarkDownloaded records the download path and time.
	// It reports whether the shortid exists.
	MarkDownloaded(ctx context.Context, shortID, path string, at time.Time) (bool, error)

	// GetByShortID retrieves a replay, or nil when it is unknown.
	GetByShortID(ctx context.Context, shortID string) (*models.ReplayRecord, error)

	// ListPending returns up to limit pending shortids, oldest discovery first.
	// A limit of zero or less returns all of them.
	ListPending(ctx context.Context, limit int) ([]string, error)

	// Stats counts total, downloaded and pending replays.
	Stats(ctx context.Context) (*models.IndexStats, error)
}

// replayRepository is the concrete implementation of ReplayRepository.
type replayRepository struct {
	db Querier
}

// NewReplayRepository creates a replay repository over a DB or Tx.
func NewReplayRepository(db Querier) ReplayRepository {
	return &replayRepository{db: db}
}

func (r *replayRepository) Insert(ctx context.Context, replay *models.ReplayRecord) (bool, error) {
	query := `
		INSERT OR IGNORE INTO replays (shortid, archetype_id, player_class, discovered_at)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		replay.ShortID,
		replay.ArchetypeID,
		replay.PlayerClass,
		formatTime(replay.DiscoveredAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert replay %s: %w", replay.ShortID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *replayRepository) MarkDownloaded(ctx context.Context, shortID, path string, at time.Time) (bool, error) {
	query := `
		UPDATE replays
		SET downloaded = 1, download_path = ?, downloaded_at = ?
		WHERE shortid = ?
	`

	result, err := r.db.ExecContext(ctx, query, path, formatTime(at), shortID)
	if err != nil {
		return false, fmt.Errorf("failed to mark replay %s downloaded: %w", shortID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *replayRepository) GetByShortID(ctx context.Context, shortID string) (*models.ReplayRecord, error) {
	query := `
		SELECT shortid, archetype_id, player_class, downloaded, download_path, discovered_at, downloaded_at
		FROM replays
		WHERE shortid = ?
	`

	var (
		replay       models.ReplayRecord
		archetypeID  sql.NullInt64
		playerClass  sql.NullString
		downloadPath sql.NullString
		discoveredAt string
		downloadedAt sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, shortID).Scan(
		&replay.ShortID,
		&archetypeID,
		&playerClass,
		&replay.Downloaded,
		&downloadPath,
		&discoveredAt,
		&downloadedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get replay %s: %w", shortID, err)
	}

	if archetypeID.Valid {
		id := int(archetypeID.Int64)
		replay.ArchetypeID = &id
	}
	if playerClass.Valid {
		replay.PlayerClass = &playerClass.String
	}
	if downloadPath.Valid {
		replay.DownloadPath = &downloadPath.String
	}

	if replay.DiscoveredAt, err = parseTime(discoveredAt); err != nil {
		return nil, fmt.Errorf("failed to parse discovered_at for %s: %w", shortID, err)
	}
	if downloadedAt.Valid {
		at, err := parseTime(downloadedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse downloaded_at for %s: %w", shortID, err)
		}
		replay.DownloadedAt = &at
	}

	return &replay, nil
}

func (r *replayRepository) ListPending(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT shortid FROM replays
		WHERE downloaded = 0
		ORDER BY discovered_at, shortid
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending replays: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var shortIDs []string
	for rows.Next() {
		var shortID string
		if err := rows.Scan(&shortID); err != nil {
			return nil, fmt.Errorf("failed to scan pending replay: %w", err)
		}
		shortIDs = append(shortIDs, shortID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending replays: %w", err)
	}

	return shortIDs, nil
}

func (r *replayRepository) Stats(ctx context.Context) (*models.IndexStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(downloaded), 0)
		FROM replays
	`

	var stats models.IndexStats
	if err := r.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Downloaded); err != nil {
		return nil, fmt.Errorf("failed to count replays: %w", err)
	}
	stats.Pending = stats.Total - stats.Downloaded

	return &stats, nil
}
