package models

import "time"

// ReplayRecord is one discovered replay in the index.
//
// A record is either pending or downloaded. Downloaded records always carry
// DownloadPath and DownloadedAt, and never return to pending.
type ReplayRecord struct {
	ShortID      string
	ArchetypeID  *int    // Nullable
	PlayerClass  *string // Nullable
	Downloaded   bool
	DownloadPath *string // Nullable: set once downloaded
	DiscoveredAt time.Time
	DownloadedAt *time.Time // Nullable: set once downloaded
}

// IsPending reports whether the replay still needs downloading.
func (r *ReplayRecord) IsPending() bool {
	return !r.Downloaded
}

// ArchetypeCrawlRecord tracks when an archetype was last crawled for replays.
type ArchetypeCrawlRecord struct {
	ID          int
	Name        string
	PlayerClass *string // Nullable
	LastCrawled time.Time
}

// IndexStats summarizes the replay index.
type IndexStats struct {
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Pending    int `json:"pending"`
}
