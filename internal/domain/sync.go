package domain

import "time"

// SyncState is the durable sync bookkeeping for one source.
type SyncState struct {
	ID           int64     `db:"id"`
	SourceID     string    `db:"source_id"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	TotalSynced  int64     `db:"total_synced"`
}

// SyncStats holds statistics about one unit of work.
type SyncStats struct {
	Mode     Mode
	Page     int
	Fetched  int
	New      int
	Updated  int
	Deleted  int
	Skipped  int
	Errors   int
	Duration time.Duration
}
