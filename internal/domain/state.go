package domain

import "time"

type Mode string

const (
	ModeTerms      Mode = "terms"
	ModeRegions    Mode = "regions"
	ModeCities     Mode = "cities"
	ModePOIs       Mode = "pois"
	ModePOIsOnly   Mode = "pois-only"
	ModePOI        Mode = "poi"
	ModeHistory    Mode = "history"
	ModeDeletes    Mode = "deletes"
	ModeActiveSync Mode = "active-sync"
	ModeFields     Mode = "fields"
)

// Task families. The scheduler runs at most one unit per family at a time.
const (
	FamilyImport  = "listing_import"
	FamilyHistory = "listing_history"
	FamilyActive  = "listing_active_sync"
)

// Families lists every task family, in the order they are cleaned up on cancel.
var Families = []string{FamilyImport, FamilyHistory, FamilyActive}

// Family returns the task family a mode runs in.
func (m Mode) Family() string {
	switch m {
	case ModeHistory:
		return FamilyHistory
	case ModeActiveSync:
		return FamilyActive
	default:
		return FamilyImport
	}
}

func (m Mode) Valid() bool {
	switch m {
	case ModeTerms, ModeRegions, ModeCities, ModePOIs, ModePOIsOnly, ModePOI,
		ModeHistory, ModeDeletes, ModeActiveSync, ModeFields:
		return true
	}
	return false
}

// Active-id reconciliation phases.
const (
	PhaseFetch   = "fetch"
	PhaseCompare = "compare"
	PhaseImport  = "import"
)

// History phases.
const (
	PhaseReplay = "replay"
)

// Cursor is the payload of one unit of work. It carries everything needed to resume.
type Cursor struct {
	Mode        Mode      `json:"mode"`
	Page        int       `json:"page,omitempty"`
	PageSize    int       `json:"page_size,omitempty"`
	ChapterSize int       `json:"chapter_size,omitempty"`
	Type        string    `json:"type,omitempty"`
	UUID        string    `json:"uuid,omitempty"`
	Modified    time.Time `json:"modified,omitempty"`
	Before      time.Time `json:"before,omitempty"`
	Phase       string    `json:"phase,omitempty"`
	Batch       int       `json:"batch,omitempty"`
	Offset      int64     `json:"offset,omitempty"`
	Bulk        bool      `json:"bulk,omitempty"`
	SkipPlaces  bool      `json:"skip_places,omitempty"` // pois pass leaves regions and cities alone
	Processed   int       `json:"processed,omitempty"`
	Next        []Mode    `json:"next,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	MarkSynced  bool      `json:"mark_synced,omitempty"`
}

// Advance returns the cursor for the next mode in the chain, or false when the chain is done.
func (c Cursor) Advance() (Cursor, bool) {
	if len(c.Next) == 0 {
		return Cursor{}, false
	}
	next := Cursor{
		Mode:       c.Next[0],
		Next:       append([]Mode(nil), c.Next[1:]...),
		Modified:   c.Modified,
		Before:     c.Before,
		SkipPlaces: c.SkipPlaces,
		StartedAt:  c.StartedAt,
		MarkSynced: c.MarkSynced,
	}
	return next, true
}

// ImportState is the small set of process-wide flags shared between units.
type ImportState struct {
	BulkActive        bool      `json:"bulk_active"`
	BulkHistoryActive bool      `json:"bulk_history_active"`
	CancelRequested   bool      `json:"cancel_requested"`
	Mode              Mode      `json:"mode,omitempty"`
	Page              int       `json:"page,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Verb string

const (
	VerbUpdated Verb = "updated"
	VerbDeleted Verb = "deleted"
)

// HistoryEntry is one changelog item retained for a uuid.
type HistoryEntry struct {
	UUID       string     `json:"uuid"`
	Verb       Verb       `json:"verb"`
	IsApproved string     `json:"isapproved"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Modified   time.Time  `json:"modified,omitempty"`
}

// Changelog is the materialized, deduplicated history replayed in batches.
type Changelog struct {
	Entries []HistoryEntry `json:"entries"`
	index   map[string]int
}

// Add keeps the first entry seen per uuid and ignores verbs other than updated/deleted.
// A later entry only replaces the retained one when both carry a modified time and the
// later one is strictly newer.
func (c *Changelog) Add(e HistoryEntry) bool {
	if e.Verb != VerbUpdated && e.Verb != VerbDeleted {
		return false
	}
	if c.index == nil {
		c.index = make(map[string]int, len(c.Entries))
		for i, existing := range c.Entries {
			c.index[existing.UUID] = i
		}
	}
	if i, ok := c.index[e.UUID]; ok {
		kept := c.Entries[i]
		if !kept.Modified.IsZero() && !e.Modified.IsZero() && e.Modified.After(kept.Modified) {
			c.Entries[i] = e
			return true
		}
		return false
	}
	c.index[e.UUID] = len(c.Entries)
	c.Entries = append(c.Entries, e)
	return true
}

// Batch returns the entries of batch n of the given size.
func (c *Changelog) Batch(n, size int) []HistoryEntry {
	start := n * size
	if start >= len(c.Entries) {
		return nil
	}
	end := start + size
	if end > len(c.Entries) {
		end = len(c.Entries)
	}
	return c.Entries[start:end]
}
