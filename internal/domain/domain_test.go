package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	twoDaysAgo := now.Add(-48 * time.Hour)
	twelveHoursAgo := now.Add(-12 * time.Hour)

	tests := []struct {
		name         string
		approval     string
		endDate      *time.Time
		approvedOnly bool
		want         Status
	}{
		{"approved", "app", nil, false, StatusPublished},
		{"approved in approved-only mode", "app", nil, true, StatusPublished},
		{"general", "gen", nil, false, StatusPublished},
		{"general in approved-only mode", "gen", nil, true, StatusDraft},
		{"pending", "pen", nil, false, StatusPublished},
		{"pending in approved-only mode", "pen", nil, true, StatusDraft},
		{"upper case code", "APP", nil, false, StatusPublished},
		{"blank", "", nil, false, StatusDraft},
		{"unknown", "rej", nil, false, StatusDraft},
		{"expired two days ago", "app", &twoDaysAgo, false, StatusDraft},
		{"ended within grace window", "app", &twelveHoursAgo, false, StatusPublished},
		{"ended within grace window but pending", "pen", &twelveHoursAgo, true, StatusDraft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.approval, tt.endDate, tt.approvedOnly, now))
		})
	}
}

func TestClassifyRelation(t *testing.T) {
	assert.Equal(t, RelationPrimaryRegion, ClassifyRelation("Primary Region"))
	assert.Equal(t, RelationPrimaryCity, ClassifyRelation("Primary City"))
	for _, name := range []string{"Additional City", "Additional Region", "Nearby Towns & Cities", "Another Listing"} {
		assert.Equal(t, RelationRelatedListing, ClassifyRelation(name), name)
	}
	assert.Equal(t, RelationOther, ClassifyRelation("Trail Head"))
}

func TestChangelog_FirstSeenWins(t *testing.T) {
	var log Changelog

	assert.True(t, log.Add(HistoryEntry{UUID: "A", Verb: VerbUpdated}))
	assert.False(t, log.Add(HistoryEntry{UUID: "A", Verb: VerbDeleted}))

	require.Len(t, log.Entries, 1)
	assert.Equal(t, VerbUpdated, log.Entries[0].Verb)
}

func TestChangelog_IgnoresOtherVerbs(t *testing.T) {
	var log Changelog

	assert.False(t, log.Add(HistoryEntry{UUID: "A", Verb: "created"}))
	assert.True(t, log.Add(HistoryEntry{UUID: "A", Verb: VerbDeleted}))

	require.Len(t, log.Entries, 1)
	assert.Equal(t, VerbDeleted, log.Entries[0].Verb)
}

func TestChangelog_NewerModifiedReplaces(t *testing.T) {
	older := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	var log Changelog
	log.Add(HistoryEntry{UUID: "A", Verb: VerbUpdated, Modified: older})
	assert.True(t, log.Add(HistoryEntry{UUID: "A", Verb: VerbDeleted, Modified: newer}))
	assert.False(t, log.Add(HistoryEntry{UUID: "A", Verb: VerbUpdated, Modified: older}))

	require.Len(t, log.Entries, 1)
	assert.Equal(t, VerbDeleted, log.Entries[0].Verb)
}

func TestChangelog_IndexRebuiltAfterDecode(t *testing.T) {
	log := Changelog{Entries: []HistoryEntry{{UUID: "A", Verb: VerbUpdated}}}

	assert.False(t, log.Add(HistoryEntry{UUID: "A", Verb: VerbDeleted}))
	assert.True(t, log.Add(HistoryEntry{UUID: "B", Verb: VerbDeleted}))
	assert.Len(t, log.Entries, 2)
}

func TestChangelog_Batch(t *testing.T) {
	var log Changelog
	for i := 0; i < 7; i++ {
		log.Add(HistoryEntry{UUID: fmt.Sprintf("u%d", i), Verb: VerbUpdated})
	}

	assert.Len(t, log.Batch(0, 3), 3)
	assert.Len(t, log.Batch(2, 3), 1)
	assert.Nil(t, log.Batch(3, 3))
}

func TestCursor_Advance(t *testing.T) {
	started := time.Now()
	c := Cursor{
		Mode:       ModeCities,
		Page:       4,
		Next:       []Mode{ModePOIs, ModeHistory},
		SkipPlaces: true,
		StartedAt:  started,
		MarkSynced: true,
	}

	next, ok := c.Advance()
	require.True(t, ok)
	assert.Equal(t, ModePOIs, next.Mode)
	assert.Equal(t, []Mode{ModeHistory}, next.Next)
	assert.Zero(t, next.Page)
	assert.True(t, next.SkipPlaces)
	assert.True(t, next.MarkSynced)
	assert.Equal(t, started, next.StartedAt)

	last, ok := next.Advance()
	require.True(t, ok)
	assert.Equal(t, ModeHistory, last.Mode)

	_, ok = last.Advance()
	assert.False(t, ok)
}

func TestModeFamily(t *testing.T) {
	assert.Equal(t, FamilyHistory, ModeHistory.Family())
	assert.Equal(t, FamilyActive, ModeActiveSync.Family())
	assert.Equal(t, FamilyImport, ModePOIs.Family())
	assert.True(t, ModePOIsOnly.Valid())
	assert.False(t, Mode("everything").Valid())
}

func TestErrors(t *testing.T) {
	assert.ErrorIs(t, fmt.Errorf("fetch page: %w", &APIError{Code: 401}), ErrAuthExpired)
	assert.False(t, errors.Is(&APIError{Code: 500}, ErrAuthExpired))
	assert.True(t, IsFatal(fmt.Errorf("run: %w", &ConfigurationError{Field: "api.username"})))
	assert.False(t, IsFatal(&TransportError{Op: "GET", Err: errors.New("reset")}))
}
