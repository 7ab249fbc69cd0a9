package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"listing_syncer/internal/domain"
)

type StateStoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *StateStore
	close func() error
}

func (s *StateStoreTestSuite) SetupTest() {
	s.ctx = context.Background()

	db, err := Open("")
	s.Require().NoError(err)
	s.close = db.Close
	s.store = NewStateStore(db, time.Hour)
}

func (s *StateStoreTestSuite) TearDownTest() {
	s.NoError(s.close())
}

func TestStateStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StateStoreTestSuite))
}

func (s *StateStoreTestSuite) TestLoadState_EmptyIsZero() {
	st, err := s.store.LoadState(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.ImportState{}, *st)
}

func (s *StateStoreTestSuite) TestSaveState_RoundTrip() {
	updated := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	err := s.store.SaveState(s.ctx, &domain.ImportState{
		BulkActive: true,
		Mode:       domain.ModePOIs,
		Page:       5,
		UpdatedAt:  updated,
	})
	s.Require().NoError(err)

	st, err := s.store.LoadState(s.ctx)
	s.Require().NoError(err)
	s.True(st.BulkActive)
	s.False(st.CancelRequested)
	s.Equal(domain.ModePOIs, st.Mode)
	s.Equal(5, st.Page)
	s.True(updated.Equal(st.UpdatedAt))
}

func (s *StateStoreTestSuite) TestChangelogSurvivesStore() {
	var log domain.Changelog
	log.Add(domain.HistoryEntry{UUID: "a", Verb: domain.VerbUpdated, IsApproved: "app"})
	log.Add(domain.HistoryEntry{UUID: "b", Verb: domain.VerbDeleted})

	s.Require().NoError(s.store.Store(s.ctx, "changelog", &log))

	var loaded domain.Changelog
	found, err := s.store.Load(s.ctx, "changelog", &loaded)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(log.Entries, loaded.Entries)
	s.False(loaded.Add(domain.HistoryEntry{UUID: "a", Verb: domain.VerbDeleted}))
}

func (s *StateStoreTestSuite) TestDelete() {
	s.Require().NoError(s.store.Store(s.ctx, "a", []string{"x"}))
	s.Require().NoError(s.store.Store(s.ctx, "b", []string{"y"}))

	s.Require().NoError(s.store.Delete(s.ctx, "a", "b", "missing"))

	var ids []string
	found, err := s.store.Load(s.ctx, "a", &ids)
	s.NoError(err)
	s.False(found)
	found, err = s.store.Load(s.ctx, "b", &ids)
	s.NoError(err)
	s.False(found)
}

func (s *StateStoreTestSuite) TestEntriesExpire() {
	db, err := Open("")
	s.Require().NoError(err)
	defer db.Close()

	store := NewStateStore(db, time.Second)
	s.Require().NoError(store.Store(s.ctx, "ids", []string{"x"}))

	s.Eventually(func() bool {
		var ids []string
		found, err := store.Load(s.ctx, "ids", &ids)
		return err == nil && !found
	}, 5*time.Second, 100*time.Millisecond)
}
