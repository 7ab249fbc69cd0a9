package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"listing_syncer/internal/config"
	"listing_syncer/internal/domain"
	"listing_syncer/internal/metrics"
)

// State keys for data shared between units of one run.
const (
	keyChangelog = "history_changelog"
	keyActiveIDs = "active_ids"
)

type SyncService struct {
	source     Source
	translator Translator
	terms      TermResolver
	records    RecordStore
	fields     FieldStore
	syncState  SyncStateStore
	state      StateStore
	tasks      TaskScheduler
	txManager  TransactionManager
	publisher  Publisher
	logger     *slog.Logger
	config     config.SyncConfig
	now        func() time.Time
}

func NewSyncService(
	source Source,
	translator Translator,
	terms TermResolver,
	records RecordStore,
	fields FieldStore,
	syncState SyncStateStore,
	state StateStore,
	tasks TaskScheduler,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		source:     source,
		translator: translator,
		terms:      terms,
		records:    records,
		fields:     fields,
		syncState:  syncState,
		state:      state,
		tasks:      tasks,
		txManager:  txManager,
		publisher:  publisher,
		logger:     logger.With("source", source.ID()),
		config:     cfg,
		now:        time.Now,
	}
}

// StartOptions parameterise a manually triggered run.
type StartOptions struct {
	Modified time.Time
	Before   time.Time
	UUID     string
	PageSize int
}

// Start enqueues the first unit of a run and returns. All further progress
// happens in the worker.
func (s *SyncService) Start(ctx context.Context, mode domain.Mode, opts StartOptions) error {
	if !mode.Valid() {
		return &domain.ConfigurationError{Field: "mode", Msg: fmt.Sprintf("unknown mode %q", mode)}
	}
	if mode == domain.ModePOI && opts.UUID == "" {
		return &domain.ConfigurationError{Field: "uuid", Msg: "required for poi mode"}
	}

	st, err := s.state.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load import state: %w", err)
	}
	if st.CancelRequested {
		if err := s.cleanup(ctx, mode); err != nil {
			return err
		}
	}

	c := domain.Cursor{
		Mode:      mode,
		Modified:  opts.Modified,
		Before:    opts.Before,
		UUID:      opts.UUID,
		PageSize:  opts.PageSize,
		StartedAt: s.now(),
	}

	switch mode {
	case domain.ModePOIs:
		c.Mode = domain.ModeTerms
		c.Next = []domain.Mode{domain.ModeRegions, domain.ModeCities, domain.ModePOIs}
		c.SkipPlaces = true
		c.MarkSynced = true
	case domain.ModePOIsOnly:
		c.Next = []domain.Mode{domain.ModeHistory}
		c.MarkSynced = true
	}

	s.logger.Info("import requested", "mode", mode, "first_unit", c.Mode, "modified", opts.Modified)

	return s.schedule(ctx, c)
}

// Incremental enqueues pois(modified=last sync) followed by history(after=last sync).
// It defers to a bulk run or pending import or history units, and does nothing
// before a first full import.
func (s *SyncService) Incremental(ctx context.Context) error {
	st, err := s.state.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load import state: %w", err)
	}
	if st.CancelRequested {
		return s.cleanup(ctx, domain.ModePOIsOnly)
	}
	if st.BulkActive || st.BulkHistoryActive {
		s.logger.Info("incremental sync skipped: bulk run active",
			"bulk_import", st.BulkActive,
			"bulk_history", st.BulkHistoryActive,
		)
		return nil
	}

	// The chain ends in a history unit, which shares one changelog key with
	// any history replay still pending.
	for _, family := range []string{domain.FamilyImport, domain.FamilyHistory} {
		next, err := s.tasks.NextScheduled(ctx, family)
		if err != nil {
			return fmt.Errorf("check scheduled %s units: %w", family, err)
		}
		if next != nil {
			s.logger.Info("incremental sync skipped: unit already scheduled", "family", family, "next_run", *next)
			return nil
		}
	}

	sync, err := s.syncState.Get(ctx, s.source.ID())
	if err != nil {
		return fmt.Errorf("get sync state: %w", err)
	}
	if sync.LastSyncedAt.IsZero() {
		s.logger.Info("incremental sync skipped: no full import has completed yet")
		return nil
	}

	s.logger.Info("starting incremental sync", "modified", sync.LastSyncedAt)

	return s.schedule(ctx, domain.Cursor{
		Mode:       domain.ModePOIsOnly,
		Modified:   sync.LastSyncedAt,
		Next:       []domain.Mode{domain.ModeHistory},
		MarkSynced: true,
		StartedAt:  s.now(),
	})
}

// Reconcile enqueues an active-id reconciliation unless one is already pending.
func (s *SyncService) Reconcile(ctx context.Context) error {
	next, err := s.tasks.NextScheduled(ctx, domain.FamilyActive)
	if err != nil {
		return fmt.Errorf("check scheduled reconciliation: %w", err)
	}
	if next != nil {
		s.logger.Info("reconciliation skipped: already scheduled", "next_run", *next)
		return nil
	}
	return s.Start(ctx, domain.ModeActiveSync, StartOptions{})
}

// Run executes one unit of work.
func (s *SyncService) Run(ctx context.Context, c domain.Cursor) error {
	st, err := s.state.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load import state: %w", err)
	}
	if st.CancelRequested {
		return s.cleanup(ctx, c.Mode)
	}

	s.translator.Reset()
	s.terms.Reset()

	switch c.Mode {
	case domain.ModeTerms:
		return s.importTerms(ctx, c)
	case domain.ModeRegions, domain.ModeCities, domain.ModePOIs, domain.ModePOIsOnly:
		return s.importListings(ctx, c, st)
	case domain.ModePOI:
		return s.importSingle(ctx, c)
	case domain.ModeHistory:
		return s.runHistory(ctx, c, st)
	case domain.ModeDeletes:
		return s.runDeletes(ctx, c)
	case domain.ModeActiveSync:
		return s.runActiveSync(ctx, c)
	case domain.ModeFields:
		return s.generateFields(ctx, c)
	default:
		return &domain.ConfigurationError{Field: "mode", Msg: fmt.Sprintf("unknown mode %q", c.Mode)}
	}
}

// Cancel raises the cancellation flag. Units observe it at entry and clean up.
func (s *SyncService) Cancel(ctx context.Context) error {
	st, err := s.state.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load import state: %w", err)
	}

	st.CancelRequested = true
	st.UpdatedAt = s.now()
	if err := s.state.SaveState(ctx, st); err != nil {
		return fmt.Errorf("save import state: %w", err)
	}

	s.logger.Info("cancellation requested")
	return nil
}

// NoBulk clears the bulk flags without touching scheduled work.
func (s *SyncService) NoBulk(ctx context.Context) error {
	st, err := s.state.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load import state: %w", err)
	}

	st.BulkActive = false
	st.BulkHistoryActive = false
	st.UpdatedAt = s.now()
	if err := s.state.SaveState(ctx, st); err != nil {
		return fmt.Errorf("save import state: %w", err)
	}
	metrics.BulkActive.Set(0)

	s.logger.Info("bulk flags cleared")
	return nil
}

// Status is a snapshot of the import flags and queue.
type Status struct {
	State        domain.ImportState    `json:"state"`
	LastSyncedAt time.Time             `json:"last_synced_at"`
	TotalSynced  int64                 `json:"total_synced"`
	NextRun      map[string]*time.Time `json:"next_run"`
}

func (s *SyncService) Status(ctx context.Context) (*Status, error) {
	st, err := s.state.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load import state: %w", err)
	}

	sync, err := s.syncState.Get(ctx, s.source.ID())
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}

	status := &Status{
		State:        *st,
		LastSyncedAt: sync.LastSyncedAt,
		TotalSynced:  sync.TotalSynced,
		NextRun:      make(map[string]*time.Time, len(domain.Families)),
	}
	for _, family := range domain.Families {
		next, err := s.tasks.NextScheduled(ctx, family)
		if err != nil {
			return nil, fmt.Errorf("check scheduled %s: %w", family, err)
		}
		status.NextRun[family] = next
	}

	return status, nil
}

// cleanup is the single cancellation path: it drops every pending unit, the
// persisted cursors and all flags.
func (s *SyncService) cleanup(ctx context.Context, mode domain.Mode) error {
	var errs []error

	for _, family := range domain.Families {
		if _, err := s.tasks.UnscheduleAll(ctx, family); err != nil {
			errs = append(errs, fmt.Errorf("unschedule %s: %w", family, err))
		}
	}
	if err := s.state.Delete(ctx, keyChangelog, keyActiveIDs); err != nil {
		errs = append(errs, fmt.Errorf("delete cursors: %w", err))
	}
	if err := s.state.SaveState(ctx, &domain.ImportState{UpdatedAt: s.now()}); err != nil {
		errs = append(errs, fmt.Errorf("reset import state: %w", err))
	}
	metrics.BulkActive.Set(0)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.logger.Warn("import cancelled", "mode", mode)
	return nil
}

// finish closes one mode: the next mode of the chain is scheduled, and a
// completed chain records the sync timestamp when asked to.
func (s *SyncService) finish(ctx context.Context, c domain.Cursor) error {
	if next, ok := c.Advance(); ok {
		s.logger.Info("mode complete, scheduling next", "mode", c.Mode, "next", next.Mode)
		return s.schedule(ctx, next)
	}
	if c.MarkSynced {
		return s.markSynced(ctx, c)
	}
	return nil
}

func (s *SyncService) markSynced(ctx context.Context, c domain.Cursor) error {
	state, err := s.syncState.Get(ctx, s.source.ID())
	if err != nil {
		return fmt.Errorf("get sync state: %w", err)
	}

	state.SourceID = s.source.ID()
	state.LastSyncedAt = c.StartedAt
	state.TotalSynced += int64(c.Processed)

	if err := s.syncState.Update(ctx, state); err != nil {
		return fmt.Errorf("update sync state: %w", err)
	}

	s.logger.Info("sync completed", "last_synced_at", c.StartedAt)
	return nil
}

func (s *SyncService) schedule(ctx context.Context, c domain.Cursor) error {
	if err := s.tasks.Schedule(ctx, c.Mode.Family(), c); err != nil {
		return fmt.Errorf("schedule %s: %w", c.Mode, err)
	}
	return nil
}

// saveState persists st without dropping a cancellation raised while the unit ran.
func (s *SyncService) saveState(ctx context.Context, st *domain.ImportState) error {
	current, err := s.state.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load import state: %w", err)
	}
	if current.CancelRequested {
		st.CancelRequested = true
	}

	st.UpdatedAt = s.now()
	if err := s.state.SaveState(ctx, st); err != nil {
		return fmt.Errorf("save import state: %w", err)
	}
	return nil
}

func (s *SyncService) publish(ctx context.Context, event *domain.ListingEvent) {
	if s.publisher == nil {
		return
	}
	event.OccurredAt = s.now()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish listing event", "uuid", event.UUID, "type", event.Type, "error", err)
	}
}

// resumable marks a unit failure with the cursor a retry must start from.
// Configuration failures stay fatal and are returned as is.
func resumable(c domain.Cursor, err error) error {
	if err == nil || domain.IsFatal(err) {
		return err
	}
	return &domain.ResumableError{Cursor: c, Err: err}
}
