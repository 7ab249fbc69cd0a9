package service

import (
	"context"
	"fmt"

	"listing_syncer/internal/domain"
	"listing_syncer/internal/metrics"
)

// runHistory materializes the deduplicated changelog and then replays it in
// batches, one batch per unit.
func (s *SyncService) runHistory(ctx context.Context, c domain.Cursor, st *domain.ImportState) error {
	if c.Modified.IsZero() {
		s.logger.Info("history skipped: no start date", "mode", c.Mode)
		return s.finish(ctx, c)
	}

	if c.Phase != domain.PhaseReplay {
		return s.fetchHistory(ctx, c, st)
	}

	var log domain.Changelog
	found, err := s.state.Load(ctx, keyChangelog, &log)
	if err != nil {
		return resumable(c, fmt.Errorf("load changelog: %w", err))
	}
	if !found {
		s.logger.Warn("changelog expired, fetching again", "batch", c.Batch)
		c.Phase = domain.PhaseFetch
		c.Page = 0
		c.Batch = 0
		return s.schedule(ctx, c)
	}

	return s.replayHistory(ctx, c, st, &log)
}

func (s *SyncService) fetchHistory(ctx context.Context, c domain.Cursor, st *domain.ImportState) error {
	var log domain.Changelog
	if c.Page > 1 {
		if _, err := s.state.Load(ctx, keyChangelog, &log); err != nil {
			return resumable(c, fmt.Errorf("load changelog: %w", err))
		}
	} else {
		c.Page = 1
	}
	c.Phase = domain.PhaseFetch

	for first := true; ; first = false {
		if !first {
			current, err := s.state.LoadState(ctx)
			if err != nil {
				return resumable(c, fmt.Errorf("load import state: %w", err))
			}
			if current.CancelRequested {
				return s.cleanup(ctx, c.Mode)
			}
			st = current
		}

		page, err := s.source.History(ctx, domain.HistoryQuery{
			Page:     c.Page,
			PageSize: s.config.HistoryPageSize,
			After:    c.Modified,
			Before:   c.Before,
		})
		if err != nil {
			return resumable(c, fmt.Errorf("fetch history page %d: %w", c.Page, err))
		}
		metrics.PagesFetched.WithLabelValues(string(c.Mode)).Inc()

		for _, entry := range page.Results {
			log.Add(entry)
		}

		if err := s.state.Store(ctx, keyChangelog, &log); err != nil {
			return resumable(c, fmt.Errorf("store changelog: %w", err))
		}

		if !page.HasNext || len(page.Results) == 0 {
			break
		}
		c.Page++
	}

	s.logger.Info("history fetched", "entries", len(log.Entries), "pages", c.Page)

	if len(log.Entries) == 0 {
		if err := s.state.Delete(ctx, keyChangelog); err != nil {
			return fmt.Errorf("delete changelog: %w", err)
		}
		return s.finish(ctx, c)
	}

	c.Phase = domain.PhaseReplay
	c.Batch = 0
	c.Page = 0

	if s.historyBatches(&log) > 1 {
		st.BulkHistoryActive = true
		if err := s.saveState(ctx, st); err != nil {
			return resumable(c, err)
		}
	}

	return s.replayHistory(ctx, c, st, &log)
}

func (s *SyncService) historyBatches(log *domain.Changelog) int {
	size := s.config.HistoryBatchSize
	return (len(log.Entries) + size - 1) / size
}

// replayHistory applies batch c.Batch. Updated entries only move the status;
// deleted entries soft-delete.
func (s *SyncService) replayHistory(ctx context.Context, c domain.Cursor, st *domain.ImportState, log *domain.Changelog) error {
	entries := log.Batch(c.Batch, s.config.HistoryBatchSize)

	uuids := make([]string, 0, len(entries))
	for _, e := range entries {
		uuids = append(uuids, e.UUID)
	}

	refs, err := s.records.FindByUUIDs(ctx, uuids)
	if err != nil {
		return resumable(c, fmt.Errorf("find history records: %w", err))
	}

	var changed, deleted int
	for _, e := range entries {
		ref, ok := refs[e.UUID]
		if !ok {
			continue
		}

		switch e.Verb {
		case domain.VerbUpdated:
			if ref.Status == domain.StatusTrashed {
				continue
			}
			status := domain.DeriveStatus(e.IsApproved, e.EndDate, s.config.ApprovedOnly(), s.now())
			if status == ref.Status {
				continue
			}
			if err := s.setStatus(ctx, c.Mode, ref, status); err != nil {
				continue
			}
			changed++
		case domain.VerbDeleted:
			if ref.Status == domain.StatusTrashed {
				continue
			}
			if err := s.softDelete(ctx, c.Mode, ref); err != nil {
				continue
			}
			deleted++
		}
	}

	total := s.historyBatches(log)
	s.logger.Info("history batch replayed",
		"batch", c.Batch+1,
		"batches", total,
		"entries", len(entries),
		"status_changed", changed,
		"deleted", deleted,
	)
	c.Processed += changed + deleted

	if c.Batch+1 < total {
		c.Batch++
		return s.schedule(ctx, c)
	}

	if err := s.state.Delete(ctx, keyChangelog); err != nil {
		return fmt.Errorf("delete changelog: %w", err)
	}
	if st.BulkHistoryActive {
		st.BulkHistoryActive = false
		if err := s.saveState(ctx, st); err != nil {
			return err
		}
	}
	s.logger.Info("history complete", "entries", len(log.Entries))

	return s.finish(ctx, c)
}

func (s *SyncService) setStatus(ctx context.Context, mode domain.Mode, ref domain.RecordRef, status domain.Status) error {
	if err := s.records.SetStatus(ctx, ref.ID, status); err != nil {
		return s.persistenceError(ref.UUID, ref.ID, "set status", err)
	}
	metrics.RecordsProcessed.WithLabelValues(string(mode), "status").Inc()
	s.logger.Info("listing status changed", "mode", mode, "uuid", ref.UUID, "record_id", ref.ID, "from", ref.Status, "to", status)

	s.publish(ctx, &domain.ListingEvent{
		Type:     domain.EventStatus,
		RecordID: ref.ID,
		UUID:     ref.UUID,
		Status:   status,
	})
	return nil
}

func (s *SyncService) softDelete(ctx context.Context, mode domain.Mode, ref domain.RecordRef) error {
	if err := s.records.SoftDelete(ctx, ref.ID); err != nil {
		return s.persistenceError(ref.UUID, ref.ID, "soft delete", err)
	}
	metrics.RecordsProcessed.WithLabelValues(string(mode), "deleted").Inc()
	s.logger.Info("listing deleted", "mode", mode, "uuid", ref.UUID, "record_id", ref.ID)

	s.publish(ctx, &domain.ListingEvent{
		Type:     domain.EventDeleted,
		RecordID: ref.ID,
		UUID:     ref.UUID,
		Status:   domain.StatusTrashed,
	})
	return nil
}
