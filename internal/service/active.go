package service

import (
	"context"
	"errors"
	"fmt"

	"listing_syncer/internal/domain"
	"listing_syncer/internal/metrics"
)

// runActiveSync detects hard deletes and missed listings in three phases:
// fetch the remote active set, trash local records missing from it, then
// import remote listings missing locally.
func (s *SyncService) runActiveSync(ctx context.Context, c domain.Cursor) error {
	switch c.Phase {
	case "", domain.PhaseFetch:
		return s.fetchActiveIDs(ctx, c)
	case domain.PhaseCompare, domain.PhaseImport:
		var ids []string
		found, err := s.state.Load(ctx, keyActiveIDs, &ids)
		if err != nil {
			return resumable(c, fmt.Errorf("load active ids: %w", err))
		}
		if !found {
			s.logger.Warn("active id set expired, fetching again", "phase", c.Phase)
			return s.schedule(ctx, domain.Cursor{Mode: c.Mode, Next: c.Next, StartedAt: c.StartedAt})
		}
		if c.Phase == domain.PhaseCompare {
			return s.compareActive(ctx, c, ids)
		}
		return s.importMissing(ctx, c, ids)
	default:
		return &domain.ConfigurationError{Field: "phase", Msg: fmt.Sprintf("unknown active sync phase %q", c.Phase)}
	}
}

func (s *SyncService) fetchActiveIDs(ctx context.Context, c domain.Cursor) error {
	var ids []string
	if c.Page > 1 {
		if _, err := s.state.Load(ctx, keyActiveIDs, &ids); err != nil {
			return resumable(c, fmt.Errorf("load active ids: %w", err))
		}
	} else {
		c.Page = 1
	}
	c.Phase = domain.PhaseFetch

	for first := true; ; first = false {
		if !first {
			st, err := s.state.LoadState(ctx)
			if err != nil {
				return resumable(c, fmt.Errorf("load import state: %w", err))
			}
			if st.CancelRequested {
				return s.cleanup(ctx, c.Mode)
			}
		}

		page, err := s.source.ActiveIDs(ctx, c.Page)
		if err != nil {
			return resumable(c, fmt.Errorf("fetch active ids page %d: %w", c.Page, err))
		}
		metrics.PagesFetched.WithLabelValues(string(c.Mode)).Inc()
		ids = append(ids, page.UUIDs...)

		if err := s.state.Store(ctx, keyActiveIDs, ids); err != nil {
			return resumable(c, fmt.Errorf("store active ids: %w", err))
		}

		if !page.HasNext || len(page.UUIDs) == 0 {
			break
		}
		c.Page++
	}

	if len(ids) == 0 {
		if err := s.state.Delete(ctx, keyActiveIDs); err != nil {
			return fmt.Errorf("delete active ids: %w", err)
		}
		return fmt.Errorf("reconcile active listings: %w", domain.ErrEmptyActiveSet)
	}

	s.logger.Info("active ids fetched", "count", len(ids), "pages", c.Page)

	c.Phase = domain.PhaseCompare
	c.Page = 0
	c.Offset = 0
	return s.schedule(ctx, c)
}

// compareActive checks one chunk of local published records against the remote set.
func (s *SyncService) compareActive(ctx context.Context, c domain.Cursor, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("reconcile active listings: %w", domain.ErrEmptyActiveSet)
	}

	active := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		active[id] = struct{}{}
	}

	refs, err := s.records.PublishedAfter(ctx, c.Offset, s.config.ActiveBatchSize)
	if err != nil {
		return resumable(c, fmt.Errorf("list published records: %w", err))
	}

	var trashed int
	for _, ref := range refs {
		if _, ok := active[ref.UUID]; ok {
			continue
		}
		if err := s.softDelete(ctx, c.Mode, ref); err != nil {
			continue
		}
		trashed++
	}
	c.Processed += trashed

	s.logger.Info("active ids compared", "offset", c.Offset, "checked", len(refs), "trashed", trashed)

	if len(refs) == s.config.ActiveBatchSize {
		c.Offset = refs[len(refs)-1].ID
		return s.schedule(ctx, c)
	}

	c.Phase = domain.PhaseImport
	c.Offset = 0
	c.Batch = 0
	return s.schedule(ctx, c)
}

// importMissing imports remote listings from chunk c.Batch that are not stored locally.
func (s *SyncService) importMissing(ctx context.Context, c domain.Cursor, ids []string) error {
	size := s.config.ImportBatchSize
	start := c.Batch * size
	if start >= len(ids) {
		return s.completeActive(ctx, c)
	}
	end := min(start+size, len(ids))
	chunk := ids[start:end]

	refs, err := s.records.FindByUUIDs(ctx, chunk)
	if err != nil {
		return resumable(c, fmt.Errorf("find local records: %w", err))
	}

	var imported int
	for _, uuid := range chunk {
		if _, ok := refs[uuid]; ok {
			continue
		}

		listing, err := s.source.Listing(ctx, uuid)
		if err != nil {
			var apiErr *domain.APIError
			if errors.As(err, &apiErr) && apiErr.Code == 404 {
				s.logger.Warn("active listing not found", "uuid", uuid)
				continue
			}
			return resumable(c, fmt.Errorf("fetch listing %s: %w", uuid, err))
		}

		if _, err := s.importListing(ctx, listing); err != nil {
			if !isRecordError(err) {
				return resumable(c, err)
			}
			continue
		}
		imported++
	}
	c.Processed += imported

	s.logger.Info("missing listings imported", "batch", c.Batch+1, "checked", len(chunk), "imported", imported)

	if end < len(ids) {
		c.Batch++
		return s.schedule(ctx, c)
	}
	return s.completeActive(ctx, c)
}

func (s *SyncService) completeActive(ctx context.Context, c domain.Cursor) error {
	if err := s.state.Delete(ctx, keyActiveIDs); err != nil {
		return fmt.Errorf("delete active ids: %w", err)
	}
	s.logger.Info("active sync complete", "processed", c.Processed)
	return s.finish(ctx, c)
}
