package service

import (
	"context"
	"fmt"

	"listing_syncer/internal/domain"
	"listing_syncer/internal/metrics"
)

// runDeletes pages the deleted feed and soft-deletes every known uuid.
func (s *SyncService) runDeletes(ctx context.Context, c domain.Cursor) error {
	if c.Page < 1 {
		c.Page = 1
	}

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

		page, err := s.source.DeletedIDs(ctx, domain.DeletedQuery{
			Page:   c.Page,
			After:  c.Modified,
			Before: c.Before,
		})
		if err != nil {
			return resumable(c, fmt.Errorf("fetch deleted page %d: %w", c.Page, err))
		}
		metrics.PagesFetched.WithLabelValues(string(c.Mode)).Inc()

		if len(page.UUIDs) > 0 {
			refs, err := s.records.FindByUUIDs(ctx, page.UUIDs)
			if err != nil {
				return resumable(c, fmt.Errorf("find deleted records: %w", err))
			}
			for _, uuid := range page.UUIDs {
				ref, ok := refs[uuid]
				if !ok || ref.Status == domain.StatusTrashed {
					continue
				}
				if err := s.softDelete(ctx, c.Mode, ref); err != nil {
					continue
				}
				c.Processed++
			}
		}

		if !page.HasNext || len(page.UUIDs) == 0 {
			break
		}
		c.Page++
	}

	s.logger.Info("deleted feed processed", "pages", c.Page, "deleted", c.Processed)
	return s.finish(ctx, c)
}
