package service

import (
	"context"
	"fmt"

	"listing_syncer/internal/domain"
)

// Expire moves published listings whose end date passed more than a day ago to draft.
func (s *SyncService) Expire(ctx context.Context) (int, error) {
	refs, err := s.records.ExpiredPublished(ctx, s.now().Add(-domain.ExpiryGrace))
	if err != nil {
		return 0, fmt.Errorf("find expired listings: %w", err)
	}

	var expired int
	for _, ref := range refs {
		if err := s.setStatus(ctx, "expire", ref, domain.StatusDraft); err != nil {
			continue
		}
		expired++
	}

	s.logger.Info("expired listings retired", "found", len(refs), "expired", expired)
	return expired, nil
}
