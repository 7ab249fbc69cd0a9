package service

import (
	"context"
	"fmt"

	"listing_syncer/internal/domain"
)

// Attributes whose choices are imported as listing type terms.
var choiceAttributes = []int64{30, 77}

var activitiesParent = domain.TermValue{Name: "Activities", Path: "/listings-activities/parent/"}

// importTerms seeds the type and glocats taxonomies. Every step goes through
// the resolver, so rerunning it after a failure converges.
func (s *SyncService) importTerms(ctx context.Context, c domain.Cursor) error {
	var count int

	collections, err := s.source.Collections(ctx)
	if err != nil {
		return resumable(c, fmt.Errorf("fetch collections: %w", err))
	}
	for _, col := range collections {
		parentID, err := s.terms.Resolve(ctx, domain.TaxonomyType, col.Term, 0)
		if err != nil {
			return resumable(c, fmt.Errorf("resolve collection %q: %w", col.Term.Name, err))
		}
		n, err := s.resolveChildren(ctx, domain.TaxonomyType, col.Types, parentID)
		if err != nil {
			return resumable(c, err)
		}
		count += n + 1
	}

	activities, err := s.source.Activities(ctx)
	if err != nil {
		return resumable(c, fmt.Errorf("fetch activities: %w", err))
	}
	parentID, err := s.terms.Resolve(ctx, domain.TaxonomyType, activitiesParent, 0)
	if err != nil {
		return resumable(c, fmt.Errorf("resolve activities parent: %w", err))
	}
	n, err := s.resolveChildren(ctx, domain.TaxonomyType, activities, parentID)
	if err != nil {
		return resumable(c, err)
	}
	count += n + 1

	for _, id := range choiceAttributes {
		attr, choices, err := s.source.AttributeChoices(ctx, id)
		if err != nil {
			return resumable(c, fmt.Errorf("fetch attribute %d: %w", id, err))
		}
		parentID, err := s.terms.Resolve(ctx, domain.TaxonomyType, attr, 0)
		if err != nil {
			return resumable(c, fmt.Errorf("resolve attribute %d: %w", id, err))
		}
		n, err := s.resolveChildren(ctx, domain.TaxonomyType, choices, parentID)
		if err != nil {
			return resumable(c, err)
		}
		count += n + 1
	}

	glocats, err := s.source.GlobalCategories(ctx)
	if err != nil {
		return resumable(c, fmt.Errorf("fetch global categories: %w", err))
	}
	n, err = s.resolveChildren(ctx, domain.TaxonomyGlocats, glocats, 0)
	if err != nil {
		return resumable(c, err)
	}
	count += n

	s.logger.Info("terms import complete", "terms", count)
	return s.finish(ctx, c)
}

func (s *SyncService) resolveChildren(ctx context.Context, taxonomy string, values []domain.TermValue, parentID int64) (int, error) {
	for _, v := range values {
		if _, err := s.terms.Resolve(ctx, taxonomy, v, parentID); err != nil {
			return 0, fmt.Errorf("resolve %s term %q: %w", taxonomy, v.Name, err)
		}
	}
	return len(values), nil
}
