package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"listing_syncer/internal/domain"
	"listing_syncer/internal/metrics"
)

// withDefaults fills paging parameters a cursor did not carry.
func (s *SyncService) withDefaults(c domain.Cursor) domain.Cursor {
	if c.Page < 1 {
		c.Page = 1
	}
	if c.PageSize < 1 {
		c.PageSize = s.config.PageSize
		if !c.Modified.IsZero() && s.now().Sub(c.Modified) > s.config.LongLookback {
			c.PageSize = s.config.LongLookbackPageSize
		}
	}
	if c.ChapterSize < 1 {
		c.ChapterSize = s.config.ChapterSize
	}
	if c.Type == "" {
		switch c.Mode {
		case domain.ModeRegions:
			c.Type = "Regions"
		case domain.ModeCities:
			c.Type = "Cities"
		}
	}
	return c
}

// importListings pages through the listings feed. Every chapter-th page hands
// the continuation to the scheduler; other pages continue in-process.
func (s *SyncService) importListings(ctx context.Context, c domain.Cursor, st *domain.ImportState) error {
	c = s.withDefaults(c)
	logger := s.logger.With("mode", c.Mode)

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

		page, err := s.source.Listings(ctx, domain.ListingQuery{
			Page:     c.Page,
			PageSize: c.PageSize,
			Type:     c.Type,
			Modified: c.Modified,
			Filters:  s.config.Filters,
		})
		if err != nil {
			return resumable(c, fmt.Errorf("fetch listings page %d: %w", c.Page, err))
		}
		metrics.PagesFetched.WithLabelValues(string(c.Mode)).Inc()

		totalPages := (page.Count + c.PageSize - 1) / c.PageSize
		if !c.Bulk && totalPages > c.ChapterSize {
			c.Bulk = true
			st.BulkActive = true
			metrics.BulkActive.Set(1)
			logger.Info("bulk import started", "count", page.Count, "pages", totalPages)
		}

		stats, err := s.processListings(ctx, c, page.Results)
		if err != nil {
			return resumable(c, err)
		}
		if page.Malformed > 0 {
			stats.Errors += page.Malformed
			metrics.RecordsProcessed.WithLabelValues(string(c.Mode), "error").Add(float64(page.Malformed))
		}
		c.Processed += stats.New + stats.Updated

		logger.Info("page processed",
			"page", c.Page,
			"pages", totalPages,
			"fetched", stats.Fetched,
			"new", stats.New,
			"updated", stats.Updated,
			"skipped", stats.Skipped,
			"errors", stats.Errors,
		)

		st.Mode = c.Mode
		st.Page = c.Page
		if err := s.saveState(ctx, st); err != nil {
			return resumable(c, err)
		}

		if c.Page >= totalPages || len(page.Results)+page.Malformed == 0 {
			return s.completeListings(ctx, c, st)
		}

		if c.Page%c.ChapterSize == 0 {
			next := c
			next.Page++
			logger.Info("chapter complete, scheduling continuation", "next_page", next.Page)
			return s.schedule(ctx, next)
		}
		c.Page++
	}
}

func (s *SyncService) completeListings(ctx context.Context, c domain.Cursor, st *domain.ImportState) error {
	if c.Bulk {
		st.BulkActive = false
		if err := s.saveState(ctx, st); err != nil {
			return err
		}
		metrics.BulkActive.Set(0)
		s.logger.Info("bulk import complete", "mode", c.Mode, "processed", c.Processed)
	} else {
		s.logger.Info("import complete", "mode", c.Mode, "processed", c.Processed)
	}

	return s.finish(ctx, c)
}

// processListings upserts one page. Translation and persistence failures are
// logged and skipped; anything else aborts the page.
func (s *SyncService) processListings(ctx context.Context, c domain.Cursor, listings []domain.Listing) (*domain.SyncStats, error) {
	stats := &domain.SyncStats{Mode: c.Mode, Page: c.Page, Fetched: len(listings)}
	mode := string(c.Mode)

	for i := range listings {
		listing := &listings[i]

		if c.SkipPlaces && c.Mode == domain.ModePOIs && isPlace(listing.Type.Name) {
			stats.Skipped++
			metrics.RecordsProcessed.WithLabelValues(mode, "skipped").Inc()
			continue
		}

		created, err := s.importListing(ctx, listing)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if !isRecordError(err) {
				return stats, err
			}
			stats.Errors++
			metrics.RecordsProcessed.WithLabelValues(mode, "error").Inc()
			continue
		}

		if created {
			stats.New++
			metrics.RecordsProcessed.WithLabelValues(mode, "created").Inc()
		} else {
			stats.Updated++
			metrics.RecordsProcessed.WithLabelValues(mode, "updated").Inc()
		}
	}

	return stats, nil
}

// importListing translates and upserts a single listing.
func (s *SyncService) importListing(ctx context.Context, listing *domain.Listing) (bool, error) {
	record, err := s.translator.Translate(ctx, listing)
	if err != nil {
		var trErr *domain.TranslationError
		if errors.As(err, &trErr) {
			s.logger.Error("failed to translate listing", "uuid", listing.UUID, "error", err)
		}
		return false, err
	}

	_, created, err := s.upsert(ctx, record)
	return created, err
}

// importSingle imports one listing by uuid.
func (s *SyncService) importSingle(ctx context.Context, c domain.Cursor) error {
	listing, err := s.source.Listing(ctx, c.UUID)
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			s.logger.Error("listing not found", "uuid", c.UUID)
			return s.finish(ctx, c)
		}
		if isRecordError(err) {
			s.logger.Error("failed to decode listing", "uuid", c.UUID, "error", err)
			return s.finish(ctx, c)
		}
		return resumable(c, fmt.Errorf("fetch listing %s: %w", c.UUID, err))
	}

	created, err := s.importListing(ctx, listing)
	if err != nil && !isRecordError(err) {
		return resumable(c, err)
	}
	if err == nil {
		s.logger.Info("listing imported", "uuid", c.UUID, "created", created)
	}

	return s.finish(ctx, c)
}

func isPlace(typeName string) bool {
	t := strings.ToLower(typeName)
	return t == "regions" || t == "cities"
}

// isRecordError reports failures scoped to one record.
func isRecordError(err error) bool {
	var trErr *domain.TranslationError
	var pErr *domain.PersistenceError
	return errors.As(err, &trErr) || errors.As(err, &pErr)
}
