package service

import (
	"context"
	"fmt"
	"sort"

	"listing_syncer/internal/domain"
)

// Fields written from resolved relations.
const (
	fieldRegion  = "region"
	fieldCity    = "city"
	fieldRelated = "related_listings"
)

// upsert writes record to the content store and returns its local id and
// whether it was created. Every failure comes back as *domain.PersistenceError.
func (s *SyncService) upsert(ctx context.Context, record *domain.Record) (int64, bool, error) {
	existing, err := s.records.FindByUUID(ctx, record.UUID)
	if err != nil {
		return 0, false, s.persistenceError(record.UUID, 0, "find existing", err)
	}

	var recordID int64
	if existing != nil {
		recordID = existing.ID
	}

	termIDs, err := s.resolveTerms(ctx, record)
	if err != nil {
		return 0, false, s.persistenceError(record.UUID, recordID, "resolve terms", err)
	}
	record.TermIDs = termIDs

	if err := s.resolveRelated(ctx, record); err != nil {
		return 0, false, s.persistenceError(record.UUID, recordID, "resolve related", err)
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		id, err := s.records.Save(txCtx, record)
		if err != nil {
			return fmt.Errorf("save record: %w", err)
		}
		recordID = id

		if err := s.records.ReplaceRelations(txCtx, id, record.Related); err != nil {
			return fmt.Errorf("replace relations: %w", err)
		}

		taxonomies := make([]string, 0, len(termIDs))
		for taxonomy := range termIDs {
			taxonomies = append(taxonomies, taxonomy)
		}
		sort.Strings(taxonomies)

		for _, taxonomy := range taxonomies {
			if err := s.records.SetTerms(txCtx, id, taxonomy, termIDs[taxonomy]); err != nil {
				return fmt.Errorf("set %s terms: %w", taxonomy, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, false, s.persistenceError(record.UUID, recordID, "upsert", err)
	}
	record.ID = recordID

	created := existing == nil
	event := &domain.ListingEvent{
		Type:        domain.EventUpdated,
		RecordID:    recordID,
		UUID:        record.UUID,
		Title:       record.Title,
		ListingType: record.TypeName,
		Status:      record.Status,
		Modified:    record.Modified,
	}
	if created {
		event.Type = domain.EventCreated
	}
	s.publish(ctx, event)

	s.logger.Debug("listing upserted", "uuid", record.UUID, "record_id", recordID, "created", created, "status", record.Status)

	return recordID, created, nil
}

// resolveTerms resolves category and taxonomy field values to term ids.
// Taxonomies present with no values map to an empty list so prior terms are cleared.
func (s *SyncService) resolveTerms(ctx context.Context, record *domain.Record) (map[string][]int64, error) {
	out := make(map[string][]int64, len(record.Categories)+len(record.TermFields))

	resolve := func(taxonomy string, values []domain.TermValue) error {
		ids, err := s.terms.ResolveAll(ctx, taxonomy, values)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", taxonomy, err)
		}
		if _, ok := out[taxonomy]; !ok {
			out[taxonomy] = []int64{}
		}
		out[taxonomy] = append(out[taxonomy], ids...)
		return nil
	}

	for taxonomy, values := range record.Categories {
		if err := resolve(taxonomy, values); err != nil {
			return nil, err
		}
	}
	for field, values := range record.TermFields {
		if err := resolve(field, values); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// resolveRelated fills local ids for related listings that are already
// imported and writes the region, city and related fields. The fields are
// always written so a dropped relation does not linger.
func (s *SyncService) resolveRelated(ctx context.Context, record *domain.Record) error {
	if record.Fields == nil {
		record.Fields = make(map[string]any)
	}
	record.Fields[fieldRegion] = nil
	record.Fields[fieldCity] = nil
	record.Fields[fieldRelated] = []int64{}

	if len(record.Related) == 0 {
		return nil
	}

	uuids := make([]string, 0, len(record.Related))
	for _, link := range record.Related {
		uuids = append(uuids, link.RelatedUUID)
	}

	refs, err := s.records.FindByUUIDs(ctx, uuids)
	if err != nil {
		return err
	}

	related := []int64{}
	for i := range record.Related {
		link := &record.Related[i]
		ref, ok := refs[link.RelatedUUID]
		if !ok {
			continue
		}
		link.RelatedID = ref.ID

		switch link.Kind {
		case domain.LinkRegion:
			record.Fields[fieldRegion] = ref.ID
		case domain.LinkCity:
			record.Fields[fieldCity] = ref.ID
		case domain.LinkRelated:
			related = append(related, ref.ID)
		}
	}
	record.Fields[fieldRelated] = related

	return nil
}

func (s *SyncService) persistenceError(uuid string, recordID int64, op string, err error) error {
	s.logger.Error("failed to persist listing", "uuid", uuid, "record_id", recordID, "op", op, "error", err)
	return &domain.PersistenceError{UUID: uuid, RecordID: recordID, Op: op, Err: err}
}
