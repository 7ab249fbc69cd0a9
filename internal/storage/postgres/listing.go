package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"listing_syncer/internal/domain"
)

type ListingStore struct {
	db *sqlx.DB
}

func NewListingStore(db *sqlx.DB) *ListingStore {
	return &ListingStore{db: db}
}

func (s *ListingStore) FindByUUID(ctx context.Context, uuid string) (*domain.RecordRef, error) {
	var ref domain.RecordRef
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &ref,
		"SELECT id, uuid, status FROM listings WHERE uuid = $1", uuid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (s *ListingStore) FindByUUIDs(ctx context.Context, uuids []string) (map[string]domain.RecordRef, error) {
	result := make(map[string]domain.RecordRef, len(uuids))
	if len(uuids) == 0 {
		return result, nil
	}

	var refs []domain.RecordRef
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &refs,
		"SELECT id, uuid, status FROM listings WHERE uuid = ANY($1)", pq.Array(uuids))
	if err != nil {
		return nil, err
	}

	for _, ref := range refs {
		result[ref.UUID] = ref
	}
	return result, nil
}

// Save inserts or updates the record by uuid. On update only the keys present
// in record.Fields are overwritten.
func (s *ListingStore) Save(ctx context.Context, record *domain.Record) (int64, error) {
	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return 0, fmt.Errorf("marshal fields: %w", err)
	}
	if record.Fields == nil {
		fields = []byte("{}")
	}

	query := `
		INSERT INTO listings (uuid, title, content, status, type_name, modified, end_date, fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (uuid) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			status = EXCLUDED.status,
			type_name = EXCLUDED.type_name,
			modified = EXCLUDED.modified,
			end_date = EXCLUDED.end_date,
			fields = listings.fields || EXCLUDED.fields,
			updated_at = now()
		RETURNING id`

	var id int64
	err = GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		record.UUID,
		record.Title,
		record.Content,
		record.Status,
		record.TypeName,
		nullTime(record.Modified),
		record.EndDate,
		fields,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

func (s *ListingStore) ReplaceRelations(ctx context.Context, id int64, links []domain.RelatedLink) error {
	exec := GetExecutor(ctx, s.db)

	if _, err := exec.ExecContext(ctx, "DELETE FROM listing_relations WHERE listing_id = $1", id); err != nil {
		return err
	}

	if len(links) == 0 {
		return nil
	}

	kinds := make([]string, len(links))
	uuids := make([]string, len(links))
	related := make([]int64, len(links))
	for i, link := range links {
		kinds[i] = link.Kind
		uuids[i] = link.RelatedUUID
		related[i] = link.RelatedID
	}

	query := `
		INSERT INTO listing_relations (listing_id, kind, related_uuid, related_id, position)
		SELECT $1, x.kind, x.related_uuid, NULLIF(x.related_id, 0), x.position
		FROM unnest($2::text[], $3::text[], $4::bigint[]) WITH ORDINALITY
			AS x(kind, related_uuid, related_id, position)
		ON CONFLICT DO NOTHING`

	_, err := exec.ExecContext(ctx, query, id, pq.Array(kinds), pq.Array(uuids), pq.Array(related))
	return err
}

// SetTerms replaces the record's terms within one taxonomy.
func (s *ListingStore) SetTerms(ctx context.Context, id int64, taxonomy string, termIDs []int64) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		"DELETE FROM listing_terms WHERE listing_id = $1 AND taxonomy = $2",
		id, taxonomy,
	)
	if err != nil {
		return err
	}

	if len(termIDs) == 0 {
		return nil
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO listing_terms (listing_id, taxonomy, term_id)
		SELECT $1, $2, unnest($3::bigint[])
		ON CONFLICT DO NOTHING`,
		id, taxonomy, pq.Array(termIDs),
	)
	return err
}

func (s *ListingStore) SetStatus(ctx context.Context, id int64, status domain.Status) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE listings SET status = $2, updated_at = now() WHERE id = $1",
		id, status,
	)
	return err
}

func (s *ListingStore) SoftDelete(ctx context.Context, id int64) error {
	return s.SetStatus(ctx, id, domain.StatusTrashed)
}

// PublishedAfter returns up to limit published records with id > afterID, ordered by id.
func (s *ListingStore) PublishedAfter(ctx context.Context, afterID int64, limit int) ([]domain.RecordRef, error) {
	query := `
		SELECT id, uuid, status
		FROM listings
		WHERE status = $1 AND id > $2
		ORDER BY id
		LIMIT $3`

	var refs []domain.RecordRef
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &refs, query, domain.StatusPublished, afterID, limit)
	return refs, err
}

func (s *ListingStore) ExpiredPublished(ctx context.Context, endedBefore time.Time) ([]domain.RecordRef, error) {
	query := `
		SELECT id, uuid, status
		FROM listings
		WHERE status = $1 AND end_date IS NOT NULL AND end_date < $2
		ORDER BY id`

	var refs []domain.RecordRef
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &refs, query, domain.StatusPublished, endedBefore)
	return refs, err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
