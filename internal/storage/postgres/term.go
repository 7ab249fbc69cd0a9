package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"listing_syncer/internal/domain"
)

type TermStore struct {
	db *sqlx.DB
}

func NewTermStore(db *sqlx.DB) *TermStore {
	return &TermStore{db: db}
}

const termColumns = `id, taxonomy, name, COALESCE(parent_id, 0) AS parent_id, COALESCE(external_path, '') AS external_path`

func (s *TermStore) FindByPath(ctx context.Context, taxonomy, path string) (*domain.Term, error) {
	return s.find(ctx,
		"SELECT "+termColumns+" FROM terms WHERE taxonomy = $1 AND external_path = $2",
		taxonomy, path,
	)
}

func (s *TermStore) FindByName(ctx context.Context, taxonomy, name string) (*domain.Term, error) {
	return s.find(ctx,
		"SELECT "+termColumns+" FROM terms WHERE taxonomy = $1 AND lower(name) = lower($2) ORDER BY id LIMIT 1",
		taxonomy, name,
	)
}

// FindUnmapped returns a term with the given name that has no external path yet.
func (s *TermStore) FindUnmapped(ctx context.Context, taxonomy, name string) (*domain.Term, error) {
	return s.find(ctx, `
		SELECT `+termColumns+`
		FROM terms
		WHERE taxonomy = $1 AND lower(name) = lower($2) AND external_path IS NULL
		ORDER BY id
		LIMIT 1`,
		taxonomy, name,
	)
}

func (s *TermStore) SetPath(ctx context.Context, id int64, path string) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE terms SET external_path = $2 WHERE id = $1",
		id, path,
	)
	return err
}

// Create inserts term and returns its id. A concurrent insert of the same
// taxonomy and path returns the existing id.
func (s *TermStore) Create(ctx context.Context, term *domain.Term) (int64, error) {
	query := `
		INSERT INTO terms (taxonomy, name, parent_id, external_path)
		VALUES ($1, $2, NULLIF($3, 0), NULLIF($4, ''))
		ON CONFLICT (taxonomy, external_path) WHERE external_path IS NOT NULL
		DO UPDATE SET name = terms.name
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		term.Taxonomy,
		term.Name,
		term.ParentID,
		term.ExternalPath,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *TermStore) find(ctx context.Context, query string, args ...any) (*domain.Term, error) {
	var term domain.Term
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &term, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &term, nil
}
