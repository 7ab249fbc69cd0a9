package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"listing_syncer/internal/domain"
)

type FieldStore struct {
	db *sqlx.DB
}

func NewFieldStore(db *sqlx.DB) *FieldStore {
	return &FieldStore{db: db}
}

func (s *FieldStore) List(ctx context.Context) ([]domain.FieldDef, error) {
	var defs []domain.FieldDef
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &defs,
		"SELECT name, label, field_type, taxonomy, widget FROM fields ORDER BY name")
	return defs, err
}

// Insert adds new definitions and returns how many were written. Existing
// names are left untouched.
func (s *FieldStore) Insert(ctx context.Context, defs []domain.FieldDef) (int64, error) {
	if len(defs) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO fields (name, label, field_type, taxonomy, widget) VALUES ")
	args := make([]any, 0, len(defs)*5)

	for i, def := range defs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 1; j <= 5; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*5 + j))
		}
		sb.WriteString(")")
		args = append(args, def.Name, def.Label, def.Type, def.Taxonomy, def.Widget)
	}
	sb.WriteString(" ON CONFLICT (name) DO NOTHING")

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
