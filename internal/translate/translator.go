package translate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"listing_syncer/internal/domain"
	"listing_syncer/internal/terms"
)

// SchemaSource returns the attribute names declared by a listing type.
type SchemaSource interface {
	TypeSchema(ctx context.Context, typeID int64) ([]string, error)
}

// FieldCatalog lists the local field definitions.
type FieldCatalog interface {
	List(ctx context.Context) ([]domain.FieldDef, error)
}

// Translator maps remote listings onto local records. Type schemas and the
// field catalog are cached until Reset.
type Translator struct {
	schemas      SchemaSource
	fields       FieldCatalog
	sanitizer    *Sanitizer
	approvedOnly bool
	now          func() time.Time
	logger       *slog.Logger

	mu      sync.Mutex
	schema  map[int64][]string
	catalog map[string]domain.FieldDef
}

func New(schemas SchemaSource, fields FieldCatalog, approvedOnly bool, logger *slog.Logger) *Translator {
	return &Translator{
		schemas:      schemas,
		fields:       fields,
		sanitizer:    NewSanitizer(),
		approvedOnly: approvedOnly,
		now:          time.Now,
		logger:       logger.With("component", "translator"),
		schema:       make(map[int64][]string),
	}
}

// Reset drops cached type schemas and the field catalog.
func (t *Translator) Reset() {
	t.mu.Lock()
	t.schema = make(map[int64][]string)
	t.catalog = nil
	t.mu.Unlock()
}

// Translate builds the record for l. Malformed listings fail with a
// *domain.TranslationError; lookup failures are returned as is.
func (t *Translator) Translate(ctx context.Context, l *domain.Listing) (*domain.Record, error) {
	if l.UUID == "" {
		return nil, &domain.TranslationError{Err: errors.New("listing has no uuid")}
	}
	if strings.TrimSpace(l.Name) == "" {
		return nil, &domain.TranslationError{UUID: l.UUID, Err: errors.New("listing has no name")}
	}

	schema, err := t.typeSchema(ctx, l.Type.ID)
	if err != nil {
		return nil, fmt.Errorf("load schema for type %d: %w", l.Type.ID, err)
	}
	catalog, err := t.fieldCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load field catalog: %w", err)
	}

	rec := &domain.Record{
		UUID:       l.UUID,
		Title:      t.sanitizer.Text(l.Name),
		Content:    t.sanitizer.Content(l.Description),
		TypeName:   l.Type.Name,
		Modified:   l.Modified,
		EndDate:    l.EndDate,
		Status:     domain.DeriveStatus(l.IsApproved, l.EndDate, t.approvedOnly, t.now()),
		Fields:     make(map[string]any),
		Categories: make(map[string][]domain.TermValue),
		TermFields: make(map[string][]domain.TermValue),
	}

	rec.Categories[domain.TaxonomyType] = nil
	if l.Type.Name != "" {
		rec.Categories[domain.TaxonomyType] = []domain.TermValue{{Name: l.Type.Name, Path: l.Type.Path}}
	}
	rec.Categories[domain.TaxonomyGlocats] = append([]domain.TermValue{}, l.GlobalCategories...)

	for _, name := range schema {
		t.set(rec, catalog, name, "")
	}
	for _, attr := range l.Attributes {
		t.set(rec, catalog, attr.Name, attr.Value)
	}

	for group, items := range l.Media {
		field, ok := FieldName(group)
		if !ok {
			continue
		}
		rec.Fields[field] = mediaValues(field, items)
	}

	t.relations(rec, l)

	if len(l.GeoData) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, l.GeoData); err != nil {
			return nil, &domain.TranslationError{UUID: l.UUID, Err: fmt.Errorf("geo_data: %w", err)}
		}
		rec.Fields["geo_data"] = buf.String()
	}

	return rec, nil
}

func (t *Translator) set(rec *domain.Record, catalog map[string]domain.FieldDef, rawName string, value any) {
	field, ok := FieldName(rawName)
	if !ok {
		return
	}

	if field == domain.TaxonomyType || field == domain.TaxonomyGlocats {
		rec.Categories[field] = append(rec.Categories[field], termValues(value)...)
		return
	}

	if def, found := catalog[field]; found && def.IsTaxonomy() {
		if _, seen := rec.TermFields[field]; !seen {
			rec.TermFields[field] = []domain.TermValue{}
		}
		rec.TermFields[field] = append(rec.TermFields[field], termValues(value)...)
		return
	}

	if isEmpty(value) {
		if _, seen := rec.Fields[field]; !seen {
			rec.Fields[field] = ""
		}
		return
	}
	rec.Fields[field] = value
}

func (t *Translator) relations(rec *domain.Record, l *domain.Listing) {
	listingType := strings.ToLower(l.Type.Name)
	linked := make(map[string]struct{})

	link := func(kind, uuid string) {
		key := kind + "/" + uuid
		if uuid == "" {
			return
		}
		if _, dup := linked[key]; dup {
			return
		}
		linked[key] = struct{}{}
		rec.Related = append(rec.Related, domain.RelatedLink{Kind: kind, RelatedUUID: uuid})
	}

	for _, r := range l.Relations {
		switch domain.ClassifyRelation(r.Type) {
		case domain.RelationPrimaryRegion:
			if listingType != "regions" {
				link(domain.LinkRegion, r.UUID)
			}
		case domain.RelationPrimaryCity:
			if listingType != "regions" && listingType != "cities" {
				link(domain.LinkCity, r.UUID)
			}
		case domain.RelationRelatedListing:
			link(domain.LinkRelated, r.UUID)
		default:
			field, ok := FieldName(r.Type)
			if !ok {
				continue
			}
			list, _ := rec.Fields[field].([]any)
			rec.Fields[field] = append(list, map[string]any{"uuid": r.UUID, "name": r.Name})
		}
	}

	for _, r := range l.ReverseRelations {
		if domain.ClassifyRelation(r.Type) == domain.RelationRelatedListing {
			link(domain.LinkRelated, r.UUID)
		}
	}
}

func (t *Translator) typeSchema(ctx context.Context, typeID int64) ([]string, error) {
	if typeID == 0 {
		return nil, nil
	}

	t.mu.Lock()
	names, ok := t.schema[typeID]
	t.mu.Unlock()
	if ok {
		return names, nil
	}

	names, err := t.schemas.TypeSchema(ctx, typeID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.schema[typeID] = names
	t.mu.Unlock()

	return names, nil
}

func (t *Translator) fieldCatalog(ctx context.Context) (map[string]domain.FieldDef, error) {
	t.mu.Lock()
	catalog := t.catalog
	t.mu.Unlock()
	if catalog != nil {
		return catalog, nil
	}

	defs, err := t.fields.List(ctx)
	if err != nil {
		return nil, err
	}

	catalog = make(map[string]domain.FieldDef, len(defs))
	for _, d := range defs {
		catalog[d.Name] = d
	}

	t.mu.Lock()
	t.catalog = catalog
	t.mu.Unlock()

	return catalog, nil
}

func mediaValues(field string, items []domain.MediaItem) []any {
	sorted := make([]domain.MediaItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Ordering < sorted[j].Ordering
	})

	values := make([]any, 0, len(sorted))
	for _, item := range sorted {
		if field == "photos" {
			values = append(values, map[string]any{
				"image_url":     item.Data["image"],
				"image_name":    item.Data["name"],
				"image_caption": item.Data["caption"],
				"image_credit":  item.Data["photo_credit"],
			})
			continue
		}
		values = append(values, item.Data)
	}
	return values
}

func termValues(value any) []domain.TermValue {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		names := terms.Split(v)
		out := make([]domain.TermValue, 0, len(names))
		for _, n := range names {
			out = append(out, domain.TermValue{Name: n})
		}
		return out
	case []any:
		var out []domain.TermValue
		for _, item := range v {
			out = append(out, termValues(item)...)
		}
		return out
	case []string:
		var out []domain.TermValue
		for _, item := range v {
			out = append(out, termValues(item)...)
		}
		return out
	case map[string]any:
		var tv domain.TermValue
		for _, key := range []string{"title", "name", "value"} {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				tv.Name = strings.TrimSpace(s)
				break
			}
		}
		if uri, ok := v["uri"].(string); ok && uri != "" {
			tv.Path = domain.ExternalPath(uri, "")
		}
		if tv.Name == "" {
			return nil
		}
		return []domain.TermValue{tv}
	case bool:
		if v {
			return []domain.TermValue{{Name: "Yes"}}
		}
		return nil
	default:
		return []domain.TermValue{{Name: fmt.Sprint(v)}}
	}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	}
	return false
}
