package service

import (
	"context"
	"fmt"
	"strings"

	"listing_syncer/internal/domain"
	"listing_syncer/internal/translate"
)

// generateFields adds catalog entries for remote attributes. Existing names and
// names folded by the alias table are left alone.
func (s *SyncService) generateFields(ctx context.Context, c domain.Cursor) error {
	attrs, err := s.source.Attributes(ctx)
	if err != nil {
		return resumable(c, fmt.Errorf("fetch attributes: %w", err))
	}

	existing, err := s.fields.List(ctx)
	if err != nil {
		return fmt.Errorf("list fields: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, f := range existing {
		known[f.Name] = struct{}{}
	}

	var defs []domain.FieldDef
	for _, attr := range attrs {
		if _, ok := known[attr.Name]; ok || translate.Aliased(attr.Name) {
			continue
		}
		known[attr.Name] = struct{}{}
		defs = append(defs, FieldFromAttribute(attr))
	}

	inserted, err := s.fields.Insert(ctx, defs)
	if err != nil {
		return fmt.Errorf("insert fields: %w", err)
	}

	s.logger.Info("field catalog generated", "attributes", len(attrs), "generated", inserted)
	return s.finish(ctx, c)
}

// FieldFromAttribute maps a remote attribute definition onto a field definition.
func FieldFromAttribute(attr domain.AttributeDef) domain.FieldDef {
	def := domain.FieldDef{
		Name:  attr.Name,
		Label: strings.ReplaceAll(attr.Title, "_", " "),
	}

	switch attr.Datatype {
	case "text":
		def.Type = "text"
	case "float":
		def.Type = "number"
	case "one":
		def.Type = "taxonomy"
		def.Taxonomy = attr.Name
		def.Widget = "select"
	case "many":
		def.Type = "taxonomy"
		def.Taxonomy = attr.Name
		def.Widget = "checkbox"
	case "bool":
		def.Type = "true_false"
	case "date":
		def.Type = "date_picker"
	default:
		def.Type = "text"
	}

	return def
}
