package domain

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPublished Status = "publish"
	StatusDraft     Status = "draft"
	StatusTrashed   Status = "trash"
)

// ExpiryGrace is how long past its end date a listing stays published.
const ExpiryGrace = 24 * time.Hour

// Category taxonomies assigned on every upsert.
const (
	TaxonomyType    = "type"
	TaxonomyGlocats = "glocats"
)

// Record is the local, normalized form of a Listing.
type Record struct {
	ID       int64
	UUID     string
	Title    string
	Content  string
	Status   Status
	TypeName string
	Modified time.Time
	EndDate  *time.Time

	// Fields holds values by internal field name. On update only these keys are written.
	Fields map[string]any

	// Categories are unresolved values for TaxonomyType and TaxonomyGlocats.
	Categories map[string][]TermValue
	// TermFields are unresolved values for catalog fields of taxonomy type, keyed by field name.
	TermFields map[string][]TermValue
	// TermIDs is filled by the resolver from Categories.
	TermIDs map[string][]int64

	Related []RelatedLink
}

// RecordRef is the lightweight projection used for lookups and diffs.
type RecordRef struct {
	ID     int64  `db:"id"`
	UUID   string `db:"uuid"`
	Status Status `db:"status"`
}

type RelationKind int

const (
	RelationOther RelationKind = iota
	RelationPrimaryRegion
	RelationPrimaryCity
	RelationRelatedListing
)

// ClassifyRelation maps a remote relationship type name onto a RelationKind.
func ClassifyRelation(name string) RelationKind {
	switch name {
	case "Primary Region":
		return RelationPrimaryRegion
	case "Primary City":
		return RelationPrimaryCity
	case "Additional City", "Additional Region", "Nearby Towns & Cities", "Another Listing":
		return RelationRelatedListing
	default:
		return RelationOther
	}
}

// RelatedLink kinds stored in listing_relations.
const (
	LinkRegion  = "region"
	LinkCity    = "city"
	LinkRelated = "related"
)

// RelatedLink is a related-listing edge. RelatedID is zero when the other side is not imported yet.
type RelatedLink struct {
	Kind        string `db:"kind"`
	RelatedUUID string `db:"related_uuid"`
	RelatedID   int64  `db:"related_id"`
}

// FieldDef is one entry of the local field catalog.
type FieldDef struct {
	Name     string `db:"name"`
	Label    string `db:"label"`
	Type     string `db:"field_type"`
	Taxonomy string `db:"taxonomy"`
	Widget   string `db:"widget"`
}

func (f FieldDef) IsTaxonomy() bool {
	return f.Type == "taxonomy"
}

// DeriveStatus decides the publish state of a listing.
func DeriveStatus(approval string, endDate *time.Time, approvedOnly bool, now time.Time) Status {
	if endDate != nil && now.Sub(*endDate) > ExpiryGrace {
		return StatusDraft
	}

	switch strings.ToLower(strings.TrimSpace(approval)) {
	case "app":
		return StatusPublished
	case "gen", "pen":
		if approvedOnly {
			return StatusDraft
		}
		return StatusPublished
	}

	return StatusDraft
}
