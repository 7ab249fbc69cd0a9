package translate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"listing_syncer/internal/domain"
)

type staticSchemas struct {
	names map[int64][]string
	calls int
	err   error
}

func (s *staticSchemas) TypeSchema(_ context.Context, typeID int64) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.names[typeID], nil
}

type staticCatalog []domain.FieldDef

func (c staticCatalog) List(context.Context) ([]domain.FieldDef, error) {
	return c, nil
}

type TranslatorTestSuite struct {
	suite.Suite
	schemas    *staticSchemas
	translator *Translator
	now        time.Time
}

func (s *TranslatorTestSuite) SetupTest() {
	s.now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	s.schemas = &staticSchemas{names: map[int64][]string{
		7: {"phone", "hours", "hotels_and_motels_amenities", "website"},
	}}
	catalog := staticCatalog{
		{Name: "amenities", Type: "taxonomy", Taxonomy: "amenities"},
		{Name: "phone", Type: "text"},
	}
	s.translator = New(s.schemas, catalog, false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.translator.now = func() time.Time { return s.now }
}

func TestTranslatorTestSuite(t *testing.T) {
	suite.Run(t, new(TranslatorTestSuite))
}

func (s *TranslatorTestSuite) listing() *domain.Listing {
	return &domain.Listing{
		UUID:        "a1",
		Name:        "Falls <b>Park</b> & Trail",
		Description: `<p onclick="x()">Open <script>alert(1)</script><a href="https://example.test" target="_blank">daily</a></p><style>p{}</style><img src="x.png">`,
		Type:        domain.ListingType{ID: 7, Name: "Attractions", Path: "/listings-types/7/"},
		Attributes: []domain.Attribute{
			{Name: "phone", Value: "555-0100"},
			{Name: "hotels_and_motels_amenities", Value: "Wifi| Pool"},
			{Name: "activities", Value: "Hiking, Camping"},
			{Name: "website", Value: "https://dropped.test"},
		},
		Media: map[string][]domain.MediaItem{
			"photos": {
				{Ordering: 0, Data: map[string]any{"image": "b.jpg", "name": "B"}},
				{Ordering: 0, Data: map[string]any{"image": "c.jpg", "name": "C"}},
				{Ordering: -1, Data: map[string]any{"image": "a.jpg", "name": "A"}},
			},
		},
		Relations: []domain.Relation{
			{Type: "Primary Region", UUID: "r1"},
			{Type: "Primary City", UUID: "c1"},
			{Type: "Nearby Towns & Cities", UUID: "n1"},
			{Type: "Trail Head", UUID: "t1", Name: "North Trail"},
		},
		ReverseRelations: []domain.Relation{
			{Type: "Another Listing", UUID: "n1"},
			{Type: "Another Listing", UUID: "n2"},
			{Type: "Trail Head", UUID: "ignored"},
		},
		GlobalCategories: []domain.TermValue{{Name: "Outdoors", Path: "/global-categories/3/"}},
		GeoData:          []byte(`{ "type": "Point",  "coordinates": [ -96.7, 43.5 ] }`),
		IsApproved:       "app",
		Modified:         s.now.Add(-time.Hour),
	}
}

func (s *TranslatorTestSuite) TestTranslate() {
	rec, err := s.translator.Translate(context.Background(), s.listing())
	s.Require().NoError(err)

	s.Equal("a1", rec.UUID)
	s.Equal("Falls Park & Trail", rec.Title)
	s.Equal(domain.StatusPublished, rec.Status)
	s.NotContains(rec.Content, "script")
	s.NotContains(rec.Content, "alert")
	s.NotContains(rec.Content, "onclick")
	s.NotContains(rec.Content, "<img")
	s.NotContains(rec.Content, "p{}")
	s.Contains(rec.Content, `href="https://example.test"`)
	s.Contains(rec.Content, `target="_blank"`)

	s.Equal("555-0100", rec.Fields["phone"])
	s.Equal("", rec.Fields["hours"])
	s.NotContains(rec.Fields, "website")
	s.NotContains(rec.Fields, "amenities")

	s.Equal([]domain.TermValue{{Name: "Wifi"}, {Name: "Pool"}}, rec.TermFields["amenities"])
	s.Equal([]domain.TermValue{
		{Name: "Attractions", Path: "/listings-types/7/"},
		{Name: "Hiking"},
		{Name: "Camping"},
	}, rec.Categories[domain.TaxonomyType])
	s.Equal([]domain.TermValue{{Name: "Outdoors", Path: "/global-categories/3/"}}, rec.Categories[domain.TaxonomyGlocats])

	photos, ok := rec.Fields["photos"].([]any)
	s.Require().True(ok)
	s.Require().Len(photos, 3)
	s.Equal("a.jpg", photos[0].(map[string]any)["image_url"])
	s.Equal("b.jpg", photos[1].(map[string]any)["image_url"])
	s.Equal("c.jpg", photos[2].(map[string]any)["image_url"])

	s.Equal([]domain.RelatedLink{
		{Kind: domain.LinkRegion, RelatedUUID: "r1"},
		{Kind: domain.LinkCity, RelatedUUID: "c1"},
		{Kind: domain.LinkRelated, RelatedUUID: "n1"},
		{Kind: domain.LinkRelated, RelatedUUID: "n2"},
	}, rec.Related)
	s.Equal([]any{map[string]any{"uuid": "t1", "name": "North Trail"}}, rec.Fields["trail_head"])

	s.Equal(`{"type":"Point","coordinates":[-96.7,43.5]}`, rec.Fields["geo_data"])
}

func (s *TranslatorTestSuite) TestObjectTermValuesKeepPath() {
	l := s.listing()
	l.Attributes = []domain.Attribute{
		{Name: "activities", Value: []any{
			map[string]any{"title": "Hiking", "uri": "/listings-activities/5/"},
			map[string]any{"name": "Camping"},
			map[string]any{"uri": "/listings-activities/9/"},
		}},
		{Name: "hotels_and_motels_amenities", Value: map[string]any{"title": "Pool", "uri": "/listings-attributes/30/?choice=2"}},
	}

	rec, err := s.translator.Translate(context.Background(), l)
	s.Require().NoError(err)

	s.Equal([]domain.TermValue{
		{Name: "Attractions", Path: "/listings-types/7/"},
		{Name: "Hiking", Path: "/listings-activities/5/"},
		{Name: "Camping"},
	}, rec.Categories[domain.TaxonomyType])
	s.Equal([]domain.TermValue{{Name: "Pool", Path: "/listings-attributes/30/"}}, rec.TermFields["amenities"])
}

func (s *TranslatorTestSuite) TestRegionSkipsSelfReferences() {
	l := s.listing()
	l.Type = domain.ListingType{ID: 8, Name: "Regions"}

	rec, err := s.translator.Translate(context.Background(), l)
	s.Require().NoError(err)

	for _, link := range rec.Related {
		s.NotEqual(domain.LinkRegion, link.Kind)
		s.NotEqual(domain.LinkCity, link.Kind)
	}
}

func (s *TranslatorTestSuite) TestCitySkipsPrimaryCityOnly() {
	l := s.listing()
	l.Type = domain.ListingType{ID: 9, Name: "Cities"}

	rec, err := s.translator.Translate(context.Background(), l)
	s.Require().NoError(err)

	s.Equal(domain.RelatedLink{Kind: domain.LinkRegion, RelatedUUID: "r1"}, rec.Related[0])
	for _, link := range rec.Related {
		s.NotEqual(domain.LinkCity, link.Kind)
	}
}

func (s *TranslatorTestSuite) TestSchemaCachedUntilReset() {
	ctx := context.Background()

	_, err := s.translator.Translate(ctx, s.listing())
	s.Require().NoError(err)
	_, err = s.translator.Translate(ctx, s.listing())
	s.Require().NoError(err)
	s.Equal(1, s.schemas.calls)

	s.translator.Reset()
	_, err = s.translator.Translate(ctx, s.listing())
	s.Require().NoError(err)
	s.Equal(2, s.schemas.calls)
}

func (s *TranslatorTestSuite) TestExpiredListingIsDraft() {
	l := s.listing()
	ended := s.now.Add(-48 * time.Hour)
	l.EndDate = &ended

	rec, err := s.translator.Translate(context.Background(), l)
	s.Require().NoError(err)
	s.Equal(domain.StatusDraft, rec.Status)
}

func (s *TranslatorTestSuite) TestMissingNameIsTranslationError() {
	l := s.listing()
	l.Name = "  "

	_, err := s.translator.Translate(context.Background(), l)

	var trErr *domain.TranslationError
	s.Require().ErrorAs(err, &trErr)
	s.Equal("a1", trErr.UUID)
}

func (s *TranslatorTestSuite) TestSchemaFailureIsNotTranslationError() {
	s.schemas.err = &domain.TransportError{Op: "GET listings-types/7", Err: errors.New("timeout")}

	_, err := s.translator.Translate(context.Background(), s.listing())

	var trErr *domain.TranslationError
	s.False(errors.As(err, &trErr))
	var transportErr *domain.TransportError
	s.ErrorAs(err, &transportErr)
}

func (s *TranslatorTestSuite) TestFieldName() {
	tests := map[string]struct {
		field string
		ok    bool
	}{
		"Phone Number":          {"phone_number", true},
		"primary_city":          {"city", true},
		"Restaurants Category":  {"otis_category", true},
		"tag_list":              {"otis_tag", true},
		"last_updated":          {"", false},
		"Event Type":            {"type", true},
		"RV Parks Amenities":    {"amenities", true},
		"Nearby Towns & Cities": {"nearby_towns___cities", true},
	}

	for name, want := range tests {
		field, ok := FieldName(name)
		s.Equal(want.ok, ok, name)
		s.Equal(want.field, field, name)
	}
}
