package otis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_syncer/internal/domain"
)

func newTestSource(t *testing.T, routes map[string]string) *Source {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/rest-auth/login/" {
			_, _ = w.Write([]byte(`{"key":"abc"}`))
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return New(newTestClient(srv, "user", "secret"), testLogger())
}

func TestSource_Listings(t *testing.T) {
	var query map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/rest-auth/login/" {
			_, _ = w.Write([]byte(`{"key":"abc"}`))
			return
		}
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{
			"count": 3,
			"next": "https://example.test/api/v1/listings/?page=2",
			"results": [
				{
					"uuid": "a1",
					"name": "Falls Park",
					"description": "<p>Nice</p>",
					"type": {"id": 7, "name": "Attractions", "uri": "/api/v1/listings-types/7/"},
					"attributes": [
						{"schema": {"name": "phone"}, "value": "555"},
						{"schema": {"name": "activities"}, "value": [{"title": "Hiking", "uri": "` + "http://" + r.Host + "/api/v1" + `/listings-activities/5/"}]}
					],
					"media": {"photos": [{"ordering": 2, "url": "b"}, {"ordering": 1, "url": "a"}]},
					"relations": [{"relationship_type": {"name": "Primary City"}, "uuid": "c1", "name": "Sioux Falls"}],
					"glocats": [{"id": 3, "title": "Outdoors", "uri": "/api/v1/global-categories/3/"}],
					"geo_data": {"type": "Point", "coordinates": [1, 2]},
					"isapproved": "app",
					"modified": "2024-05-01T10:00:00Z",
					"end_date": "2024-06-01"
				},
				{"uuid": "", "name": "broken"}
			]
		}`))
	}))
	defer srv.Close()

	source := New(newTestClient(srv, "user", "secret"), testLogger())

	page, err := source.Listings(context.Background(), domain.ListingQuery{
		Page:     1,
		PageSize: 50,
		Type:     "Attractions",
		Modified: time.Date(2024, 4, 1, 8, 30, 0, 0, time.UTC),
		Filters:  map[string]string{"set": "toonly"},
	})
	require.NoError(t, err)

	assert.Equal(t, "1", query["page"][0])
	assert.Equal(t, "50", query["page_size"][0])
	assert.Equal(t, "Attractions", query["type"][0])
	assert.Equal(t, "2024-04-01T08:30:00Z", query["modified"][0])
	assert.Equal(t, "toonly", query["set"][0])
	assert.Equal(t, "true", query["showexpired"][0])

	assert.Equal(t, 3, page.Count)
	assert.True(t, page.HasNext)
	require.Len(t, page.Results, 1)

	listing := page.Results[0]
	assert.Equal(t, "a1", listing.UUID)
	assert.Equal(t, int64(7), listing.Type.ID)
	assert.Equal(t, "Attractions", listing.Type.Name)
	assert.Equal(t, "app", listing.IsApproved)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), listing.Modified)
	require.NotNil(t, listing.EndDate)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *listing.EndDate)
	require.Len(t, listing.Attributes, 2)
	assert.Equal(t, "phone", listing.Attributes[0].Name)
	assert.Equal(t, []any{map[string]any{"title": "Hiking", "uri": "/listings-activities/5/"}}, listing.Attributes[1].Value)
	require.Len(t, listing.Media["photos"], 2)
	assert.Equal(t, 2, listing.Media["photos"][0].Ordering)
	require.Len(t, listing.Relations, 1)
	assert.Equal(t, "Primary City", listing.Relations[0].Type)
	require.Len(t, listing.GlobalCategories, 1)
	assert.Equal(t, "Outdoors", listing.GlobalCategories[0].Name)
	assert.JSONEq(t, `{"type":"Point","coordinates":[1,2]}`, string(listing.GeoData))
}

func TestSource_ListingsSkipsMalformedRecord(t *testing.T) {
	source := newTestSource(t, map[string]string{
		"/api/v1/listings/": `{
			"count": 2,
			"next": null,
			"results": [
				{"uuid": "good", "name": "Falls Park", "type": {"id": 7, "name": "Attractions"}, "media": {}},
				{"uuid": "bad", "name": "Broken", "type": {"id": 7, "name": "Attractions"}, "media": []}
			]
		}`,
	})

	page, err := source.Listings(context.Background(), domain.ListingQuery{Page: 1, PageSize: 50})
	require.NoError(t, err)

	assert.Equal(t, 2, page.Count)
	assert.Equal(t, 1, page.Malformed)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "good", page.Results[0].UUID)
}

func TestSource_ListingMalformedIsTranslationError(t *testing.T) {
	source := newTestSource(t, map[string]string{
		"/api/v1/listings/bad/": `{"uuid": "bad", "name": "Broken", "media": []}`,
	})

	listing, err := source.Listing(context.Background(), "bad")
	assert.Nil(t, listing)

	var trErr *domain.TranslationError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, "bad", trErr.UUID)
}

func TestSource_History(t *testing.T) {
	source := newTestSource(t, map[string]string{
		"/api/v1/listings/history/": `{
			"count": 2,
			"next": null,
			"results": [
				{"uuid": "a", "verb": "updated", "data": {"isapproved": "gen", "modified": "2024-05-02T00:00:00"}},
				{"uuid": "b", "verb": "deleted", "modified": "2024-05-01T00:00:00Z", "data": {}}
			]
		}`,
	})

	page, err := source.History(context.Background(), domain.HistoryQuery{Page: 1, PageSize: 200})
	require.NoError(t, err)

	assert.False(t, page.HasNext)
	require.Len(t, page.Results, 2)
	assert.Equal(t, domain.VerbUpdated, page.Results[0].Verb)
	assert.Equal(t, "gen", page.Results[0].IsApproved)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), page.Results[0].Modified)
	assert.Equal(t, domain.VerbDeleted, page.Results[1].Verb)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), page.Results[1].Modified)
}

func TestSource_ActiveIDsAcceptsBothShapes(t *testing.T) {
	source := newTestSource(t, map[string]string{
		"/api/v1/listings/activeids/": `{"next": "x", "results": ["a", {"uuid": "b"}, {"id": 3}]}`,
	})

	page, err := source.ActiveIDs(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, page.HasNext)
	assert.Equal(t, []string{"a", "b"}, page.UUIDs)
}

func TestSource_CollectionsUsesStablePaths(t *testing.T) {
	var root string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/rest-auth/login/" {
			_, _ = w.Write([]byte(`{"key":"abc"}`))
			return
		}
		_, _ = w.Write([]byte(`{"results": [{
			"id": 1, "name": "Things To Do",
			"uri": "` + root + `/listings-collections/1/?format=json",
			"types": [{"id": 7, "name": "Attractions", "uri": "` + root + `/listings-types/7/"}]
		}]}`))
	}))
	defer srv.Close()
	root = srv.URL + "/api/v1"

	source := New(newTestClient(srv, "user", "secret"), testLogger())

	cols, err := source.Collections(context.Background())
	require.NoError(t, err)

	require.Len(t, cols, 1)
	assert.Equal(t, domain.TermValue{Name: "Things To Do", Path: "/listings-collections/1/"}, cols[0].Term)
	require.Len(t, cols[0].Types, 1)
	assert.Equal(t, domain.TermValue{Name: "Attractions", Path: "/listings-types/7/"}, cols[0].Types[0])
}

func TestSource_TypeSchema(t *testing.T) {
	source := newTestSource(t, map[string]string{
		"/api/v1/listings-types/7/": `{"schema": [{"name": "phone"}, {"name": ""}, {"name": "hours"}]}`,
	})

	names, err := source.TypeSchema(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"phone", "hours"}, names)
}

func TestSource_AttributesFollowsPages(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/rest-auth/login/" {
			_, _ = w.Write([]byte(`{"key":"abc"}`))
			return
		}
		calls++
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(`{"count": 2, "next": "more", "results": [{"id": 1, "name": "phone", "title": "Phone", "datatype": "text"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"count": 2, "next": null, "results": [{"id": 2, "name": "pets", "title": "Pets", "datatype": "bool"}]}`))
	}))
	defer srv.Close()

	source := New(newTestClient(srv, "user", "secret"), testLogger())

	attrs, err := source.Attributes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, attrs, 2)
	assert.Equal(t, "bool", attrs[1].Datatype)
}

func TestExternalPath(t *testing.T) {
	root := "https://api.example.test/api/v1"

	assert.Equal(t, "/listings-types/7/", domain.ExternalPath(root+"/listings-types/7/?format=json", root))
	assert.Equal(t, "/listings-activities/parent/", domain.ExternalPath("/listings-activities/parent/", root))
}
