package otis

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"listing_syncer/internal/domain"
)

const (
	SourceID   = "otis"
	SourceName = "OTIS Listings"
)

// Source exposes the typed listings endpoints on top of Client.
type Source struct {
	client *Client
	logger *slog.Logger
}

// New creates a new listings source.
func New(client *Client, logger *slog.Logger) *Source {
	return &Source{
		client: client,
		logger: logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// Listings fetches one page of listings.
func (s *Source) Listings(ctx context.Context, q domain.ListingQuery) (*domain.ListingPage, error) {
	params := url.Values{}
	params.Set("showexpired", "true")
	params.Set("geo_data", "true")
	params.Set("reverse_relations", "true")
	for k, v := range q.Filters {
		params.Set(k, v)
	}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("page_size", strconv.Itoa(q.PageSize))
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if !q.Modified.IsZero() {
		params.Set("modified", q.Modified.UTC().Format("2006-01-02T15:04:05Z"))
	}

	var resp listingsResponse
	if err := s.get(ctx, "listings", params, &resp); err != nil {
		return nil, err
	}

	page := &domain.ListingPage{
		Count:   resp.Count,
		HasNext: resp.Next != nil && *resp.Next != "",
		Results: make([]domain.Listing, 0, len(resp.Results)),
	}
	for _, raw := range resp.Results {
		item, err := s.decodeListing(raw)
		if err != nil {
			s.logger.Error("malformed listing skipped", "uuid", item.UUID, "page", q.Page, "error", err)
			page.Malformed++
			continue
		}
		if item.UUID == "" {
			s.logger.Warn("listing without uuid skipped", "name", item.Name)
			continue
		}
		page.Results = append(page.Results, s.transform(item))
	}

	return page, nil
}

// Listing fetches a single listing by uuid.
func (s *Source) Listing(ctx context.Context, uuid string) (*domain.Listing, error) {
	params := url.Values{}
	params.Set("showexpired", "true")
	params.Set("geo_data", "true")
	params.Set("reverse_relations", "true")

	body, err := s.client.Fetch(ctx, "listings/"+url.PathEscape(uuid), params)
	if err != nil {
		return nil, err
	}
	item, err := s.decodeListing(body)
	if err != nil {
		return nil, &domain.TranslationError{UUID: uuid, Err: err}
	}
	if item.UUID == "" {
		return nil, &domain.APIError{Code: 404, Message: "listing not found for uuid " + uuid}
	}

	listing := s.transform(item)
	return &listing, nil
}

// decodeListing decodes one listing. On failure the returned item still
// carries whatever uuid and name could be read.
func (s *Source) decodeListing(raw []byte) (apiListing, error) {
	var item apiListing
	if err := json.Unmarshal(raw, &item); err != nil {
		var id listingIdentity
		_ = json.Unmarshal(raw, &id)
		return apiListing{UUID: id.UUID, Name: id.Name}, fmt.Errorf("decode listing: %w", err)
	}
	return item, nil
}

// History fetches one page of the changelog.
func (s *Source) History(ctx context.Context, q domain.HistoryQuery) (*domain.HistoryPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("page_size", strconv.Itoa(q.PageSize))
	if !q.After.IsZero() {
		params.Set("after", q.After.UTC().Format("2006-01-02"))
	}
	if !q.Before.IsZero() {
		params.Set("before", q.Before.UTC().Format("2006-01-02"))
	}

	var resp historyResponse
	if err := s.get(ctx, "listings/history", params, &resp); err != nil {
		return nil, err
	}

	page := &domain.HistoryPage{
		Count:   resp.Count,
		HasNext: resp.Next != nil && *resp.Next != "",
		Results: make([]domain.HistoryEntry, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		modified := r.Data.Modified
		if modified == "" {
			modified = r.Modified
		}
		page.Results = append(page.Results, domain.HistoryEntry{
			UUID:       r.UUID,
			Verb:       domain.Verb(r.Verb),
			IsApproved: r.Data.IsApproved,
			EndDate:    s.parseOptionalTime(r.UUID, r.Data.EndDate),
			Modified:   s.parseTime(r.UUID, modified),
		})
	}

	return page, nil
}

// ActiveIDs fetches one page of currently active listing uuids.
func (s *Source) ActiveIDs(ctx context.Context, page int) (*domain.IDPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))

	return s.ids(ctx, "listings/activeids", params)
}

// DeletedIDs fetches one page of listings deleted upstream.
func (s *Source) DeletedIDs(ctx context.Context, q domain.DeletedQuery) (*domain.IDPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	if !q.After.IsZero() {
		params.Set("after", q.After.UTC().Format("2006-01-02"))
	}
	if !q.Before.IsZero() {
		params.Set("before", q.Before.UTC().Format("2006-01-02"))
	}

	return s.ids(ctx, "listings/deleted", params)
}

func (s *Source) ids(ctx context.Context, path string, params url.Values) (*domain.IDPage, error) {
	var resp idsResponse
	if err := s.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	return &domain.IDPage{
		UUIDs:   resp.Results,
		HasNext: resp.Next != nil && *resp.Next != "",
	}, nil
}

// TypeSchema returns the attribute names declared by a listing type.
func (s *Source) TypeSchema(ctx context.Context, typeID int64) ([]string, error) {
	var resp typeResponse
	if err := s.get(ctx, "listings-types/"+strconv.FormatInt(typeID, 10), nil, &resp); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.Schema))
	for _, attr := range resp.Schema {
		if attr.Name != "" {
			names = append(names, attr.Name)
		}
	}
	return names, nil
}

// Collections fetches listing collections with their child types.
func (s *Source) Collections(ctx context.Context) ([]domain.Collection, error) {
	var resp collectionsResponse
	if err := s.get(ctx, "listings-collections", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.Collection, 0, len(resp.Results))
	for _, c := range resp.Results {
		col := domain.Collection{Term: s.termValue(c.apiTerm)}
		for _, t := range c.Types {
			col.Types = append(col.Types, s.termValue(t))
		}
		out = append(out, col)
	}
	return out, nil
}

// Activities fetches the listing activities.
func (s *Source) Activities(ctx context.Context) ([]domain.TermValue, error) {
	return s.terms(ctx, "listings-activities")
}

// GlobalCategories fetches the global categories.
func (s *Source) GlobalCategories(ctx context.Context) ([]domain.TermValue, error) {
	return s.terms(ctx, "global-categories")
}

// AttributeChoices fetches one attribute and its choices as term values.
func (s *Source) AttributeChoices(ctx context.Context, id int64) (domain.TermValue, []domain.TermValue, error) {
	var resp attributeResponse
	if err := s.get(ctx, "listings-attributes/"+strconv.FormatInt(id, 10), nil, &resp); err != nil {
		return domain.TermValue{}, nil, err
	}

	choices := make([]domain.TermValue, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choices = append(choices, s.termValue(c))
	}
	return s.termValue(resp.apiTerm), choices, nil
}

// Attributes fetches the full attribute catalog, following pagination.
func (s *Source) Attributes(ctx context.Context) ([]domain.AttributeDef, error) {
	var out []domain.AttributeDef

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))

		var resp attributesResponse
		if err := s.get(ctx, "listings-attributes", params, &resp); err != nil {
			return out, fmt.Errorf("fetch attributes page %d: %w", page, err)
		}
		for _, a := range resp.Results {
			out = append(out, domain.AttributeDef{
				ID:       a.ID,
				Name:     a.Name,
				Title:    a.Title,
				Datatype: a.Datatype,
			})
		}
		if resp.Next == nil || *resp.Next == "" || len(resp.Results) == 0 {
			break
		}
	}

	return out, nil
}

func (s *Source) terms(ctx context.Context, path string) ([]domain.TermValue, error) {
	var resp termsResponse
	if err := s.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.TermValue, 0, len(resp.Results))
	for _, t := range resp.Results {
		out = append(out, s.termValue(t))
	}
	return out, nil
}

func (s *Source) get(ctx context.Context, path string, params url.Values, dst any) error {
	body, err := s.client.Fetch(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (s *Source) termValue(t apiTerm) domain.TermValue {
	name := t.Title
	if name == "" {
		name = t.Name
	}
	v := domain.TermValue{Name: strings.TrimSpace(name)}
	if t.URI != "" {
		v.Path = domain.ExternalPath(t.URI, s.client.BaseURL())
	}
	return v
}

func (s *Source) transform(item apiListing) domain.Listing {
	listing := domain.Listing{
		UUID:        item.UUID,
		Name:        item.Name,
		Description: item.Description,
		Type: domain.ListingType{
			ID:   item.Type.ID,
			Name: item.Type.Name,
		},
		IsApproved: item.IsApproved,
		Modified:   s.parseTime(item.UUID, item.Modified),
		EndDate:    s.parseOptionalTime(item.UUID, item.EndDate),
	}
	if item.Type.URI != "" {
		listing.Type.Path = domain.ExternalPath(item.Type.URI, s.client.BaseURL())
	}
	if len(item.GeoData) > 0 && string(item.GeoData) != "null" {
		listing.GeoData = []byte(item.GeoData)
	}

	for _, a := range item.Attributes {
		listing.Attributes = append(listing.Attributes, domain.Attribute{
			Name:  a.Schema.Name,
			Value: s.relativeURIs(a.Value),
		})
	}

	if len(item.Media) > 0 {
		listing.Media = make(map[string][]domain.MediaItem, len(item.Media))
		for group, items := range item.Media {
			converted := make([]domain.MediaItem, 0, len(items))
			for _, m := range items {
				converted = append(converted, domain.MediaItem{
					Ordering: intValue(m["ordering"]),
					Data:     m,
				})
			}
			listing.Media[group] = converted
		}
	}

	for _, r := range item.Relations {
		listing.Relations = append(listing.Relations, domain.Relation{
			Type: r.RelationshipType.Name,
			UUID: r.UUID,
			Name: r.Name,
		})
	}
	for _, r := range item.ReverseRelations {
		listing.ReverseRelations = append(listing.ReverseRelations, domain.Relation{
			Type: r.RelationshipType.Name,
			UUID: r.UUID,
			Name: r.Name,
		})
	}
	for _, g := range item.Glocats {
		listing.GlobalCategories = append(listing.GlobalCategories, s.termValue(g))
	}

	return listing
}

// relativeURIs rewrites the "uri" member of object values to a path under the
// API root, so term values carry the same stable key as the terms import.
func (s *Source) relativeURIs(value any) any {
	switch v := value.(type) {
	case []any:
		for i := range v {
			v[i] = s.relativeURIs(v[i])
		}
	case map[string]any:
		if uri, ok := v["uri"].(string); ok && uri != "" {
			v["uri"] = domain.ExternalPath(uri, s.client.BaseURL())
		}
	}
	return value
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (s *Source) parseTime(uuid, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	s.logger.Warn("failed to parse date", "uuid", uuid, "date", value)
	return time.Time{}
}

func (s *Source) parseOptionalTime(uuid string, value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	t := s.parseTime(uuid, *value)
	if t.IsZero() {
		return nil
	}
	return &t
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
