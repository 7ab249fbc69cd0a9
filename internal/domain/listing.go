package domain

import (
	"net/url"
	"strings"
	"time"
)

// Listing is one remote catalog record as returned by the listings API.
type Listing struct {
	UUID             string
	Name             string
	Description      string
	Type             ListingType
	Attributes       []Attribute
	Media            map[string][]MediaItem
	Relations        []Relation
	ReverseRelations []Relation
	GlobalCategories []TermValue
	GeoData          []byte
	IsApproved       string
	Modified         time.Time
	EndDate          *time.Time
}

type ListingType struct {
	ID   int64
	Name string
	Path string
}

// Attribute is a schema-named value. Value keeps whatever JSON shape the API sent.
type Attribute struct {
	Name  string
	Value any
}

type MediaItem struct {
	Ordering int
	Data     map[string]any
}

type Relation struct {
	Type string
	UUID string
	Name string
}

// TermValue identifies an external category either by Path (stable) or by Name.
type TermValue struct {
	Name string
	Path string
}

// Collection is a listings collection together with the types it groups.
type Collection struct {
	Term  TermValue
	Types []TermValue
}

// AttributeDef describes one attribute in the remote schema catalog.
type AttributeDef struct {
	ID       int64
	Name     string
	Title    string
	Datatype string
}

type ListingQuery struct {
	Page     int
	PageSize int
	Type     string
	Modified time.Time
	Filters  map[string]string
}

type ListingPage struct {
	Count   int
	HasNext bool
	Results []Listing
	// Malformed counts results dropped because they could not be decoded.
	Malformed int
}

type HistoryQuery struct {
	Page     int
	PageSize int
	After    time.Time
	Before   time.Time
}

type HistoryPage struct {
	Count   int
	HasNext bool
	Results []HistoryEntry
}

type DeletedQuery struct {
	Page   int
	After  time.Time
	Before time.Time
}

// IDPage is one page of a bare uuid listing (active ids, deleted ids).
type IDPage struct {
	UUIDs   []string
	HasNext bool
}

// ExternalPath turns an API uri into the stable path used to key terms.
func ExternalPath(uri, apiRoot string) string {
	trimmed := strings.TrimPrefix(uri, apiRoot)
	u, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	return u.Path
}
