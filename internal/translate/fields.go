package translate

import (
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^\w]`)

// aliases collapse duplicate upstream attribute names onto one internal field.
// An empty target drops the attribute.
var aliases = map[string]string{
	"last_updated": "",
	"start_time":   "",
	"end_time":     "",
	"website":      "",

	"bed_and_breakfast_amenities":        "amenities",
	"boutique_hotels_amenities":          "amenities",
	"campgrounds_amenities":              "amenities",
	"farm_and_ranch_stays_amenities":     "amenities",
	"glamping_and_tree_houses_amenities": "amenities",
	"hostels_amenities":                  "amenities",
	"hotels_and_motels_amenities":        "amenities",
	"resorts_amenities":                  "amenities",
	"rv_parks_amenities":                 "amenities",
	"vacation_rentals_amenities":         "amenities",

	"lakes_and_reservoirs_category":         "otis_category",
	"other_outdoor_category":                "otis_category",
	"parks_and_recreational_areas_category": "otis_category",
	"restaurants_category":                  "otis_category",
	"rivers_and_streams_category":           "otis_category",

	"tag_list":          "otis_tag",
	"activities":        "type",
	"cycling_ride_type": "type",
	"event_type":        "type",
	"primary_city":      "city",
	"primary_region":    "region",
}

// FieldName normalizes an upstream attribute or relation name into an internal
// field name. ok is false when the name is dropped.
func FieldName(name string) (field string, ok bool) {
	field = strings.ToLower(nonWord.ReplaceAllString(name, "_"))
	if alias, found := aliases[field]; found {
		return alias, alias != ""
	}
	return field, true
}

// Aliased reports whether name is a source name in the alias table.
func Aliased(name string) bool {
	_, ok := aliases[name]
	return ok
}
