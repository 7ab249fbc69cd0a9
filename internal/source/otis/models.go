package otis

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

type listingsResponse struct {
	Count   int               `json:"count"`
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

// listingIdentity is the part of a listing still readable when the rest fails to decode.
type listingIdentity struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type apiListing struct {
	UUID             string                      `json:"uuid"`
	Name             string                      `json:"name"`
	Description      string                      `json:"description"`
	Type             apiTerm                     `json:"type"`
	Attributes       []apiAttribute              `json:"attributes"`
	Media            map[string][]map[string]any `json:"media"`
	Relations        []apiRelation               `json:"relations"`
	ReverseRelations []apiRelation               `json:"reverse_relations"`
	Glocats          []apiTerm                   `json:"glocats"`
	GeoData          json.RawMessage             `json:"geo_data"`
	IsApproved       string                      `json:"isapproved"`
	Modified         string                      `json:"modified"`
	EndDate          *string                     `json:"end_date"`
}

type apiTerm struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type apiAttribute struct {
	Schema struct {
		Name string `json:"name"`
	} `json:"schema"`
	Value any `json:"value"`
}

type apiRelation struct {
	RelationshipType struct {
		Name string `json:"name"`
	} `json:"relationship_type"`
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type historyResponse struct {
	Count   int          `json:"count"`
	Next    *string      `json:"next"`
	Results []apiHistory `json:"results"`
}

type apiHistory struct {
	UUID     string `json:"uuid"`
	Verb     string `json:"verb"`
	Modified string `json:"modified"`
	Data     struct {
		IsApproved string  `json:"isapproved"`
		EndDate    *string `json:"end_date"`
		Modified   string  `json:"modified"`
	} `json:"data"`
}

type idsResponse struct {
	Next    *string  `json:"next"`
	Results uuidList `json:"results"`
}

// uuidList accepts both bare uuid strings and objects carrying a uuid field.
type uuidList []string

func (l *uuidList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				return err
			}
			out = append(out, s)
			continue
		}

		var obj struct {
			UUID string `json:"uuid"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("decode uuid item: %w", err)
		}
		if obj.UUID != "" {
			out = append(out, obj.UUID)
		}
	}

	*l = out
	return nil
}

type typeResponse struct {
	Schema []struct {
		Name string `json:"name"`
	} `json:"schema"`
}

type collectionsResponse struct {
	Results []struct {
		apiTerm
		Types []apiTerm `json:"types"`
	} `json:"results"`
}

type termsResponse struct {
	Results []apiTerm `json:"results"`
}

type attributeResponse struct {
	apiTerm
	Choices []apiTerm `json:"choices"`
}

type attributesResponse struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Title    string `json:"title"`
		Datatype string `json:"datatype"`
	} `json:"results"`
}
