package keitaro

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Campaign represents a campaign object as the tracker reports it
type Campaign struct {
	ID         int64               `json:"id"`
	Name       string              `json:"name"`
	Alias      string              `json:"alias,omitempty"`
	State      string              `json:"state,omitempty"`
	Domain     string              `json:"domain,omitempty"`
	Group      string              `json:"group,omitempty"`
	Source     string              `json:"source,omitempty"`
	Parameters *CampaignParameters `json:"parameters,omitempty"`
}

// CampaignParameters holds the free-form parameter block of a campaign
type CampaignParameters struct {
	Geo string `json:"geo,omitempty"`
}

// Geo returns the campaign's geo parameter, empty when the block is absent
func (c Campaign) Geo() string {
	if c.Parameters == nil {
		return ""
	}
	return c.Parameters.Geo
}

// Offer represents an offer object as the tracker reports it
type Offer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Stream represents a stream of a campaign. The action payload and the offer
// entries arrive in several shapes, the custom decoders below fold them into
// one canonical form.
type Stream struct {
	ID            int64           `json:"id"`
	CampaignID    int64           `json:"campaign_id"`
	Name          string          `json:"name"`
	Schema        string          `json:"schema,omitempty"`
	Type          string          `json:"type,omitempty"`
	ActionType    string          `json:"action_type,omitempty"`
	ActionPayload ActionPayload   `json:"action_payload,omitempty"`
	Offers        []StreamOffer   `json:"offers,omitempty"`
	Filters       json.RawMessage `json:"filters,omitempty"`
}

// EffectiveOffers returns the stream's offer list, preferring the root-level
// field over the one nested in the action payload.
func (s Stream) EffectiveOffers() []StreamOffer {
	if len(s.Offers) > 0 {
		return s.Offers
	}
	return s.ActionPayload.Offers
}

// ActionPayload carries the redirect target or the offer rotation of a
// stream. The tracker serves it as an object, a bare URL string, or an object
// JSON-encoded inside a string.
type ActionPayload struct {
	URL    string        `json:"url,omitempty"`
	Offers []StreamOffer `json:"offers,omitempty"`
}

type actionPayloadObject struct {
	URL    string        `json:"url"`
	Offers []StreamOffer `json:"offers"`
}

func (p *ActionPayload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "{") {
			var obj actionPayloadObject
			if err := json.Unmarshal([]byte(s), &obj); err == nil {
				p.URL = obj.URL
				p.Offers = obj.Offers
				return nil
			}
		}
		p.URL = s
		return nil
	}

	if trimmed[0] == '{' {
		var obj actionPayloadObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		p.URL = obj.URL
		p.Offers = obj.Offers
		return nil
	}

	// Arrays and numbers carry nothing we can use.
	return nil
}

// StreamOffer is one entry of a stream's offer rotation. The tracker mixes
// offer_id with id and share with weight depending on the endpoint.
type StreamOffer struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Weight int    `json:"weight"`
}

func (o *StreamOffer) UnmarshalJSON(data []byte) error {
	var raw struct {
		OfferID *flexInt `json:"offer_id"`
		ID      *flexInt `json:"id"`
		Name    string   `json:"name"`
		Share   *flexInt `json:"share"`
		Weight  *flexInt `json:"weight"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.OfferID != nil:
		o.ID = int64(*raw.OfferID)
	case raw.ID != nil:
		o.ID = int64(*raw.ID)
	}
	o.Name = raw.Name

	switch {
	case raw.Share != nil:
		weight := int(*raw.Share)
		if weight < 1 {
			weight = 1
		}
		o.Weight = weight
	case raw.Weight != nil:
		o.Weight = int(*raw.Weight)
	default:
		o.Weight = 1
	}
	return nil
}

// CatalogEntry is one entry of the schema, action or filter catalogs. Entries
// arrive either as objects or as bare strings; a bare string fills both key
// and value.
type CatalogEntry struct {
	Key   string `json:"key,omitempty"`
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
	Type  string `json:"type,omitempty"`
}

func (e *CatalogEntry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		e.Key = s
		e.Value = s
		return nil
	}

	type entryAlias CatalogEntry
	var alias entryAlias
	if err := json.Unmarshal(trimmed, &alias); err != nil {
		return err
	}
	*e = CatalogEntry(alias)
	return nil
}

// flexInt accepts a JSON number, a numeric string, or null. Fractions
// truncate toward zero.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		trimmed = []byte(s)
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}
