package model

import "strings"

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ReferenceSource tells which input surface produced a PlaceReference.
type ReferenceSource string

const (
	SourceAutocomplete ReferenceSource = "autocomplete"
	SourceMapClick     ReferenceSource = "map_click"
)

// PlaceReference is an unresolved locator for a place.
// Autocomplete picks carry PlaceID; map clicks carry Location plus the
// provider token attached to the clicked feature.
type PlaceReference struct {
	PlaceID     string       `json:"place_id,omitempty"`
	Location    *Coordinates `json:"location,omitempty"`
	ResultToken string       `json:"result_token,omitempty"`
}

// Source reports where the reference came from.
func (r PlaceReference) Source() ReferenceSource {
	if r.PlaceID == "" && (r.Location != nil || r.ResultToken != "") {
		return SourceMapClick
	}
	return SourceAutocomplete
}

// ProviderID returns the identifier the provider can resolve, preferring
// the autocomplete id over the click token.
func (r PlaceReference) ProviderID() string {
	if id := strings.TrimSpace(r.PlaceID); id != "" {
		return id
	}
	return strings.TrimSpace(r.ResultToken)
}

// Resolvable is false for references the provider cannot look up,
// e.g. a click on bare map tiles.
func (r PlaceReference) Resolvable() bool {
	return r.ProviderID() != ""
}

// OpenState is the tri-state open-now flag.
type OpenState string

const (
	OpenUnknown OpenState = "unknown"
	OpenNow     OpenState = "open"
	ClosedNow   OpenState = "closed"
)

// OpenStateOf converts the provider's optional boolean.
func OpenStateOf(open *bool) OpenState {
	switch {
	case open == nil:
		return OpenUnknown
	case *open:
		return OpenNow
	default:
		return ClosedNow
	}
}

// IdentityKey is the structural identity of a place: name plus formatted
// address. Provider ids differ between the autocomplete and map-click paths,
// so they are not used for equality.
type IdentityKey struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (k IdentityKey) String() string {
	return k.Name + " | " + k.Address
}

// PlaceDetails is the resolved record for a place. Values are treated as
// immutable; use Clone before handing one to another owner.
type PlaceDetails struct {
	PlaceID       string      `json:"place_id,omitempty"`
	Name          string      `json:"name"`
	Address       string      `json:"address"`
	Coordinates   Coordinates `json:"coordinates"`
	Rating        *float64    `json:"rating"`
	ReviewCount   *int        `json:"review_count"`
	Phone         *string     `json:"phone"`
	Website       *string     `json:"website"`
	PhotoURL      *string     `json:"photo_url"`
	OpenNow       OpenState   `json:"open_now"`
	Schedule      []string    `json:"schedule"`
	ReviewExcerpt string      `json:"review_excerpt"`
	Category      string      `json:"category"`
}

// Key returns the identity key.
func (d PlaceDetails) Key() IdentityKey {
	return IdentityKey{Name: d.Name, Address: d.Address}
}

// SameAs reports whether both details describe the same place.
func (d PlaceDetails) SameAs(other PlaceDetails) bool {
	return d.Key() == other.Key()
}

// Clone returns a deep copy.
func (d PlaceDetails) Clone() PlaceDetails {
	out := d
	out.Rating = clonePtr(d.Rating)
	out.ReviewCount = clonePtr(d.ReviewCount)
	out.Phone = clonePtr(d.Phone)
	out.Website = clonePtr(d.Website)
	out.PhotoURL = clonePtr(d.PhotoURL)
	if d.Schedule != nil {
		out.Schedule = append([]string(nil), d.Schedule...)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
