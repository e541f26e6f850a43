package model

import (
	"sort"
	"strings"
)

// FieldName enumerates the detail fields a lookup may request.
type FieldName string

const (
	FieldPlaceName    FieldName = "name"
	FieldAddress      FieldName = "address"
	FieldCoordinates  FieldName = "coordinates"
	FieldRating       FieldName = "rating"
	FieldReviewCount  FieldName = "reviewCount"
	FieldPhone        FieldName = "phone"
	FieldWebsite      FieldName = "website"
	FieldPhoto        FieldName = "photo"
	FieldOpeningHours FieldName = "openingHours"
	FieldReviews      FieldName = "reviews"
	FieldCategory     FieldName = "category"
)

// AllFields lists every FieldName in declaration order.
var AllFields = []FieldName{
	FieldPlaceName, FieldAddress, FieldCoordinates, FieldRating, FieldReviewCount,
	FieldPhone, FieldWebsite, FieldPhoto, FieldOpeningHours, FieldReviews, FieldCategory,
}

// FieldSet is an unordered set of fields.
type FieldSet map[FieldName]struct{}

// NewFieldSet builds a set from names.
func NewFieldSet(names ...FieldName) FieldSet {
	fs := make(FieldSet, len(names))
	for _, n := range names {
		fs[n] = struct{}{}
	}
	return fs
}

// Has reports membership.
func (fs FieldSet) Has(n FieldName) bool {
	_, ok := fs[n]
	return ok
}

// Names returns the members sorted.
func (fs FieldSet) Names() []FieldName {
	out := make([]FieldName, 0, len(fs))
	for n := range fs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Key is a stable string form, used for cache keys.
func (fs FieldSet) Key() string {
	names := fs.Names()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ",")
}

// Equal reports whether both sets have the same members.
func (fs FieldSet) Equal(other FieldSet) bool {
	if len(fs) != len(other) {
		return false
	}
	for n := range fs {
		if !other.Has(n) {
			return false
		}
	}
	return true
}

// PreviewFields is the lighter set requested right after an autocomplete
// pick, before the full lookup.
func PreviewFields() FieldSet {
	return NewFieldSet(FieldPlaceName, FieldAddress, FieldCoordinates, FieldRating,
		FieldPhone, FieldWebsite, FieldPhoto)
}

// FullDetailFields is the set the coordinator always requests before it
// updates the selection.
func FullDetailFields() FieldSet {
	return NewFieldSet(AllFields...)
}
