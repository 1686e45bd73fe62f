package models

import "github.com/shopspring/decimal"

// SortKey selects the ordering of a product listing
type SortKey string

const (
	SortName      SortKey = "name"
	SortPriceAsc  SortKey = "price_asc"
	SortPriceDesc SortKey = "price_desc"
	SortRating    SortKey = "rating"
	SortNewest    SortKey = "newest"
	SortFeatured  SortKey = "featured"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ParseSortKey maps a query value to a SortKey, defaulting to featured-first.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(s); k {
	case SortName, SortPriceAsc, SortPriceDesc, SortRating, SortNewest, SortFeatured:
		return k
	}
	return SortFeatured
}

// ProductFilter enumerates every recognised catalog filter. Zero values mean "not filtered".
type ProductFilter struct {
	CategorySlug         string
	BrandIDs             []int64
	PriceMin             *decimal.Decimal
	PriceMax             *decimal.Decimal
	Search               string
	SortBy               SortKey
	Limit                int
	Offset               int
	InStock              bool
	Featured             bool
	Constitution         Constitution
	MinRating            *decimal.Decimal
	PrescriptionRequired *bool
}

// Normalize clamps pagination and fills defaults.
func (f *ProductFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.SortBy = ParseSortKey(string(f.SortBy))
	if !f.Constitution.Valid() {
		f.Constitution = ""
	}
}
