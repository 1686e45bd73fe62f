package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Constitution is the Ayurvedic dosha a product is formulated for.
type Constitution string

const (
	ConstitutionVata     Constitution = "vata"
	ConstitutionPitta    Constitution = "pitta"
	ConstitutionKapha    Constitution = "kapha"
	ConstitutionTridosha Constitution = "tridosha"
)

// Valid reports whether c is a known constitution.
func (c Constitution) Valid() bool {
	switch c {
	case ConstitutionVata, ConstitutionPitta, ConstitutionKapha, ConstitutionTridosha:
		return true
	}
	return false
}

// Brand represents a product manufacturer
type Brand struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}

// Category represents a catalog category
type Category struct {
	ID           int64     `json:"id" db:"id"`
	ParentID     *int64    `json:"parent_id,omitempty" db:"parent_id"`
	Name         string    `json:"name" db:"name"`
	Slug         string    `json:"slug" db:"slug"`
	Description  string    `json:"description" db:"description"`
	ImageURL     string    `json:"image_url,omitempty" db:"image_url"`
	SortOrder    int       `json:"sort_order" db:"sort_order"`
	ProductCount int       `json:"product_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ProductImage is one gallery image of a product
type ProductImage struct {
	ID        int64  `json:"id" db:"id"`
	URL       string `json:"url" db:"url"`
	AltText   string `json:"alt_text" db:"alt_text"`
	SortOrder int    `json:"sort_order" db:"sort_order"`
	IsPrimary bool   `json:"is_primary" db:"is_primary"`
}

// ProductVariant is a purchasable form of a product (pack size, strength).
type ProductVariant struct {
	ID            int64            `json:"id" db:"id"`
	ProductID     int64            `json:"product_id" db:"product_id"`
	Name          string           `json:"name" db:"name"`
	SKU           string           `json:"sku" db:"sku"`
	SellingPrice  *decimal.Decimal `json:"selling_price,omitempty" db:"selling_price"`
	StockQuantity int              `json:"stock_quantity" db:"stock_quantity"`
}

// Product represents a product in the catalog
type Product struct {
	ID                   int64            `json:"id" db:"id"`
	Slug                 string           `json:"slug" db:"slug"`
	SKU                  string           `json:"sku" db:"sku"`
	Name                 string           `json:"name" db:"name"`
	ShortDescription     string           `json:"short_description" db:"short_description"`
	Description          string           `json:"description" db:"description"`
	BasePrice            decimal.Decimal  `json:"base_price" db:"base_price"`
	SellingPrice         decimal.Decimal  `json:"selling_price" db:"selling_price"`
	DiscountPercentage   decimal.Decimal  `json:"discount_percentage" db:"discount_percentage"`
	StockQuantity        int              `json:"stock_quantity" db:"stock_quantity"`
	LowStockThreshold    int              `json:"low_stock_threshold" db:"low_stock_threshold"`
	Brand                *Brand           `json:"brand,omitempty"`
	Categories           []Category       `json:"categories,omitempty"`
	Images               []ProductImage   `json:"images,omitempty"`
	Variants             []ProductVariant `json:"variants,omitempty"`
	IsFeatured           bool             `json:"is_featured" db:"is_featured"`
	IsActive             bool             `json:"is_active" db:"is_active"`
	PrescriptionRequired bool             `json:"prescription_required" db:"prescription_required"`
	Constitution         Constitution     `json:"constitution,omitempty" db:"constitution"`
	RatingAverage        decimal.Decimal  `json:"rating_average" db:"rating_average"`
	RatingCount          int              `json:"rating_count" db:"rating_count"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at" db:"updated_at"`
}

// InStock reports whether any units are available.
func (p *Product) InStock() bool {
	return p.StockQuantity > 0
}

// IsLowStock reports whether stock is at or below the low-stock threshold.
func (p *Product) IsLowStock() bool {
	return p.StockQuantity > 0 && p.StockQuantity <= p.LowStockThreshold
}

// Variant returns the variant with the given id.
func (p *Product) Variant(id int64) (*ProductVariant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// PriceFor returns the unit price of the product, honouring a variant price override.
func (p *Product) PriceFor(v *ProductVariant) decimal.Decimal {
	if v != nil && v.SellingPrice != nil {
		return *v.SellingPrice
	}
	return p.SellingPrice
}

// BrandFacet counts matching products per brand
type BrandFacet struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CategoryFacet counts matching products per category
type CategoryFacet struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// PriceRange is the min and max selling price among matching products
type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Availability counts in-stock and out-of-stock matching products
type Availability struct {
	InStock    int `json:"in_stock"`
	OutOfStock int `json:"out_of_stock"`
}

// Facets summarises the result set for building filter UIs
type Facets struct {
	Brands       []BrandFacet    `json:"brands"`
	Categories   []CategoryFacet `json:"categories"`
	PriceRange   PriceRange      `json:"price_range"`
	Availability Availability    `json:"availability"`
}

// ProductListResult is the envelope payload of a catalog query
type ProductListResult struct {
	Items  []Product `json:"items"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
	Facets Facets    `json:"facets"`
}
