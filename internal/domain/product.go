package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a read-only catalog entry.
type Product struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Price          decimal.Decimal  `json:"price"`
	OriginalPrice  *decimal.Decimal `json:"original_price,omitempty"`
	Stock          int              `json:"stock"`
	CategoryID     string           `json:"category_id"`
	MainImage      string           `json:"main_image"`
	DetailedImages []string         `json:"detailed_images"`
	CreatedAt      time.Time        `json:"created_at"`
}

// InStock reports whether at least one unit is available.
func (p *Product) InStock() bool {
	return p.Stock > 0
}

// HasDiscount reports whether the product shows a pre-discount price.
func (p *Product) HasDiscount() bool {
	return p.OriginalPrice != nil && p.OriginalPrice.GreaterThan(p.Price)
}

// DiscountPercent returns the rounded discount percentage, or 0 without a discount.
func (p *Product) DiscountPercent() int {
	if !p.HasDiscount() || p.OriginalPrice.IsZero() {
		return 0
	}
	off := p.OriginalPrice.Sub(p.Price).Div(*p.OriginalPrice).Mul(decimal.NewFromInt(100))
	return int(off.Round(0).IntPart())
}

// Category groups products in the catalog.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}
