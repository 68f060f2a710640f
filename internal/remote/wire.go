package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

// flexID accepts both JSON numbers and strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// envelope matches {"data": ...} bodies.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// decodeBody unmarshals either an enveloped or a bare body into dst.
func decodeBody(body []byte, dst any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		body = env.Data
	}
	return json.Unmarshal(body, dst)
}

type productDTO struct {
	ID             flexID           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Price          decimal.Decimal  `json:"price"`
	OriginalPrice  *decimal.Decimal `json:"originalPrice"`
	Stock          int              `json:"stock"`
	CategoryID     flexID           `json:"categoryId"`
	MainImage      string           `json:"mainImage"`
	DetailedImages []string         `json:"detailedImages"`
	CreatedAt      time.Time        `json:"createdAt"`
}

func (p productDTO) toDomain() domain.Product {
	stock := p.Stock
	if stock < 0 {
		stock = 0
	}
	return domain.Product{
		ID:             string(p.ID),
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		OriginalPrice:  p.OriginalPrice,
		Stock:          stock,
		CategoryID:     string(p.CategoryID),
		MainImage:      p.MainImage,
		DetailedImages: p.DetailedImages,
		CreatedAt:      p.CreatedAt,
	}
}

type categoryDTO struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type cartItemDTO struct {
	ID        flexID          `json:"id"`
	ProductID flexID          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

type cartDTO struct {
	Items []cartItemDTO `json:"items"`
}

func (c cartItemDTO) toDomain() domain.CartItem {
	return domain.CartItem{
		ID:        string(c.ID),
		ProductID: string(c.ProductID),
		Name:      c.Name,
		Price:     c.Price,
		Image:     c.Image,
		Quantity:  c.Quantity,
		Synced:    true,
	}
}

type wishlistEntryDTO struct {
	ID        flexID      `json:"id"`
	ProductID flexID      `json:"productId"`
	UserID    flexID      `json:"userId"`
	AddedAt   time.Time   `json:"addedAt"`
	Product   *productDTO `json:"product"`
}

func (w wishlistEntryDTO) toDomain() domain.WishlistEntry {
	e := domain.WishlistEntry{
		ID:        string(w.ID),
		ProductID: string(w.ProductID),
		UserID:    string(w.UserID),
		AddedAt:   w.AddedAt,
	}
	if w.Product != nil {
		p := w.Product.toDomain()
		e.Product = &p
		if e.ProductID == "" {
			e.ProductID = p.ID
		}
	}
	return e
}

type checkDTO struct {
	InWishlist bool `json:"inWishlist"`
}
