package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/remote"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

// SortMode orders the product list.
type SortMode string

const (
	SortNewest    SortMode = "newest"
	SortPriceAsc  SortMode = "price_asc"
	SortPriceDesc SortMode = "price_desc"
	SortNameAsc   SortMode = "name_asc"
)

// ParseSort maps a query value to a SortMode. Empty means SortNewest.
func ParseSort(raw string) (SortMode, error) {
	switch mode := SortMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return SortNewest, nil
	case SortNewest, SortPriceAsc, SortPriceDesc, SortNameAsc:
		return mode, nil
	default:
		return "", apperrors.InvalidInput("sort must be one of newest, price_asc, price_desc, name_asc")
	}
}

// ProductFilter narrows the product list.
type ProductFilter struct {
	CategoryID string
	Search     string
	Sort       SortMode
	Page       pagination.Params
}

// CatalogService is the view model of the product list.
type CatalogService struct {
	api    remote.CatalogAPI
	group  singleflight.Group
	logger *slog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(api remote.CatalogAPI, logger *slog.Logger) *CatalogService {
	return &CatalogService{api: api, logger: logger}
}

// ListProducts fetches the catalog and filters, sorts and pages it locally.
// newest keeps catalog order.
func (c *CatalogService) ListProducts(ctx context.Context, f ProductFilter) (pagination.Result[domain.Product], error) {
	products, err := c.products(ctx)
	if err != nil {
		return pagination.Result[domain.Product]{}, err
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	filtered := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if f.CategoryID != "" && p.CategoryID != f.CategoryID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		filtered = append(filtered, p)
	}

	sortProducts(filtered, f.Sort)
	return pagination.Slice(filtered, f.Page), nil
}

// GetProduct returns one product.
func (c *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	return c.api.GetProduct(ctx, id)
}

// ListCategories returns all categories.
func (c *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := c.api.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	return categories, nil
}

// products coalesces concurrent catalog fetches. The result is shared, so
// callers must copy before reordering.
func (c *CatalogService) products(ctx context.Context) ([]domain.Product, error) {
	v, err, shared := c.group.Do("products", func() (any, error) {
		return c.api.ListProducts(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.DebugContext(ctx, "catalog fetch shared")
	}
	return v.([]domain.Product), nil
}

func sortProducts(products []domain.Product, mode SortMode) {
	switch mode {
	case SortPriceAsc:
		slices.SortStableFunc(products, func(a, b domain.Product) int { return a.Price.Cmp(b.Price) })
	case SortPriceDesc:
		slices.SortStableFunc(products, func(a, b domain.Product) int { return b.Price.Cmp(a.Price) })
	case SortNameAsc:
		slices.SortStableFunc(products, func(a, b domain.Product) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
	}
}
