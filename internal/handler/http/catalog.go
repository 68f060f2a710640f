package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/pagination"
)

// CatalogHandler serves the product list and category views.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog HTTP handler.
func NewCatalogHandler(catalog *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// productView is a product with its derived display fields.
type productView struct {
	domain.Product
	InStock         bool             `json:"in_stock"`
	HasDiscount     bool             `json:"has_discount"`
	DiscountPercent int              `json:"discount_percent"`
	DisplayPrice    decimal.Decimal  `json:"display_price"`
	StrikePrice     *decimal.Decimal `json:"strike_price,omitempty"`
}

func newProductView(p domain.Product) productView {
	v := productView{
		Product:         p,
		InStock:         p.InStock(),
		HasDiscount:     p.HasDiscount(),
		DiscountPercent: p.DiscountPercent(),
		DisplayPrice:    p.Price,
	}
	if v.HasDiscount {
		v.StrikePrice = p.OriginalPrice
	}
	return v
}

// ListProducts handles GET /api/v1/products?category=&search=&sort=&page=&per_page=
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sort, err := service.ParseSort(q.Get("sort"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.catalog.ListProducts(r.Context(), service.ProductFilter{
		CategoryID: q.Get("category"),
		Search:     q.Get("search"),
		Sort:       sort,
		Page:       pagination.FromRequest(r),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	views := make([]productView, 0, len(res.Data))
	for _, p := range res.Data {
		views = append(views, newProductView(p))
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.Result[productView]{
		Data:       views,
		TotalCount: res.TotalCount,
		Page:       res.Page,
		PerPage:    res.PerPage,
		TotalPages: res.TotalPages,
		HasNext:    res.HasNext,
		HasPrev:    res.HasPrev,
	})
}

// GetProduct handles GET /api/v1/products/{id}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newProductView(*p))
}

// ListCategories handles GET /api/v1/categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, categories)
}
