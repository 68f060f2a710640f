package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
)

const msgOutOfStock = "This product is out of stock."

// CartHandler serves the cart snapshot and the add-to-cart actions.
type CartHandler struct {
	cart    *service.CartService
	card    *service.ProductCard
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(cart *service.CartService, card *service.ProductCard, catalog *service.CatalogService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		cart:    cart,
		card:    card,
		catalog: catalog,
		logger:  logger,
	}
}

// --- Request / response DTOs ---

// CardAddRequest is the JSON body of a product-card add.
type CardAddRequest struct {
	CardID          string              `json:"card_id" validate:"required,max=64"`
	Quantity        int                 `json:"quantity" validate:"omitempty,min=1,max=999"`
	SelectedOptions map[string]string   `json:"selected_options,omitempty" validate:"max=20"`
	Attachments     *domain.Attachments `json:"attachments,omitempty"`
}

type cartView struct {
	Items []domain.CartItem `json:"items"`
	Count int               `json:"count"`
	Total decimal.Decimal   `json:"total"`
	State domain.SyncState  `json:"state"`
}

type cardAddView struct {
	Accepted  bool `json:"accepted"`
	CartCount int  `json:"cart_count"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	cart, err := h.cart.Cart(r.Context(), sess)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, r, sess, cart, http.StatusOK)
}

// AddItem handles POST /api/v1/cart/items. It is the unified add without the
// card guard or stock gate.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var in domain.AddToCartInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	sess := sessionFrom(r.Context())
	if err := h.cart.AddToCart(r.Context(), sess, in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	cart, err := h.cart.Cart(r.Context(), sess)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, r, sess, cart, http.StatusAccepted)
}

// CardAdd handles POST /api/v1/products/{id}/cart. The product card refuses
// out-of-stock products and drops clicks rejected by the card guard.
func (h *CartHandler) CardAdd(w http.ResponseWriter, r *http.Request) {
	var req CardAddRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if !product.InStock() {
		httputil.WriteError(w, r, apperrors.Conflict(msgOutOfStock), h.logger)
		return
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	sess := sessionFrom(r.Context())
	accepted, err := h.card.AddToCart(r.Context(), sess, req.CardID, domain.AddToCartInput{
		ProductID:       product.ID,
		ProductName:     product.Name,
		Quantity:        quantity,
		Price:           product.Price,
		Image:           product.MainImage,
		SelectedOptions: req.SelectedOptions,
		Attachments:     req.Attachments,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	count, err := h.cart.CartCount(r.Context(), sess)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	status := http.StatusAccepted
	if !accepted {
		status = http.StatusOK
	}
	httputil.WriteData(w, status, cardAddView{Accepted: accepted, CartCount: count})
}

// Sync handles POST /api/v1/cart/sync
func (h *CartHandler) Sync(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	cart, err := h.cart.SyncWithServer(r.Context(), sess)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, r, sess, cart, http.StatusOK)
}

// Force handles POST /api/v1/cart/force
func (h *CartHandler) Force(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	cart, err := h.cart.ForceCartUpdate(r.Context(), sess)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, r, sess, cart, http.StatusOK)
}

func (h *CartHandler) writeCart(w http.ResponseWriter, r *http.Request, sess domain.Session, cart domain.Cart, status int) {
	state, err := h.cart.SyncState(r.Context(), sess)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	items := cart.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	httputil.WriteData(w, status, cartView{
		Items: items,
		Count: cart.ItemCount(),
		Total: cart.Total(),
		State: state,
	})
}
