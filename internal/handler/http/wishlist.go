package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
)

// WishlistHandler serves the wishlist page and the heart-icon actions.
type WishlistHandler struct {
	wishlist *service.WishlistService
	logger   *slog.Logger
}

// NewWishlistHandler creates a new wishlist HTTP handler.
func NewWishlistHandler(wishlist *service.WishlistService, logger *slog.Logger) *WishlistHandler {
	return &WishlistHandler{wishlist: wishlist, logger: logger}
}

// WishlistItemRequest is the JSON body of a wishlist add or toggle.
type WishlistItemRequest struct {
	ProductID   string `json:"product_id" validate:"required,max=64"`
	ProductName string `json:"product_name" validate:"max=255"`
}

type wishlistView struct {
	Entries []domain.WishlistEntry `json:"entries"`
	Count   int                    `json:"count"`
	Loaded  bool                   `json:"loaded"`
}

type membershipView struct {
	ProductID  string `json:"product_id"`
	InWishlist bool   `json:"in_wishlist"`
	Count      int    `json:"count"`
}

// GetWishlist handles GET /api/v1/wishlist. With refresh=true, or when no
// full snapshot is cached yet, the list is loaded from the server.
func (h *WishlistHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	list, err := h.wishlist.Wishlist(ctx, sess)
	if err == nil && (refresh || !list.Loaded) {
		list, err = h.wishlist.RefreshWishlist(ctx, sess)
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	count, err := h.wishlist.WishlistCount(ctx, sess)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, wishlistView{
		Entries: list.Entries,
		Count:   count,
		Loaded:  list.Loaded,
	})
}

// Add handles POST /api/v1/wishlist
func (h *WishlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req WishlistItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	sess := sessionFrom(r.Context())
	if err := h.wishlist.AddToWishlist(r.Context(), sess, req.ProductID, req.ProductName); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeMembership(w, r, sess, req.ProductID, true, http.StatusCreated)
}

// Remove handles DELETE /api/v1/wishlist/{productID}?name=
func (h *WishlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	sess := sessionFrom(r.Context())
	if err := h.wishlist.RemoveFromWishlist(r.Context(), sess, productID, r.URL.Query().Get("name")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeMembership(w, r, sess, productID, false, http.StatusOK)
}

// Toggle handles POST /api/v1/wishlist/toggle
func (h *WishlistHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req WishlistItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	sess := sessionFrom(r.Context())
	present, err := h.wishlist.ToggleWishlist(r.Context(), sess, req.ProductID, req.ProductName)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeMembership(w, r, sess, req.ProductID, present, http.StatusOK)
}

// Check handles GET /api/v1/wishlist/{productID}
func (h *WishlistHandler) Check(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	sess := sessionFrom(r.Context())
	present, err := h.wishlist.IsInWishlist(r.Context(), sess, productID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeMembership(w, r, sess, productID, present, http.StatusOK)
}

func (h *WishlistHandler) writeMembership(w http.ResponseWriter, r *http.Request, sess domain.Session, productID string, present bool, status int) {
	count, err := h.wishlist.WishlistCount(r.Context(), sess)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, status, membershipView{ProductID: productID, InWishlist: present, Count: count})
}
