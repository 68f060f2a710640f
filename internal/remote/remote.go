// Package remote is the client for the storefront REST API, the source of
// truth for catalog, cart and wishlist data.
package remote

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
)

// CatalogAPI reads products and categories.
type CatalogAPI interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// CartAPI reads and writes the server cart of an actor.
type CartAPI interface {
	// AddToCart sends one add. With retry set the request goes through the
	// retrying client.
	AddToCart(ctx context.Context, req AddToCartRequest, retry bool) error
	GetCart(ctx context.Context, actorID string) ([]domain.CartItem, error)
}

// WishlistAPI manages the wishlist of a signed-in user.
type WishlistAPI interface {
	GetWishlist(ctx context.Context, userID string) ([]domain.WishlistEntry, error)
	AddToWishlist(ctx context.Context, userID, productID string) error
	RemoveFromWishlist(ctx context.Context, userID, productID string) error
	InWishlist(ctx context.Context, userID, productID string) (bool, error)
}

// AddToCartRequest is the body of POST /cart.
type AddToCartRequest struct {
	UserID          string              `json:"userId"`
	ProductID       string              `json:"productId"`
	Quantity        int                 `json:"quantity"`
	SelectedOptions map[string]string   `json:"selectedOptions,omitempty"`
	Attachments     *domain.Attachments `json:"attachments,omitempty"`
}

// NewAddToCartRequest builds the outbound body. Options are sent only when
// non-empty and attachments only when they carry content.
func NewAddToCartRequest(actorID string, in domain.AddToCartInput) AddToCartRequest {
	req := AddToCartRequest{
		UserID:    actorID,
		ProductID: in.ProductID,
		Quantity:  in.Quantity,
	}
	if len(in.SelectedOptions) > 0 {
		req.SelectedOptions = in.SelectedOptions
	}
	if in.Attachments.HasContent() {
		req.Attachments = in.Attachments
	}
	return req
}
