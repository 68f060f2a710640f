package event

import "github.com/utafrali/storefront/internal/domain"

// Topic names a bus channel.
type Topic string

// Bus topics.
const (
	TopicCartUpdated                Topic = "cart-updated"
	TopicProductAddedToCart         Topic = "product-added-to-cart"
	TopicForceCartUpdate            Topic = "force-cart-update"
	TopicWishlistUpdated            Topic = "wishlist-updated"
	TopicProductAddedToWishlist     Topic = "product-added-to-wishlist"
	TopicProductRemovedFromWishlist Topic = "product-removed-from-wishlist"
	TopicStorageChange              Topic = "storage-change"
)

// Topics lists every bus topic.
var Topics = []Topic{
	TopicCartUpdated,
	TopicProductAddedToCart,
	TopicForceCartUpdate,
	TopicWishlistUpdated,
	TopicProductAddedToWishlist,
	TopicProductRemovedFromWishlist,
	TopicStorageChange,
}

// replayed topics hand their last payload to session subscribers that
// register after it was published.
var replayed = map[Topic]bool{
	TopicCartUpdated:     true,
	TopicWishlistUpdated: true,
}

// Payload is implemented by every typed event body.
type Payload interface {
	Topic() Topic
	Session() string
}

// CartUpdated carries the full cart after a change.
type CartUpdated struct {
	SessionID string            `json:"session_id"`
	Actor     string            `json:"actor"`
	Items     []domain.CartItem `json:"items"`
	Count     int               `json:"count"`
}

func (CartUpdated) Topic() Topic      { return TopicCartUpdated }
func (p CartUpdated) Session() string { return p.SessionID }

// ProductAddedToCart names the product of an accepted cart add.
type ProductAddedToCart struct {
	SessionID   string `json:"session_id"`
	Actor       string `json:"actor"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

func (ProductAddedToCart) Topic() Topic      { return TopicProductAddedToCart }
func (p ProductAddedToCart) Session() string { return p.SessionID }

// ForceCartUpdate asks views to re-render from the given cart.
type ForceCartUpdate struct {
	SessionID string            `json:"session_id"`
	Items     []domain.CartItem `json:"items"`
	Count     int               `json:"count"`
}

func (ForceCartUpdate) Topic() Topic      { return TopicForceCartUpdate }
func (p ForceCartUpdate) Session() string { return p.SessionID }

// WishlistUpdated carries the wishlist counter after a change.
type WishlistUpdated struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Count     int    `json:"count"`
}

func (WishlistUpdated) Topic() Topic      { return TopicWishlistUpdated }
func (p WishlistUpdated) Session() string { return p.SessionID }

// WishlistProduct identifies the product of a wishlist change.
type WishlistProduct struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
}

func (p WishlistProduct) Session() string { return p.SessionID }

// ProductAddedToWishlist is published after a confirmed wishlist add.
type ProductAddedToWishlist struct{ WishlistProduct }

func (ProductAddedToWishlist) Topic() Topic { return TopicProductAddedToWishlist }

// ProductRemovedFromWishlist is published after a confirmed wishlist removal.
type ProductRemovedFromWishlist struct{ WishlistProduct }

func (ProductRemovedFromWishlist) Topic() Topic { return TopicProductRemovedFromWishlist }

// StorageChange reports a write to the local cache.
type StorageChange struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
}

func (StorageChange) Topic() Topic      { return TopicStorageChange }
func (p StorageChange) Session() string { return p.SessionID }
