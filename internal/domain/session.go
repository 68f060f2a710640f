package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the signed-in shopper record kept for the session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Session is the explicit per-request context handed to every unified
// operation. A nil User means the shopper browses as a guest.
type Session struct {
	ID   string
	User *User
}

// SignedIn reports whether a user is attached.
func (s Session) SignedIn() bool {
	return s.User != nil && s.User.ID != ""
}

// Actor returns the user ID. A guest gets guestPrefix joined with the
// session id, so two guests never share a server cart.
func (s Session) Actor(guestPrefix string) string {
	if s.SignedIn() {
		return s.User.ID
	}
	return guestPrefix + ":" + s.ID
}

// SyncState holds the last-known counts and timestamps for a session.
type SyncState struct {
	CartCount          int       `json:"cart_count"`
	WishlistCount      int       `json:"wishlist_count"`
	LastLocalMutation  time.Time `json:"last_local_mutation"`
	LastServerSync     time.Time `json:"last_server_sync"`
	LastWishlistUpdate time.Time `json:"last_wishlist_update"`
}

// Attachments is the optional free-form payload sent with a cart add.
type Attachments struct {
	Text   string   `json:"text,omitempty" validate:"max=2000"`
	Images []string `json:"images,omitempty" validate:"max=5,dive,url"`
}

// HasContent reports whether any text or image is present.
func (a *Attachments) HasContent() bool {
	return a != nil && (a.Text != "" || len(a.Images) > 0)
}

// AddToCartInput is the request for the unified cart add.
type AddToCartInput struct {
	ProductID       string            `json:"product_id" validate:"required,max=64"`
	ProductName     string            `json:"product_name" validate:"max=255"`
	Quantity        int               `json:"quantity" validate:"required,min=1,max=999"`
	Price           decimal.Decimal   `json:"price"`
	Image           string            `json:"image,omitempty"`
	SelectedOptions map[string]string `json:"selected_options,omitempty" validate:"max=20"`
	Attachments     *Attachments      `json:"attachments,omitempty"`
}
