package domain

import "time"

// WishlistEntry is one product on a signed-in shopper's wishlist.
type WishlistEntry struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	AddedAt   time.Time `json:"added_at"`
	Product   *Product  `json:"product,omitempty"`
}

// Wishlist is the cached wishlist snapshot. Loaded is set once the full list
// was fetched from the server; before that Entries only holds the changes
// made in this session.
type Wishlist struct {
	UserID    string          `json:"user_id"`
	Entries   []WishlistEntry `json:"entries"`
	Loaded    bool            `json:"loaded"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Contains reports whether productID is on the wishlist.
func (w *Wishlist) Contains(productID string) bool {
	return w.indexOf(productID) >= 0
}

// Put adds an entry unless one for the same product exists.
func (w *Wishlist) Put(entry WishlistEntry) bool {
	if w.Contains(entry.ProductID) {
		return false
	}
	w.Entries = append(w.Entries, entry)
	return true
}

// Remove drops the entry for productID.
func (w *Wishlist) Remove(productID string) bool {
	idx := w.indexOf(productID)
	if idx < 0 {
		return false
	}
	w.Entries = append(w.Entries[:idx], w.Entries[idx+1:]...)
	return true
}

func (w *Wishlist) indexOf(productID string) int {
	for i := range w.Entries {
		if w.Entries[i].ProductID == productID {
			return i
		}
	}
	return -1
}
