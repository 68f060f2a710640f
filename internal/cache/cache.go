// Package cache is the per-session local store that stands in for browser
// storage: the cart array, the wishlist snapshot, the counters and the user
// record of one shopper session.
package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned by Store.Get when the key is not set.
var ErrMiss = errors.New("cache: miss")

// Keys of the per-session key space.
const (
	KeyCart              = "cart"
	KeyCartCount         = "cart_count"
	KeyCartUpdatedAt     = "cart_updated_at"
	KeyCartSyncedAt      = "cart_synced_at"
	KeyWishlist          = "wishlist"
	KeyWishlistCount     = "wishlist_count"
	KeyWishlistUpdatedAt = "wishlist_updated_at"
	KeyUser              = "user"
)

// Entry is a single key/value write.
type Entry struct {
	Key   string
	Value []byte
}

// Store is a session-scoped key/value store. Set writes all entries of one
// call atomically.
type Store interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, error)
	Set(ctx context.Context, sessionID string, entries ...Entry) error
	// Delete removes keys; with no keys it drops the whole session.
	Delete(ctx context.Context, sessionID string, keys ...string) error
	Ping(ctx context.Context) error
}

// ChangeNotifier is told about every key written through Local.
type ChangeNotifier interface {
	StorageChanged(ctx context.Context, sessionID, key string)
}
