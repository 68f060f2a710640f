package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/utafrali/storefront/internal/domain"
)

// Local gives typed access to the session key space. Missing or malformed
// values read as their empty defaults; only store failures are returned.
type Local struct {
	store    Store
	notifier ChangeNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewLocal creates a typed view over store. notifier may be nil.
func NewLocal(store Store, notifier ChangeNotifier, logger *slog.Logger) *Local {
	return &Local{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the underlying store.
func (l *Local) Store() Store {
	return l.store
}

// Cart returns the cached cart.
func (l *Local) Cart(ctx context.Context, sessionID string) (domain.Cart, error) {
	return getJSON[domain.Cart](ctx, l, sessionID, KeyCart)
}

// SaveCart persists the cart array, then its item count, as a local mutation.
func (l *Local) SaveCart(ctx context.Context, sessionID string, cart domain.Cart) error {
	return l.saveCart(ctx, sessionID, cart, KeyCartUpdatedAt)
}

// SaveSyncedCart persists a cart that was just reconciled with the server.
func (l *Local) SaveSyncedCart(ctx context.Context, sessionID string, cart domain.Cart) error {
	return l.saveCart(ctx, sessionID, cart, KeyCartSyncedAt)
}

func (l *Local) saveCart(ctx context.Context, sessionID string, cart domain.Cart, stampKey string) error {
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	return l.set(ctx, sessionID,
		Entry{Key: KeyCart, Value: data},
		Entry{Key: KeyCartCount, Value: []byte(strconv.Itoa(cart.ItemCount()))},
		Entry{Key: stampKey, Value: l.stamp()},
	)
}

// CartCount returns the last persisted cart item count.
func (l *Local) CartCount(ctx context.Context, sessionID string) (int, error) {
	return l.getInt(ctx, sessionID, KeyCartCount)
}

// Wishlist returns the cached wishlist snapshot.
func (l *Local) Wishlist(ctx context.Context, sessionID string) (domain.Wishlist, error) {
	return getJSON[domain.Wishlist](ctx, l, sessionID, KeyWishlist)
}

// SaveWishlist stores a full wishlist snapshot and sets the count to its size.
func (l *Local) SaveWishlist(ctx context.Context, sessionID string, w domain.Wishlist) error {
	if w.Entries == nil {
		w.Entries = []domain.WishlistEntry{}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal wishlist: %w", err)
	}
	return l.set(ctx, sessionID,
		Entry{Key: KeyWishlist, Value: data},
		Entry{Key: KeyWishlistCount, Value: []byte(strconv.Itoa(len(w.Entries)))},
		Entry{Key: KeyWishlistUpdatedAt, Value: l.stamp()},
	)
}

// WishlistCount returns the persisted wishlist counter.
func (l *Local) WishlistCount(ctx context.Context, sessionID string) (int, error) {
	return l.getInt(ctx, sessionID, KeyWishlistCount)
}

// SaveWishlistChange stores the snapshot and the counter in one write, so a
// failure leaves both untouched. count is floored at zero.
func (l *Local) SaveWishlistChange(ctx context.Context, sessionID string, w domain.Wishlist, count int) error {
	if w.Entries == nil {
		w.Entries = []domain.WishlistEntry{}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal wishlist: %w", err)
	}
	return l.set(ctx, sessionID,
		Entry{Key: KeyWishlist, Value: data},
		Entry{Key: KeyWishlistCount, Value: []byte(strconv.Itoa(max(count, 0)))},
		Entry{Key: KeyWishlistUpdatedAt, Value: l.stamp()},
	)
}

// SyncState assembles the counters and timestamps of a session.
func (l *Local) SyncState(ctx context.Context, sessionID string) (domain.SyncState, error) {
	var (
		state domain.SyncState
		err   error
	)
	if state.CartCount, err = l.CartCount(ctx, sessionID); err != nil {
		return state, err
	}
	if state.WishlistCount, err = l.WishlistCount(ctx, sessionID); err != nil {
		return state, err
	}
	if state.LastLocalMutation, err = l.getTime(ctx, sessionID, KeyCartUpdatedAt); err != nil {
		return state, err
	}
	if state.LastServerSync, err = l.getTime(ctx, sessionID, KeyCartSyncedAt); err != nil {
		return state, err
	}
	if state.LastWishlistUpdate, err = l.getTime(ctx, sessionID, KeyWishlistUpdatedAt); err != nil {
		return state, err
	}
	return state, nil
}

// User returns the stored user record, or nil for a guest.
func (l *Local) User(ctx context.Context, sessionID string) (*domain.User, error) {
	u, err := getJSON[domain.User](ctx, l, sessionID, KeyUser)
	if err != nil || u.ID == "" {
		return nil, err
	}
	return &u, nil
}

// SaveUser stores the signed-in user record.
func (l *Local) SaveUser(ctx context.Context, sessionID string, u domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return l.set(ctx, sessionID, Entry{Key: KeyUser, Value: data})
}

// ClearUser removes the user record together with the user's wishlist data.
func (l *Local) ClearUser(ctx context.Context, sessionID string) error {
	keys := []string{KeyUser, KeyWishlist, KeyWishlistCount, KeyWishlistUpdatedAt}
	if err := l.store.Delete(ctx, sessionID, keys...); err != nil {
		return fmt.Errorf("clear user: %w", err)
	}
	for _, k := range keys {
		l.notify(ctx, sessionID, k)
	}
	return nil
}

func (l *Local) set(ctx context.Context, sessionID string, entries ...Entry) error {
	if err := l.store.Set(ctx, sessionID, entries...); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	for _, e := range entries {
		l.notify(ctx, sessionID, e.Key)
	}
	return nil
}

func (l *Local) notify(ctx context.Context, sessionID, key string) {
	if l.notifier != nil {
		l.notifier.StorageChanged(ctx, sessionID, key)
	}
}

func (l *Local) stamp() []byte {
	return []byte(l.now().Format(time.RFC3339Nano))
}

// get returns nil data on a miss.
func (l *Local) get(ctx context.Context, sessionID, key string) ([]byte, error) {
	data, err := l.store.Get(ctx, sessionID, key)
	if errors.Is(err, ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache read %s: %w", key, err)
	}
	return data, nil
}

func getJSON[T any](ctx context.Context, l *Local, sessionID, key string) (T, error) {
	var v T
	data, err := l.get(ctx, sessionID, key)
	if err != nil || data == nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		l.corrupt(ctx, sessionID, key, err)
		var zero T
		return zero, nil
	}
	return v, nil
}

func (l *Local) getInt(ctx context.Context, sessionID, key string) (int, error) {
	data, err := l.get(ctx, sessionID, key)
	if err != nil || data == nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(data))
	if err != nil || n < 0 {
		l.corrupt(ctx, sessionID, key, fmt.Errorf("bad counter %q", data))
		return 0, nil
	}
	return n, nil
}

func (l *Local) getTime(ctx context.Context, sessionID, key string) (time.Time, error) {
	data, err := l.get(ctx, sessionID, key)
	if err != nil || data == nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		l.corrupt(ctx, sessionID, key, err)
		return time.Time{}, nil
	}
	return t, nil
}

func (l *Local) corrupt(ctx context.Context, sessionID, key string, err error) {
	l.logger.WarnContext(ctx, "malformed cache value, using default",
		slog.String("session_id", sessionID),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}
