package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/storefront/internal/cache"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/remote"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/tracing"
)

const (
	actionAdd     = "add"
	actionRemove  = "remove"
	actionRefresh = "refresh"
)

// WishlistService implements the wishlist operations. Unlike the cart add
// they wait for the server and only touch local state after it accepted.
type WishlistService struct {
	local  *cache.Local
	bus    *event.Bus
	api    remote.WishlistAPI
	locks  *SessionLocks
	logger *slog.Logger
	now    func() time.Time
}

// NewWishlistService creates a new wishlist service.
func NewWishlistService(
	local *cache.Local,
	bus *event.Bus,
	api remote.WishlistAPI,
	locks *SessionLocks,
	logger *slog.Logger,
) *WishlistService {
	return &WishlistService{
		local:  local,
		bus:    bus,
		api:    api,
		locks:  locks,
		logger: logger,
		now:    utcNow,
	}
}

// AddToWishlist adds the product on the server, then increments the local
// counter and publishes wishlist-updated and product-added-to-wishlist.
func (s *WishlistService) AddToWishlist(ctx context.Context, sess domain.Session, productID, productName string) error {
	return s.change(ctx, sess, productID, productName, actionAdd)
}

// RemoveFromWishlist removes the product on the server, then decrements the
// local counter (never below zero) and publishes wishlist-updated and
// product-removed-from-wishlist.
func (s *WishlistService) RemoveFromWishlist(ctx context.Context, sess domain.Session, productID, productName string) error {
	return s.change(ctx, sess, productID, productName, actionRemove)
}

// ToggleWishlist removes the product when it is on the wishlist and adds it
// otherwise. It reports whether the product is on the wishlist afterwards.
func (s *WishlistService) ToggleWishlist(ctx context.Context, sess domain.Session, productID, productName string) (bool, error) {
	if !sess.SignedIn() {
		wishlistOpsTotal.WithLabelValues("toggle", outcomeRejected).Inc()
		return false, apperrors.AuthRequired(msgWishlistSignIn)
	}

	present, err := s.IsInWishlist(ctx, sess, productID)
	if err != nil {
		return false, err
	}
	if present {
		if err := s.RemoveFromWishlist(ctx, sess, productID, productName); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := s.AddToWishlist(ctx, sess, productID, productName); err != nil {
		return false, err
	}
	return true, nil
}

// IsInWishlist answers from a fully loaded snapshot of the same user and
// asks the server otherwise. Guests have an empty wishlist.
func (s *WishlistService) IsInWishlist(ctx context.Context, sess domain.Session, productID string) (bool, error) {
	if !sess.SignedIn() {
		return false, nil
	}
	w, err := s.local.Wishlist(ctx, sess.ID)
	if err == nil && w.Loaded && w.UserID == sess.User.ID {
		return w.Contains(productID), nil
	}
	return s.api.InWishlist(ctx, sess.User.ID, productID)
}

// RefreshWishlist loads the full wishlist from the server, stores it with
// its count and publishes wishlist-updated.
func (s *WishlistService) RefreshWishlist(ctx context.Context, sess domain.Session) (domain.Wishlist, error) {
	ctx, span := tracing.StartSpan(ctx, "WishlistService.RefreshWishlist")
	defer span.End()

	if !sess.SignedIn() {
		wishlistOpsTotal.WithLabelValues(actionRefresh, outcomeRejected).Inc()
		return domain.Wishlist{}, apperrors.AuthRequired(msgWishlistSignIn)
	}
	userID := sess.User.ID

	entries, err := s.api.GetWishlist(ctx, userID)
	if err != nil {
		wishlistOpsTotal.WithLabelValues(actionRefresh, outcomeFailed).Inc()
		tracing.RecordError(span, err)
		return domain.Wishlist{}, err
	}
	if entries == nil {
		entries = []domain.WishlistEntry{}
	}
	w := domain.Wishlist{
		UserID:    userID,
		Entries:   entries,
		Loaded:    true,
		UpdatedAt: s.now(),
	}

	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	if err := s.local.SaveWishlist(ctx, sess.ID, w); err != nil {
		wishlistOpsTotal.WithLabelValues(actionRefresh, outcomeFailed).Inc()
		tracing.RecordError(span, err)
		return domain.Wishlist{}, localFailure(err, msgWishlistReadFailed)
	}
	s.bus.Publish(event.WishlistUpdated{SessionID: sess.ID, UserID: userID, Count: len(entries)})
	wishlistOpsTotal.WithLabelValues(actionRefresh, outcomeOK).Inc()
	return w, nil
}

// Wishlist returns the cached snapshot of the signed-in user. A snapshot left
// by another user reads as empty.
func (s *WishlistService) Wishlist(ctx context.Context, sess domain.Session) (domain.Wishlist, error) {
	if !sess.SignedIn() {
		return domain.Wishlist{}, apperrors.AuthRequired(msgWishlistSignIn)
	}
	w, err := s.local.Wishlist(ctx, sess.ID)
	if err != nil {
		return domain.Wishlist{}, localFailure(err, msgWishlistReadFailed)
	}
	if w.UserID != sess.User.ID {
		w = domain.Wishlist{UserID: sess.User.ID}
	}
	if w.Entries == nil {
		w.Entries = []domain.WishlistEntry{}
	}
	return w, nil
}

// WishlistCount returns the persisted counter.
func (s *WishlistService) WishlistCount(ctx context.Context, sess domain.Session) (int, error) {
	count, err := s.local.WishlistCount(ctx, sess.ID)
	if err != nil {
		return 0, localFailure(err, msgWishlistReadFailed)
	}
	return count, nil
}

func (s *WishlistService) change(ctx context.Context, sess domain.Session, productID, productName, action string) error {
	ctx, span := tracing.StartSpan(ctx, "WishlistService."+action,
		attribute.String("product.id", productID),
	)
	defer span.End()

	if !sess.SignedIn() {
		wishlistOpsTotal.WithLabelValues(action, outcomeRejected).Inc()
		return apperrors.AuthRequired(msgWishlistSignIn)
	}
	if productID == "" {
		wishlistOpsTotal.WithLabelValues(action, outcomeRejected).Inc()
		return apperrors.InvalidInput("product id is required")
	}
	userID := sess.User.ID

	var err error
	if action == actionAdd {
		err = s.api.AddToWishlist(ctx, userID, productID)
	} else {
		err = s.api.RemoveFromWishlist(ctx, userID, productID)
	}
	if err != nil {
		wishlistOpsTotal.WithLabelValues(action, outcomeFailed).Inc()
		tracing.RecordError(span, err)
		s.logger.InfoContext(ctx, "wishlist change rejected",
			slog.String("action", action),
			slog.String("user_id", userID),
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return err
	}

	count, err := s.applyLocal(ctx, sess.ID, userID, productID, productName, action)
	if err != nil {
		wishlistOpsTotal.WithLabelValues(action, outcomeFailed).Inc()
		tracing.RecordError(span, err)
		s.logger.ErrorContext(ctx, "local wishlist write failed",
			slog.String("session_id", sess.ID),
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return localFailure(err, msgWishlistSaveFailed)
	}

	wishlistOpsTotal.WithLabelValues(action, outcomeOK).Inc()
	s.logger.InfoContext(ctx, "wishlist changed",
		slog.String("action", action),
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.Int("count", count),
	)
	return nil
}

// applyLocal updates the snapshot and the counter, then publishes the
// notifications, all under the session lock. A loaded snapshot is complete,
// so its size is the count; otherwise the counter moves by one.
func (s *WishlistService) applyLocal(ctx context.Context, sessionID, userID, productID, productName, action string) (int, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	count, err := s.local.WishlistCount(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	w, err := s.local.Wishlist(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if w.UserID != userID {
		w = domain.Wishlist{UserID: userID}
	}

	now := s.now()
	if action == actionAdd {
		w.Put(domain.WishlistEntry{
			ProductID: productID,
			UserID:    userID,
			AddedAt:   now,
			Product:   &domain.Product{ID: productID, Name: productName},
		})
		count++
	} else {
		w.Remove(productID)
		count--
	}
	if w.Loaded {
		count = len(w.Entries)
	}
	count = max(count, 0)
	w.UpdatedAt = now
	if err := s.local.SaveWishlistChange(ctx, sessionID, w, count); err != nil {
		return 0, err
	}

	s.bus.Publish(event.WishlistUpdated{SessionID: sessionID, UserID: userID, Count: count})
	product := event.WishlistProduct{
		SessionID:   sessionID,
		UserID:      userID,
		ProductID:   productID,
		ProductName: productName,
	}
	if action == actionAdd {
		s.bus.Publish(event.ProductAddedToWishlist{WishlistProduct: product})
	} else {
		s.bus.Publish(event.ProductRemovedFromWishlist{WishlistProduct: product})
	}
	return count, nil
}
