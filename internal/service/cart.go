package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/storefront/internal/cache"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/remote"
	"github.com/utafrali/storefront/internal/worker"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/pkg/validator"
)

const taskRemoteCartAdd = "cart.remote_add"

// CartService implements the optimistic cart add and the cart reads.
type CartService struct {
	local   *cache.Local
	bus     *event.Bus
	api     remote.CartAPI
	syncer  *SyncManager
	queue   *worker.Queue
	locks   *SessionLocks
	guestID string
	logger  *slog.Logger
	now     func() time.Time
}

// NewCartService creates a new cart service.
func NewCartService(
	local *cache.Local,
	bus *event.Bus,
	api remote.CartAPI,
	syncer *SyncManager,
	queue *worker.Queue,
	locks *SessionLocks,
	guestID string,
	logger *slog.Logger,
) *CartService {
	return &CartService{
		local:   local,
		bus:     bus,
		api:     api,
		syncer:  syncer,
		queue:   queue,
		locks:   locks,
		guestID: guestID,
		logger:  logger,
		now:     utcNow,
	}
}

// AddToCart merges the product into the local cart, persists the cart and
// its count, publishes cart-updated and product-added-to-cart, then hands the
// server call to the background queue. A nil error means the local update
// succeeded; the outcome of the server call never reaches the caller.
// Stock is not checked here.
func (s *CartService) AddToCart(ctx context.Context, sess domain.Session, in domain.AddToCartInput) error {
	ctx, span := tracing.StartSpan(ctx, "CartService.AddToCart",
		attribute.String("product.id", in.ProductID),
		attribute.Int("cart.quantity", in.Quantity),
	)
	defer span.End()

	if err := validator.Validate(in); err != nil {
		cartAddsTotal.WithLabelValues(outcomeRejected).Inc()
		return err
	}

	actor := sess.Actor(s.guestID)
	if err := s.addLocal(ctx, sess.ID, actor, in); err != nil {
		cartAddsTotal.WithLabelValues(outcomeFailed).Inc()
		tracing.RecordError(span, err)
		s.logger.ErrorContext(ctx, "local cart write failed",
			slog.String("session_id", sess.ID),
			slog.String("product_id", in.ProductID),
			slog.String("error", err.Error()),
		)
		return localFailure(err, msgCartSaveFailed)
	}
	cartAddsTotal.WithLabelValues(outcomeAccepted).Inc()

	req := remote.NewAddToCartRequest(actor, in)
	if err := s.queue.Submit(ctx, taskRemoteCartAdd, func(ctx context.Context) error {
		return s.pushAdd(ctx, sess, req)
	}); err != nil {
		s.logger.WarnContext(ctx, "remote cart add not scheduled",
			slog.String("product_id", in.ProductID),
			slog.String("actor", actor),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product added to cart",
		slog.String("session_id", sess.ID),
		slog.String("actor", actor),
		slog.String("product_id", in.ProductID),
		slog.Int("quantity", in.Quantity),
	)
	return nil
}

// addLocal runs the read-merge-write sequence and the notifications under
// the session lock so no other writer interleaves and views see the carts in
// write order.
func (s *CartService) addLocal(ctx context.Context, sessionID, actor string, in domain.AddToCartInput) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	cart, err := s.local.Cart(ctx, sessionID)
	if err != nil {
		return err
	}
	cart.Add(domain.CartItem{
		ProductID: in.ProductID,
		Name:      in.ProductName,
		Price:     in.Price,
		Image:     in.Image,
		Quantity:  in.Quantity,
	})
	cart.UpdatedAt = s.now()

	if err := s.local.SaveCart(ctx, sessionID, cart); err != nil {
		return err
	}
	s.syncer.Invalidate(sessionID)

	s.bus.Publish(event.CartUpdated{
		SessionID: sessionID,
		Actor:     actor,
		Items:     cart.Items,
		Count:     cart.ItemCount(),
	})
	s.bus.Publish(event.ProductAddedToCart{
		SessionID:   sessionID,
		Actor:       actor,
		ProductID:   in.ProductID,
		ProductName: in.ProductName,
		Quantity:    in.Quantity,
	})
	return nil
}

// pushAdd sends the add through the retrying client. On success a signed-in
// session is reconciled from a fetch made after the add; a guest line is only
// marked as acknowledged and guests reconcile on demand.
func (s *CartService) pushAdd(ctx context.Context, sess domain.Session, req remote.AddToCartRequest) error {
	if err := s.api.AddToCart(ctx, req, true); err != nil {
		remoteCartAddsTotal.WithLabelValues(outcomeFailed).Inc()
		s.logger.WarnContext(ctx, "remote cart sync failed, keeping local cart",
			slog.String("session_id", sess.ID),
			slog.String("actor", req.UserID),
			slog.String("product_id", req.ProductID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("remote add %s: %w", req.ProductID, err)
	}
	remoteCartAddsTotal.WithLabelValues(outcomeOK).Inc()

	if sess.SignedIn() {
		_, err := s.syncer.SyncAfterWrite(ctx, sess)
		if err == nil {
			return nil
		}
		s.logger.WarnContext(ctx, "cart reconcile after add failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
	return s.acknowledge(ctx, sess.ID, req.ProductID)
}

func (s *CartService) acknowledge(ctx context.Context, sessionID, productID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	cart, err := s.local.Cart(ctx, sessionID)
	if err != nil {
		return err
	}
	if !cart.MarkSynced(productID) {
		return nil
	}
	return s.local.SaveCart(ctx, sessionID, cart)
}

// Cart returns the local cart of the session.
func (s *CartService) Cart(ctx context.Context, sess domain.Session) (domain.Cart, error) {
	cart, err := s.local.Cart(ctx, sess.ID)
	if err != nil {
		return domain.Cart{}, localFailure(err, msgCartReadFailed)
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart, nil
}

// CartCount returns the persisted item count of the session.
func (s *CartService) CartCount(ctx context.Context, sess domain.Session) (int, error) {
	count, err := s.local.CartCount(ctx, sess.ID)
	if err != nil {
		return 0, localFailure(err, msgCartReadFailed)
	}
	return count, nil
}

// SyncState returns the counters and timestamps of the session.
func (s *CartService) SyncState(ctx context.Context, sess domain.Session) (domain.SyncState, error) {
	state, err := s.local.SyncState(ctx, sess.ID)
	if err != nil {
		return domain.SyncState{}, localFailure(err, msgCartReadFailed)
	}
	return state, nil
}

// ForceCartUpdate re-publishes the current local cart on the
// force-cart-update topic.
func (s *CartService) ForceCartUpdate(ctx context.Context, sess domain.Session) (domain.Cart, error) {
	cart, err := s.Cart(ctx, sess)
	if err != nil {
		return domain.Cart{}, err
	}
	s.bus.Publish(event.ForceCartUpdate{
		SessionID: sess.ID,
		Items:     cart.Items,
		Count:     cart.ItemCount(),
	})
	return cart, nil
}

// SyncWithServer reconciles the session cart on demand.
func (s *CartService) SyncWithServer(ctx context.Context, sess domain.Session) (domain.Cart, error) {
	return s.syncer.SyncWithServer(ctx, sess)
}
