package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/utafrali/storefront/internal/domain"
)

const guardSweepThreshold = 1024

type cardState struct {
	limiter *rate.Limiter
	busy    atomic.Bool
	seen    time.Time
}

// CardGuard debounces add-to-cart clicks per product-card instance: clicks
// closer than the interval are dropped, and so is any click while the
// previous one is still in flight. Dropped clicks are not queued.
type CardGuard struct {
	interval time.Duration
	idle     time.Duration

	mu        sync.Mutex
	cards     map[string]*cardState
	lastSweep time.Time
	now       func() time.Time
}

// NewCardGuard creates a guard that accepts at most one click per interval
// and card.
func NewCardGuard(interval time.Duration) *CardGuard {
	return &CardGuard{
		interval: interval,
		idle:     max(10*interval, time.Minute),
		cards:    make(map[string]*cardState),
		now:      time.Now,
	}
}

// Acquire reports whether a click on card key is accepted. An accepted click
// holds the card until release is called.
func (g *CardGuard) Acquire(key string) (release func(), ok bool) {
	now := g.now()

	g.mu.Lock()
	st, found := g.cards[key]
	if !found {
		st = &cardState{limiter: rate.NewLimiter(rate.Every(g.interval), 1)}
		g.cards[key] = st
	}
	st.seen = now
	if len(g.cards) >= guardSweepThreshold && now.Sub(g.lastSweep) >= g.idle {
		g.sweep(now)
	}
	g.mu.Unlock()

	if !st.busy.CompareAndSwap(false, true) {
		return nil, false
	}
	if !st.limiter.AllowN(now, 1) {
		st.busy.Store(false)
		return nil, false
	}
	return func() { st.busy.Store(false) }, true
}

// Len returns the number of tracked cards.
func (g *CardGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cards)
}

// sweep forgets idle cards. Callers hold g.mu.
func (g *CardGuard) sweep(now time.Time) {
	g.lastSweep = now
	for key, st := range g.cards {
		if now.Sub(st.seen) >= g.idle && !st.busy.Load() {
			delete(g.cards, key)
		}
	}
}

// ProductCard is the add-to-cart entry point of a product card.
type ProductCard struct {
	cart  *CartService
	guard *CardGuard
}

// NewProductCard creates the card entry point.
func NewProductCard(cart *CartService, guard *CardGuard) *ProductCard {
	return &ProductCard{cart: cart, guard: guard}
}

// AddToCart forwards the click to CartService.AddToCart unless the guard
// drops it. accepted is false for a dropped click, which is not an error.
func (p *ProductCard) AddToCart(ctx context.Context, sess domain.Session, cardID string, in domain.AddToCartInput) (accepted bool, err error) {
	release, ok := p.guard.Acquire(sess.ID + "/" + cardID)
	if !ok {
		cartAddsTotal.WithLabelValues(outcomeDropped).Inc()
		return false, nil
	}
	defer release()

	if err := p.cart.AddToCart(ctx, sess, in); err != nil {
		return false, err
	}
	return true, nil
}
