package service

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/storefront/internal/cache"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/remote"
	"github.com/utafrali/storefront/pkg/tracing"
)

// SyncManager reconciles the local cart of a session with the server cart.
type SyncManager struct {
	local   *cache.Local
	bus     *event.Bus
	api     remote.CartAPI
	locks   *SessionLocks
	group   singleflight.Group
	guestID string

	// gens counts local cart writes per session. A fetch is only stored
	// when no write happened since it started.
	genMu sync.Mutex
	gens  map[string]uint64

	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewSyncManager creates a sync manager. timeout bounds one reconciliation;
// zero means no bound.
func NewSyncManager(
	local *cache.Local,
	bus *event.Bus,
	api remote.CartAPI,
	locks *SessionLocks,
	guestID string,
	timeout time.Duration,
	logger *slog.Logger,
) *SyncManager {
	return &SyncManager{
		local:   local,
		bus:     bus,
		api:     api,
		locks:   locks,
		guestID: guestID,
		gens:    make(map[string]uint64),
		timeout: timeout,
		logger:  logger,
		now:     utcNow,
	}
}

// Invalidate marks every reconciliation of the session already in flight as
// stale. A stale fetch is neither joined by later callers nor stored.
func (m *SyncManager) Invalidate(sessionID string) {
	m.genMu.Lock()
	m.gens[sessionID]++
	m.genMu.Unlock()
}

func (m *SyncManager) generation(sessionID string) uint64 {
	m.genMu.Lock()
	defer m.genMu.Unlock()
	return m.gens[sessionID]
}

// SyncAfterWrite reconciles from a server fetch that starts after the call,
// so the result reflects a remote write that has just completed.
func (m *SyncManager) SyncAfterWrite(ctx context.Context, sess domain.Session) (domain.Cart, error) {
	m.Invalidate(sess.ID)
	return m.SyncWithServer(ctx, sess)
}

// SyncWithServer fetches the server cart of the session's actor and merges
// it into the local cart with domain.Reconcile. Concurrent calls for the same
// session and actor share one fetch and one write, unless the local cart was
// written in between. The caller's ctx only bounds its own wait; the shared
// reconciliation runs to completion.
func (m *SyncManager) SyncWithServer(ctx context.Context, sess domain.Session) (domain.Cart, error) {
	gen := m.generation(sess.ID)
	key := sess.ID + "|" + sess.Actor(m.guestID) + "|" + strconv.FormatUint(gen, 10)
	ch := m.group.DoChan(key, func() (any, error) {
		syncCtx := context.WithoutCancel(ctx)
		if m.timeout > 0 {
			var cancel context.CancelFunc
			syncCtx, cancel = context.WithTimeout(syncCtx, m.timeout)
			defer cancel()
		}
		return m.sync(syncCtx, sess, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.Cart{}, res.Err
		}
		return res.Val.(domain.Cart), nil
	case <-ctx.Done():
		return domain.Cart{}, ctx.Err()
	}
}

func (m *SyncManager) sync(ctx context.Context, sess domain.Session, gen uint64) (domain.Cart, error) {
	actor := sess.Actor(m.guestID)
	ctx, span := tracing.StartSpan(ctx, "SyncManager.SyncWithServer",
		attribute.String("storefront.actor", actor),
	)
	defer span.End()

	server, err := m.api.GetCart(ctx, actor)
	if err != nil {
		cartSyncsTotal.WithLabelValues(outcomeFailed).Inc()
		tracing.RecordError(span, err)
		return domain.Cart{}, err
	}

	unlock := m.locks.Lock(sess.ID)
	defer unlock()

	cart, err := m.local.Cart(ctx, sess.ID)
	if err != nil {
		cartSyncsTotal.WithLabelValues(outcomeFailed).Inc()
		tracing.RecordError(span, err)
		return domain.Cart{}, localFailure(err, msgCartReadFailed)
	}

	if m.generation(sess.ID) != gen {
		// The snapshot may predate a local add. Keep the local cart; the
		// next sync fetches again.
		cartSyncsTotal.WithLabelValues(outcomeSuperseded).Inc()
		m.logger.DebugContext(ctx, "server cart snapshot superseded by a local write",
			slog.String("session_id", sess.ID),
		)
		if cart.Items == nil {
			cart.Items = []domain.CartItem{}
		}
		return cart, nil
	}

	before := len(cart.Items)
	cart.Items = domain.Reconcile(cart.Items, server)
	cart.UpdatedAt = m.now()
	if err := m.local.SaveSyncedCart(ctx, sess.ID, cart); err != nil {
		cartSyncsTotal.WithLabelValues(outcomeFailed).Inc()
		tracing.RecordError(span, err)
		return domain.Cart{}, localFailure(err, msgCartReadFailed)
	}

	m.bus.Publish(event.CartUpdated{
		SessionID: sess.ID,
		Actor:     actor,
		Items:     cart.Items,
		Count:     cart.ItemCount(),
	})
	cartSyncsTotal.WithLabelValues(outcomeOK).Inc()

	m.logger.DebugContext(ctx, "cart reconciled with server",
		slog.String("session_id", sess.ID),
		slog.String("actor", actor),
		slog.Int("local_lines", before),
		slog.Int("server_lines", len(server)),
		slog.Int("merged_lines", len(cart.Items)),
	)
	return cart, nil
}
