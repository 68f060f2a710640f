package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/cache"
	"github.com/utafrali/storefront/internal/cache/memory"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/remote"
	"github.com/utafrali/storefront/internal/worker"
	"github.com/utafrali/storefront/pkg/logger"
)

// --- Mock remote APIs ---

type mockCartAPI struct {
	mock.Mock
}

func (m *mockCartAPI) AddToCart(ctx context.Context, req remote.AddToCartRequest, retry bool) error {
	args := m.Called(ctx, req, retry)
	return args.Error(0)
}

func (m *mockCartAPI) GetCart(ctx context.Context, actorID string) ([]domain.CartItem, error) {
	args := m.Called(ctx, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CartItem), args.Error(1)
}

type mockWishlistAPI struct {
	mock.Mock
}

func (m *mockWishlistAPI) GetWishlist(ctx context.Context, userID string) ([]domain.WishlistEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WishlistEntry), args.Error(1)
}

func (m *mockWishlistAPI) AddToWishlist(ctx context.Context, userID, productID string) error {
	return m.Called(ctx, userID, productID).Error(0)
}

func (m *mockWishlistAPI) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	return m.Called(ctx, userID, productID).Error(0)
}

// fakeCartServer keeps one server cart per actor and sums quantities per
// product the way the cart API does.
type fakeCartServer struct {
	mu    sync.Mutex
	carts map[string][]domain.CartItem
}

func newFakeCartServer() *fakeCartServer {
	return &fakeCartServer{carts: make(map[string][]domain.CartItem)}
}

func (f *fakeCartServer) AddToCart(_ context.Context, req remote.AddToCartRequest, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := f.carts[req.UserID]
	for i := range lines {
		if lines[i].ProductID == req.ProductID {
			lines[i].Quantity += req.Quantity
			return nil
		}
	}
	f.carts[req.UserID] = append(lines, domain.CartItem{
		ID:        domain.NewItemID(),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Price:     decimal.NewFromInt(100),
	})
	return nil
}

func (f *fakeCartServer) GetCart(_ context.Context, actorID string) ([]domain.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CartItem(nil), f.carts[actorID]...), nil
}

func (f *fakeCartServer) actors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.carts))
	for actor := range f.carts {
		out = append(out, actor)
	}
	return out
}

func (m *mockWishlistAPI) InWishlist(ctx context.Context, userID, productID string) (bool, error) {
	args := m.Called(ctx, userID, productID)
	return args.Bool(0), args.Error(1)
}

type mockCatalogAPI struct {
	mock.Mock
}

func (m *mockCatalogAPI) ListProducts(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockCatalogAPI) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockCatalogAPI) ListCategories(ctx context.Context) ([]domain.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Category), args.Error(1)
}

// --- Failing cache store ---

var errStoreDown = errors.New("connection refused")

type failingStore struct{}

func (failingStore) Get(context.Context, string, string) ([]byte, error) { return nil, errStoreDown }
func (failingStore) Set(context.Context, string, ...cache.Entry) error   { return errStoreDown }
func (failingStore) Delete(context.Context, string, ...string) error     { return errStoreDown }
func (failingStore) Ping(context.Context) error                          { return errStoreDown }

// --- Bus recorder ---

type recorder struct {
	mu   sync.Mutex
	msgs []event.Message
}

func record(bus *event.Bus, sessionID string) (*recorder, func()) {
	r := &recorder{}
	cancel := bus.SubscribeAll(sessionID, func(msg event.Message) {
		if msg.Topic == event.TopicStorageChange {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, msg)
	})
	return r, cancel
}

func (r *recorder) topics() []event.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Topic, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Topic)
	}
	return out
}

func (r *recorder) last(topic event.Topic) (event.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Topic == topic {
			return r.msgs[i], true
		}
	}
	return event.Message{}, false
}

// --- Test environment ---

const (
	testSession = "session-test-01"
	testGuest   = "guest"
	// testActor is the server-side actor of the guest test session.
	testActor   = testGuest + ":" + testSession
)

type testEnv struct {
	local    *cache.Local
	bus      *event.Bus
	queue    *worker.Queue
	locks    *SessionLocks
	cartAPI  *mockCartAPI
	wishAPI  *mockWishlistAPI
	syncer   *SyncManager
	cart     *CartService
	wishlist *WishlistService
	sessions *SessionService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithStore(t, memory.NewStore(time.Hour))
}

func newTestEnvWithStore(t *testing.T, store cache.Store) *testEnv {
	t.Helper()
	log := logger.Discard()

	bus := event.NewBus(log)
	local := cache.NewLocal(store, bus, log)
	queue := worker.NewQueue(4, 5*time.Second, log)
	locks := NewSessionLocks()
	cartAPI := new(mockCartAPI)
	wishAPI := new(mockWishlistAPI)

	syncer := NewSyncManager(local, bus, cartAPI, locks, testGuest, 5*time.Second, log)
	wishlist := NewWishlistService(local, bus, wishAPI, locks, log)

	env := &testEnv{
		local:    local,
		bus:      bus,
		queue:    queue,
		locks:    locks,
		cartAPI:  cartAPI,
		wishAPI:  wishAPI,
		syncer:   syncer,
		cart:     NewCartService(local, bus, cartAPI, syncer, queue, locks, testGuest, log),
		wishlist: wishlist,
		sessions: NewSessionService(local, bus, wishlist, locks, log),
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue.Close(ctx)
	})
	return env
}

// withCartServer rewires the cart side of the environment to api.
func (e *testEnv) withCartServer(api remote.CartAPI) *testEnv {
	log := logger.Discard()
	e.syncer = NewSyncManager(e.local, e.bus, api, e.locks, testGuest, 5*time.Second, log)
	e.cart = NewCartService(e.local, e.bus, api, e.syncer, e.queue, e.locks, testGuest, log)
	return e
}

// settle waits for the background tasks.
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.queue.Wait(ctx))
}

func guest() domain.Session {
	return domain.Session{ID: testSession}
}

func signedIn(userID string) domain.Session {
	return domain.Session{ID: testSession, User: &domain.User{ID: userID, Name: "Ada"}}
}
