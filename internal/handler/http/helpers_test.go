package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/cache"
	"github.com/utafrali/storefront/internal/cache/memory"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/remote"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/internal/worker"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
)

// ============================================================================
// Mock storefront API
// ============================================================================

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) ListProducts(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockAPI) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockAPI) ListCategories(ctx context.Context) ([]domain.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Category), args.Error(1)
}

func (m *mockAPI) AddToCart(ctx context.Context, req remote.AddToCartRequest, retry bool) error {
	return m.Called(ctx, req, retry).Error(0)
}

func (m *mockAPI) GetCart(ctx context.Context, actorID string) ([]domain.CartItem, error) {
	args := m.Called(ctx, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CartItem), args.Error(1)
}

func (m *mockAPI) GetWishlist(ctx context.Context, userID string) ([]domain.WishlistEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WishlistEntry), args.Error(1)
}

func (m *mockAPI) AddToWishlist(ctx context.Context, userID, productID string) error {
	return m.Called(ctx, userID, productID).Error(0)
}

func (m *mockAPI) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	return m.Called(ctx, userID, productID).Error(0)
}

func (m *mockAPI) InWishlist(ctx context.Context, userID, productID string) (bool, error) {
	args := m.Called(ctx, userID, productID)
	return args.Bool(0), args.Error(1)
}

// ============================================================================
// Test helpers
// ============================================================================

const (
	testSession = "session-http-01"
	guestActor  = "guest:" + testSession
	testSecret  = "0123456789abcdef0123456789abcdef"
)

type testServer struct {
	handler http.Handler
	api     *mockAPI
	local   *cache.Local
	bus     *event.Bus
	queue   *worker.Queue
	issuer  *middleware.TokenIssuer
	events  *EventStream
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Discard()

	api := new(mockAPI)
	bus := event.NewBus(log)
	local := cache.NewLocal(memory.NewStore(time.Hour), bus, log)
	queue := worker.NewQueue(2, 5*time.Second, log)
	locks := service.NewSessionLocks()

	syncer := service.NewSyncManager(local, bus, api, locks, "guest", 5*time.Second, log)
	cart := service.NewCartService(local, bus, api, syncer, queue, locks, "guest", log)
	wishlist := service.NewWishlistService(local, bus, api, locks, log)
	svc := Services{
		Catalog:  service.NewCatalogService(api, log),
		Cart:     cart,
		Card:     service.NewProductCard(cart, service.NewCardGuard(time.Hour)),
		Wishlist: wishlist,
		Sessions: service.NewSessionService(local, bus, wishlist, locks, log),
	}

	issuer := middleware.NewTokenIssuer(testSecret, time.Hour)
	events := NewEventStream(bus, log)
	router := NewRouter(svc, events, issuer, middleware.DefaultCORSConfig(), health.NewHandler(), log)

	t.Cleanup(func() {
		events.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue.Close(ctx)
	})
	return &testServer{
		handler: router,
		api:     api,
		local:   local,
		bus:     bus,
		queue:   queue,
		issuer:  issuer,
		events:  events,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SessionHeader, testSession)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.issuer.Issue(userID, userID+"@example.com", "Ada")
	require.NoError(t, err)
	return tok
}

func (s *testServer) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.queue.Wait(ctx))
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func decodeData[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	env := decodeEnvelope(t, rr)
	require.Nil(t, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func decodeJSONBody(rr *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(rr.Body.Bytes(), v)
}

func newRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(middleware.SessionHeader, testSession)
	return req
}

func serve(s *testServer, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}
