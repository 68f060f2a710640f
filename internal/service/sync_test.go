package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func seedCart(t *testing.T, env *testEnv, items ...domain.CartItem) {
	t.Helper()
	require.NoError(t, env.local.SaveCart(context.Background(), testSession, domain.Cart{Items: items}))
}

func TestSyncWithServer_MergesLocalOnlyAndServerItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := signedIn("user-1")

	seedCart(t, env, domain.CartItem{ID: "local-1", ProductID: "p-local", Name: "Local", Quantity: 2, Price: decimal.NewFromInt(10)})
	env.cartAPI.On("GetCart", mock.Anything, "user-1").Return([]domain.CartItem{
		{ProductID: "p-server", Name: "Server", Quantity: 5, Price: decimal.NewFromInt(20)},
	}, nil)

	cart, err := env.syncer.SyncWithServer(ctx, sess)
	require.NoError(t, err)

	require.Len(t, cart.Items, 2)
	assert.Equal(t, "p-server", cart.Items[0].ProductID)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.True(t, cart.Items[0].Synced)
	assert.Equal(t, "p-local", cart.Items[1].ProductID)
	assert.Equal(t, 2, cart.Items[1].Quantity)
	assert.False(t, cart.Items[1].Synced)

	stored, err := env.local.Cart(ctx, testSession)
	require.NoError(t, err)
	assert.Equal(t, cart.Items, stored.Items)

	count, err := env.local.CartCount(ctx, testSession)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	env.cartAPI.AssertExpectations(t)
}

func TestSyncWithServer_ServerWinsOnOverlap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := signedIn("user-1")

	seedCart(t, env, domain.CartItem{ID: "line-1", ProductID: "p1", Name: "Mug", Image: "mug.png", Quantity: 3, Price: decimal.NewFromInt(10)})
	env.cartAPI.On("GetCart", mock.Anything, "user-1").Return([]domain.CartItem{
		{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(12)},
	}, nil)

	cart, err := env.syncer.SyncWithServer(ctx, sess)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	line := cart.Items[0]
	assert.Equal(t, "line-1", line.ID)
	assert.Equal(t, 1, line.Quantity)
	assert.True(t, decimal.NewFromInt(12).Equal(line.Price))
	assert.Equal(t, "Mug", line.Name)
	assert.Equal(t, "mug.png", line.Image)
}

func TestSyncWithServer_PublishesCartUpdatedWithReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.cartAPI.On("GetCart", mock.Anything, testActor).Return([]domain.CartItem{
		{ProductID: "p1", Quantity: 2, Price: decimal.NewFromInt(5)},
	}, nil)

	_, err := env.syncer.SyncWithServer(ctx, guest())
	require.NoError(t, err)

	// A view mounted after the sync still gets the cart.
	var got event.CartUpdated
	cancel := env.bus.Subscribe(event.TopicCartUpdated, testSession, func(msg event.Message) {
		got = msg.Payload.(event.CartUpdated)
	})
	defer cancel()
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, testActor, got.Actor)
}

func TestSyncWithServer_RemoteErrorLeavesCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedCart(t, env, domain.CartItem{ID: "l", ProductID: "p1", Quantity: 1})
	env.cartAPI.On("GetCart", mock.Anything, "user-1").Return(nil, apperrors.ServiceUnavailable("cart unavailable"))

	_, err := env.syncer.SyncWithServer(ctx, signedIn("user-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)

	stored, err := env.local.Cart(ctx, testSession)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "p1", stored.Items[0].ProductID)

	state, err := env.local.SyncState(ctx, testSession)
	require.NoError(t, err)
	assert.True(t, state.LastServerSync.IsZero())
}

func TestSyncWithServer_DropsAcknowledgedLinesGoneFromServer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedCart(t, env,
		domain.CartItem{ID: "a", ProductID: "removed", Quantity: 1, Synced: true},
		domain.CartItem{ID: "b", ProductID: "pending", Quantity: 1},
	)
	env.cartAPI.On("GetCart", mock.Anything, "user-1").Return([]domain.CartItem{}, nil)

	cart, err := env.syncer.SyncWithServer(ctx, signedIn("user-1"))
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "pending", cart.Items[0].ProductID)
}

func TestSyncWithServer_CallerContextCanceled(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release := make(chan struct{})
	env.cartAPI.On("GetCart", mock.Anything, "user-1").
		Run(func(mock.Arguments) { <-release }).
		Return([]domain.CartItem{}, nil)

	_, err := env.syncer.SyncWithServer(ctx, signedIn("user-1"))
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}

func TestSyncWithServer_PostAddSyncDoesNotReuseEarlierFetch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := signedIn("user-1")

	fetching := make(chan struct{})
	release := make(chan struct{})
	releaseOnce := sync.OnceFunc(func() { close(release) })
	defer releaseOnce()

	// The first fetch is taken before the add reaches the server.
	env.cartAPI.On("GetCart", mock.Anything, "user-1").Run(func(mock.Arguments) {
		close(fetching)
		<-release
	}).Return([]domain.CartItem{
		{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(100)},
	}, nil).Once()
	env.cartAPI.On("GetCart", mock.Anything, "user-1").Return([]domain.CartItem{
		{ProductID: "p1", Quantity: 2, Price: decimal.NewFromInt(100)},
	}, nil)
	env.cartAPI.On("AddToCart", mock.Anything, mock.Anything, true).Return(nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := env.syncer.SyncWithServer(ctx, sess)
		done <- err
	}()
	<-fetching

	require.NoError(t, env.cart.AddToCart(ctx, sess, addInput("p1", 1)))
	env.settle(t)

	releaseOnce()
	require.NoError(t, <-done)

	cart, err := env.cart.Cart(ctx, sess)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.True(t, cart.Items[0].Synced)

	count, err := env.local.CartCount(ctx, testSession)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	env.cartAPI.AssertExpectations(t)
}

func TestSyncWithServer_GuestSessionsKeepSeparateServerCarts(t *testing.T) {
	server := newFakeCartServer()
	env := newTestEnv(t).withCartServer(server)
	ctx := context.Background()
	alice := domain.Session{ID: "session-alice"}
	bob := domain.Session{ID: "session-bob"}

	require.NoError(t, env.cart.AddToCart(ctx, alice, addInput("secret-item", 1)))
	env.settle(t)

	cart, err := env.syncer.SyncWithServer(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	stored, err := env.cart.Cart(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, stored.Items)

	cart, err = env.syncer.SyncWithServer(ctx, alice)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "secret-item", cart.Items[0].ProductID)

	assert.Equal(t, []string{testGuest + ":session-alice"}, server.actors())
}

func TestSyncWithServer_ConcurrentWithAdds(t *testing.T) {
	server := newFakeCartServer()
	env := newTestEnv(t).withCartServer(server)
	ctx := context.Background()
	sess := signedIn("user-1")
	products := []string{"p1", "p2", "p3"}

	const rounds = 30
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func(productID string) {
			defer wg.Done()
			assert.NoError(t, env.cart.AddToCart(ctx, sess, addInput(productID, 1)))
		}(products[i%len(products)])
		go func() {
			defer wg.Done()
			_, err := env.syncer.SyncWithServer(ctx, sess)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	env.settle(t)

	cart, err := env.syncer.SyncWithServer(ctx, sess)
	require.NoError(t, err)
	require.Len(t, cart.Items, len(products))

	seen := make(map[string]bool)
	total := 0
	for _, item := range cart.Items {
		assert.False(t, seen[item.ProductID], "duplicate line for %s", item.ProductID)
		seen[item.ProductID] = true
		assert.Equal(t, rounds/len(products), item.Quantity, item.ProductID)
		assert.True(t, item.Synced, item.ProductID)
		total += item.Quantity
	}

	count, err := env.local.CartCount(ctx, testSession)
	require.NoError(t, err)
	assert.Equal(t, rounds, total)
	assert.Equal(t, total, count)
}
