package http

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/remote"
)

func guestAdd(productID string) any {
	return mock.MatchedBy(func(req remote.AddToCartRequest) bool {
		return req.UserID == guestActor && req.ProductID == productID
	})
}

func TestAddItem_GuestAcceptedAndAcknowledged(t *testing.T) {
	srv := newTestServer(t)
	srv.api.On("AddToCart", mock.Anything, guestAdd("p-1"), true).Return(nil).Once()

	rr := srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id":   "p-1",
		"product_name": "Linen Shirt",
		"quantity":     2,
		"price":        "30",
	}, "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Equal(t, testSession, rr.Header().Get("X-Session-ID"))

	v := decodeData[cartView](t, rr)
	require.Len(t, v.Items, 1)
	assert.Equal(t, 2, v.Count)
	assert.True(t, v.Total.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, 2, v.State.CartCount)

	srv.settle(t)
	srv.api.AssertExpectations(t)

	rr = srv.do(t, http.MethodGet, "/api/v1/cart", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	v = decodeData[cartView](t, rr)
	require.Len(t, v.Items, 1)
	assert.True(t, v.Items[0].Synced)
}

func TestAddItem_RemoteFailureStillAccepted(t *testing.T) {
	srv := newTestServer(t)
	srv.api.On("AddToCart", mock.Anything, guestAdd("p-1"), true).Return(errors.New("503")).Once()

	rr := srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": "p-1",
		"quantity":   1,
	}, "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	srv.settle(t)

	cart, err := srv.local.Cart(context.Background(), testSession)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.False(t, cart.Items[0].Synced)
}

func TestAddItem_Validation(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": "p-1",
		"quantity":   0,
	}, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "quantity")
	srv.api.AssertNotCalled(t, "AddToCart", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddItem_RejectsNonJSON(t *testing.T) {
	srv := newTestServer(t)

	req := newRequest(http.MethodPost, "/api/v1/cart/items", "product_id=p-1")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := serve(srv, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestCardAdd_OutOfStock(t *testing.T) {
	srv := newTestServer(t)
	p := domain.Product{ID: "p-2", Name: "Canvas Tote", Price: decimal.NewFromInt(12)}
	srv.api.On("GetProduct", mock.Anything, "p-2").Return(&p, nil)

	rr := srv.do(t, http.MethodPost, "/api/v1/products/p-2/cart", map[string]any{"card_id": "grid-2"}, "")
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, msgOutOfStock, decodeEnvelope(t, rr).Error.Message)
	srv.api.AssertNotCalled(t, "AddToCart", mock.Anything, mock.Anything, mock.Anything)
}

func TestCardAdd_SecondRapidClickDropped(t *testing.T) {
	srv := newTestServer(t)
	p := domain.Product{ID: "p-1", Name: "Linen Shirt", Price: decimal.NewFromInt(30), Stock: 4}
	srv.api.On("GetProduct", mock.Anything, "p-1").Return(&p, nil)
	srv.api.On("AddToCart", mock.Anything, guestAdd("p-1"), true).Return(nil).Once()

	body := map[string]any{"card_id": "grid-1"}
	rr := srv.do(t, http.MethodPost, "/api/v1/products/p-1/cart", body, "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	first := decodeData[cardAddView](t, rr)
	assert.True(t, first.Accepted)
	assert.Equal(t, 1, first.CartCount)

	rr = srv.do(t, http.MethodPost, "/api/v1/products/p-1/cart", body, "")
	require.Equal(t, http.StatusOK, rr.Code)
	second := decodeData[cardAddView](t, rr)
	assert.False(t, second.Accepted)
	assert.Equal(t, 1, second.CartCount)

	srv.settle(t)
	srv.api.AssertExpectations(t)
}

func TestSync_SignedInReconciles(t *testing.T) {
	srv := newTestServer(t)
	srv.api.On("GetCart", mock.Anything, "u-1").Return([]domain.CartItem{
		{ID: "srv-1", ProductID: "p-9", Name: "Wool Scarf", Price: decimal.NewFromInt(25), Quantity: 1},
	}, nil)

	rr := srv.do(t, http.MethodPost, "/api/v1/cart/sync", nil, srv.token(t, "u-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	v := decodeData[cartView](t, rr)
	require.Len(t, v.Items, 1)
	assert.Equal(t, "p-9", v.Items[0].ProductID)
	assert.False(t, v.State.LastServerSync.IsZero())
}

func TestSync_GuestUsesSessionActor(t *testing.T) {
	srv := newTestServer(t)
	srv.api.On("GetCart", mock.Anything, guestActor).Return([]domain.CartItem{}, nil)

	rr := srv.do(t, http.MethodPost, "/api/v1/cart/sync", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	srv.api.AssertExpectations(t)
}

func TestForce_ReturnsCurrentCart(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodPost, "/api/v1/cart/force", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	v := decodeData[cartView](t, rr)
	assert.Empty(t, v.Items)
	assert.Equal(t, 0, v.Count)
}

func TestInvalidToken_Rejected(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodGet, "/api/v1/cart", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
