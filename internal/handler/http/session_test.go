package http

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
)

func TestSession_GuestByDefault(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodGet, "/api/v1/session", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	v := decodeData[sessionView](t, rr)
	assert.Equal(t, testSession, v.SessionID)
	assert.Nil(t, v.User)
	assert.Empty(t, v.Token)
}

func TestSession_SignInIssuesTokenAndLoadsWishlist(t *testing.T) {
	srv := newTestServer(t)
	srv.api.On("GetWishlist", mock.Anything, "u-1").Return([]domain.WishlistEntry{{ProductID: "p-1"}}, nil).Once()

	rr := srv.do(t, http.MethodPost, "/api/v1/session", map[string]any{
		"user_id": "u-1",
		"email":   "ada@example.com",
		"name":    "Ada",
	}, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	v := decodeData[sessionView](t, rr)
	require.NotNil(t, v.User)
	assert.Equal(t, "u-1", v.User.ID)
	assert.NotEmpty(t, v.Token)
	assert.Equal(t, 1, v.State.WishlistCount)

	claims, err := srv.issuer.Parse(v.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)

	// The stored record keeps the session signed in without a token.
	rr = srv.do(t, http.MethodGet, "/api/v1/session", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	again := decodeData[sessionView](t, rr)
	require.NotNil(t, again.User)
	assert.Equal(t, "Ada", again.User.Name)
	srv.api.AssertExpectations(t)
}

func TestSession_SignInSurvivesWishlistFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.api.On("GetWishlist", mock.Anything, "u-1").Return(nil, errors.New("timeout")).Once()

	rr := srv.do(t, http.MethodPost, "/api/v1/session", map[string]any{"user_id": "u-1"}, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, 0, decodeData[sessionView](t, rr).State.WishlistCount)
}

func TestSession_SignInValidation(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodPost, "/api/v1/session", map[string]any{"user_id": "u-1", "email": "nope"}, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeEnvelope(t, rr).Error.Fields, "email")
}

func TestSession_SignOutClearsUser(t *testing.T) {
	srv := newTestServer(t)
	srv.api.On("GetWishlist", mock.Anything, "u-1").Return([]domain.WishlistEntry{{ProductID: "p-1"}}, nil).Once()

	rr := srv.do(t, http.MethodPost, "/api/v1/session", map[string]any{"user_id": "u-1"}, "")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = srv.do(t, http.MethodDelete, "/api/v1/session", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	v := decodeData[sessionView](t, rr)
	assert.Nil(t, v.User)
	assert.Equal(t, 0, v.State.WishlistCount)

	rr = srv.do(t, http.MethodGet, "/api/v1/session", nil, "")
	assert.Nil(t, decodeData[sessionView](t, rr).User)
}
