package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
)

// SessionHandler signs shoppers in and out of a storefront session.
type SessionHandler struct {
	sessions *service.SessionService
	cart     *service.CartService
	issuer   *middleware.TokenIssuer
	logger   *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler. issuer may be
// disabled, in which case no token is returned on sign-in.
func NewSessionHandler(sessions *service.SessionService, cart *service.CartService, issuer *middleware.TokenIssuer, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		cart:     cart,
		issuer:   issuer,
		logger:   logger,
	}
}

type sessionView struct {
	SessionID string           `json:"session_id"`
	User      *domain.User     `json:"user,omitempty"`
	Token     string           `json:"token,omitempty"`
	State     domain.SyncState `json:"state"`
}

// Get handles GET /api/v1/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, sessionFrom(r.Context()), "", http.StatusOK)
}

// SignIn handles POST /api/v1/session
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var in service.SignInInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	sess, err := h.sessions.SignIn(r.Context(), logger.SessionIDFromContext(r.Context()), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	var token string
	if h.issuer.Enabled() {
		token, err = h.issuer.Issue(sess.User.ID, sess.User.Email, sess.User.Name)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
	}
	h.write(w, r, sess, token, http.StatusCreated)
}

// SignOut handles DELETE /api/v1/session
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sessionID := logger.SessionIDFromContext(r.Context())
	if err := h.sessions.SignOut(r.Context(), sessionID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.write(w, r, domain.Session{ID: sessionID}, "", http.StatusOK)
}

func (h *SessionHandler) write(w http.ResponseWriter, r *http.Request, sess domain.Session, token string, status int) {
	state, err := h.cart.SyncState(r.Context(), sess)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, status, sessionView{
		SessionID: sess.ID,
		User:      sess.User,
		Token:     token,
		State:     state,
	})
}
