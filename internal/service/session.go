package service

import (
	"context"
	"log/slog"

	"github.com/utafrali/storefront/internal/cache"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/pkg/validator"
)

// SignInInput is the user record stored on sign-in.
type SignInInput struct {
	UserID string `json:"user_id" validate:"required,max=64"`
	Email  string `json:"email" validate:"omitempty,email,max=255"`
	Name   string `json:"name" validate:"max=255"`
}

// SessionService resolves the actor of a session and keeps its user record.
type SessionService struct {
	local    *cache.Local
	bus      *event.Bus
	wishlist *WishlistService
	locks    *SessionLocks
	logger   *slog.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(
	local *cache.Local,
	bus *event.Bus,
	wishlist *WishlistService,
	locks *SessionLocks,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		local:    local,
		bus:      bus,
		wishlist: wishlist,
		locks:    locks,
		logger:   logger,
	}
}

// Resolve builds the session passed to every operation. A user taken from a
// verified token wins over the stored record; without either the session is
// a guest.
func (s *SessionService) Resolve(ctx context.Context, sessionID string, tokenUser *domain.User) (domain.Session, error) {
	sess := domain.Session{ID: sessionID}
	if tokenUser != nil && tokenUser.ID != "" {
		sess.User = tokenUser
		return sess, nil
	}
	u, err := s.local.User(ctx, sessionID)
	if err != nil {
		return sess, localFailure(err, msgSessionSaveFailed)
	}
	sess.User = u
	return sess, nil
}

// SignIn stores the user record and loads the user's wishlist. A failed
// wishlist load is logged and leaves the session signed in.
func (s *SessionService) SignIn(ctx context.Context, sessionID string, in SignInInput) (domain.Session, error) {
	if err := validator.Validate(in); err != nil {
		return domain.Session{}, err
	}
	user := domain.User{ID: in.UserID, Email: in.Email, Name: in.Name}

	unlock := s.locks.Lock(sessionID)
	err := s.local.SaveUser(ctx, sessionID, user)
	unlock()
	if err != nil {
		return domain.Session{}, localFailure(err, msgSessionSaveFailed)
	}

	sess := domain.Session{ID: sessionID, User: &user}
	if _, err := s.wishlist.RefreshWishlist(ctx, sess); err != nil {
		s.logger.WarnContext(ctx, "wishlist load after sign-in failed",
			slog.String("session_id", sessionID),
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "session signed in",
		slog.String("session_id", sessionID),
		slog.String("user_id", user.ID),
	)
	return sess, nil
}

// SignOut removes the user record and the user's wishlist data. The session
// keeps its cart and continues as a guest.
func (s *SessionService) SignOut(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if err := s.local.ClearUser(ctx, sessionID); err != nil {
		return localFailure(err, msgSessionSaveFailed)
	}
	s.bus.Publish(event.WishlistUpdated{SessionID: sessionID})

	s.logger.InfoContext(ctx, "session signed out", slog.String("session_id", sessionID))
	return nil
}
