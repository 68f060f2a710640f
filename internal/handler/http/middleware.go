package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
)

type contextKey string

const sessionKey contextKey = "storefront_session"

// ResolveSession builds the domain.Session of the request from the session
// id set by middleware.Session and the optional token claims, and stores it
// in the context. It must run after both.
func ResolveSession(sessions *service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var tokenUser *domain.User
			if c := middleware.ClaimsFromContext(ctx); c != nil {
				tokenUser = &domain.User{ID: c.UserID, Email: c.Email, Name: c.Name}
			}

			sess, err := sessions.Resolve(ctx, logger.SessionIDFromContext(ctx), tokenUser)
			if err != nil {
				httputil.WriteError(w, r, err, nil)
				return
			}
			if sess.SignedIn() {
				ctx = logger.WithUserID(ctx, sess.User.ID)
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey, sess)))
		})
	}
}

// sessionFrom returns the session stored by ResolveSession.
func sessionFrom(ctx context.Context) domain.Session {
	sess, _ := ctx.Value(sessionKey).(domain.Session)
	return sess
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
