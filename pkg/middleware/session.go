package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/pkg/logger"
)

// SessionHeader carries the storefront session id. Everything the browser
// would keep in local storage is keyed by it.
const SessionHeader = "X-Session-ID"

var validSessionID = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// Session reads the session id from SessionHeader or the "session" query
// parameter (EventSource cannot set headers). A missing or malformed id is
// replaced by a fresh UUID. The id is echoed back and stored in the context.
func Session() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(SessionHeader)
			if id == "" {
				id = r.URL.Query().Get("session")
			}
			if !validSessionID.MatchString(id) {
				id = uuid.NewString()
			}

			w.Header().Set(SessionHeader, id)
			ctx := logger.WithSessionID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
