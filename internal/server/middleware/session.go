// Package middleware holds the HTTP middleware chain: request logging,
// session binding, and the sliding-window rate limit on the auth endpoints.
package middleware

import (
	"context"
	"net/http"

	"github.com/opipolix/webgate/internal/domain"
	"github.com/opipolix/webgate/internal/store/memory"
)

type sessionKey struct{}

// Session returns middleware that binds the request to a session via the
// HttpOnly cookie. Requests without a valid session get a 401 with a
// {detail} body.
func Session(store *memory.Store, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			sess := store.GetSession(cookie.Value)
			if sess == nil {
				writeDetail(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFrom returns the session bound to the request, or nil when the
// request did not pass through the Session middleware.
func SessionFrom(ctx context.Context) *domain.Session {
	sess, _ := ctx.Value(sessionKey{}).(*domain.Session)
	return sess
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"detail":"` + detail + `"}`))
}
