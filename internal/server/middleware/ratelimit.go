package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/opipolix/webgate/internal/store/memory"
)

// AuthRateLimit returns middleware that applies the store's sliding-window
// rate limit to one auth endpoint. Keys are "<bucket>:<client_ip>" so the
// nonce and verify endpoints count separately.
func AuthRateLimit(store *memory.Store, bucket string, maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := bucket + ":" + ClientIP(r)
			if !store.AllowRateLimit(key, maxRequests, window) {
				w.Header().Set("Retry-After", "1")
				writeDetail(w, http.StatusTooManyRequests, "Too many auth attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP determines the client address, preferring the first hop in
// X-Forwarded-For over the direct remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
