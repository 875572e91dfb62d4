package mid

import (
	"net"
	"net/http"
	"strings"
)

// Allower is the rate-limiting decision the middleware delegates to.
type Allower interface {
	Allow(key string) bool
}

// RateLimit returns middleware that rejects requests with 429 when the
// client's bucket is exhausted. Clients are keyed by ClientKey.
func RateLimit(limiter Allower) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientKey(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":{"kind":"rate_limited","message":"too many uploads, retry later"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the client for rate limiting: the first hop of
// X-Forwarded-For when present, otherwise the remote address host.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
