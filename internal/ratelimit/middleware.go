package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// DefaultRetryAfterSeconds is the Retry-After value sent with a 429.
const DefaultRetryAfterSeconds = 1

// ClientKey identifies the caller: the MCP session when the client sent one,
// otherwise the remote host.
func ClientKey(r *http.Request) string {
	if sid := strings.TrimSpace(r.Header.Get("Mcp-Session-Id")); sid != "" {
		return "session:" + sid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "host:" + host
}

// Middleware enforces limiter per key(r). Rejected requests get 429 with
// Retry-After; allowed ones carry X-RateLimit-Remaining. An empty key skips
// limiting.
func Middleware(limiter *RateLimiter, key func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			rateLimiter := limiter.GetLimiter(k)
			if !rateLimiter.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			remaining := int(rateLimiter.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r)
		})
	}
}
