package transport

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/debug"
	"github.com/rhuss/exammaker/pkg/observability"
)

// KeyLimiter decides whether a request identified by key may proceed.
// When it may not, the returned duration is how long the caller should
// wait before retrying.
type KeyLimiter interface {
	AllowKey(key string) (bool, time.Duration)
}

// IPRateLimit returns middleware that limits requests per client IP on
// the given paths. Requests for other paths pass through untouched. A
// nil limiter disables the middleware.
func IPRateLimit(limiter KeyLimiter, paths []string) Middleware {
	limited := make(map[string]bool, len(paths))
	for _, p := range paths {
		limited[p] = true
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limited[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			ip := ClientIP(r)
			ok, wait := limiter.AllowKey(ip)
			if !ok {
				debug.Log("transport", "ip rate limit exceeded", "remote_ip", ip, "path", r.URL.Path)
				observability.RateLimitRejectedTotal.WithLabelValues("ip").Inc()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of the request's remote address.
// Forwarding headers are not trusted.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterSeconds(wait time.Duration) int {
	s := int(math.Ceil(wait.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
