package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter checks whether an authenticated request should be allowed.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// clientLimiter tracks a per-key token bucket and when it was last used.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter is an in-process token-bucket limiter with one bucket per
// key. Buckets idle for longer than the idle timeout are dropped.
type KeyedLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// NewKeyedLimiter creates a limiter allowing requestsPerSecond sustained
// with the given burst per key. A non-positive rate disables limiting.
func NewKeyedLimiter(requestsPerSecond float64, burst int) *KeyedLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &KeyedLimiter{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// AllowKey takes one token from key's bucket. When the bucket is empty it
// returns false and how long until a token is available.
func (l *KeyedLimiter) AllowKey(key string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}

	now := l.now()
	limiter := l.limiterFor(key, now)

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Allow limits authenticated requests per subject.
func (l *KeyedLimiter) Allow(_ context.Context, identity *Identity) error {
	if ok, _ := l.AllowKey("subject:" + identity.Subject); !ok {
		return ErrTooManyRequests
	}
	return nil
}

// Burst returns the bucket size.
func (l *KeyedLimiter) Burst() int { return l.burst }

func (l *KeyedLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idle {
		for k, cl := range l.clients {
			if now.Sub(cl.lastSeen) > l.idle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}
