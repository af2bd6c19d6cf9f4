package middleware

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/trellis-web/trellis/web"
)

// RateLimiter enforces a per-client request rate. Clients are keyed by
// authenticated user ID when available, falling back to remote address.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with the given
// burst per client key.
func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// ModuleName implements web.Named.
func (*RateLimiter) ModuleName() string { return "rate-limit" }

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// RequestIn implements web.RequestMiddleware.
func (rl *RateLimiter) RequestIn(ctx context.Context, c *web.Context) error {
	key := UserID(c)
	if key == "" && c.Request != nil {
		key = c.Request.RemoteAddr
	}
	if key == "" {
		return nil
	}

	if !rl.limiterFor(key).Allow() {
		c.Warn("rate limit exceeded for " + key)
		c.Response.Clear()
		c.Response.SetStatus(http.StatusTooManyRequests)
		_, _ = c.Response.WriteString("rate limit exceeded\n")
		c.Completion.Set(web.RequestMiddlewareComplete)
		c.Completion.Set(web.RequestHandlersComplete)
	}
	return nil
}
