package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleAfter is how long a client may go quiet before its bucket is dropped.
const idleAfter = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	every   rate.Limit
	burst   int
	now     func() time.Time
}

func newClientLimiter(every rate.Limit, burst int) *clientLimiter {
	return &clientLimiter{
		clients: make(map[string]*client),
		every:   every,
		burst:   burst,
		now:     time.Now,
	}
}

func (cl *clientLimiter) allow(ip string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.now()
	for k, c := range cl.clients {
		if now.Sub(c.lastSeen) > idleAfter {
			delete(cl.clients, k)
		}
	}

	c, ok := cl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(cl.every, cl.burst)}
		cl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// RateLimit rejects requests from a client IP beyond r with a JSON 429.
// Place it after chi's RealIP so proxied clients are told apart.
func RateLimit(r rate.Limit, burst int) func(http.Handler) http.Handler {
	cl := newClientLimiter(r, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !cl.allow(clientIP(req)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many runs started, try again later"}` + "\n"))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// PerMinute converts a per-minute count to a rate.Limit.
func PerMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
