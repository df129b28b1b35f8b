package shield

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP. Buckets idle for
// longer than a full refill are dropped on the next sweep.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	exclude []string
	now     func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter allows perSecond requests per client with the given
// burst. Paths under excludePrefixes are never limited.
func NewRateLimiter(perSecond float64, burst int, excludePrefixes ...string) *RateLimiter {
	if burst < 1 {
		burst = int(math.Max(1, math.Ceil(perSecond)))
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		exclude: excludePrefixes,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

func (rl *RateLimiter) sweep(now time.Time) {
	idle := time.Duration(float64(rl.burst)/float64(rl.limit)*float64(time.Second)) + time.Minute
	if now.Sub(rl.lastSweep) < idle {
		return
	}
	rl.lastSweep = now
	for ip, c := range rl.clients {
		if now.Sub(c.seen) > idle {
			delete(rl.clients, ip)
		}
	}
}

// Middleware answers 429 with a JSON error once a client runs out of
// tokens.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := ExtractIP(r)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("ratelimit: request blocked", "ip", ip, "method", r.Method, "path", r.URL.Path)
		retry := int(math.Ceil(1 / float64(rl.limit)))
		w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
