// Package shield is the HTTP middleware stack in front of the domveil
// command API: security headers, body limits, HEAD handling and per-client
// rate limiting.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(shield.Limits{Rate: 20, Burst: 40}) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// Limits bounds what one client may send.
type Limits struct {
	// Rate is requests per second per client IP. Zero disables limiting.
	Rate  float64
	Burst int
	// MaxBody caps request bodies. Default: 1 MiB.
	MaxBody int64
	// Exclude lists path prefixes that bypass rate limiting.
	Exclude []string
}

// APIStack returns the middleware for a JSON API, outermost first:
// HeadToGet, SecurityHeaders, MaxBody, then the rate limiter when enabled.
func APIStack(l Limits) []func(http.Handler) http.Handler {
	if l.MaxBody <= 0 {
		l.MaxBody = 1 << 20
	}
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(l.MaxBody),
	}
	if l.Rate > 0 {
		stack = append(stack, NewRateLimiter(l.Rate, l.Burst, l.Exclude...).Middleware)
	}
	return stack
}
