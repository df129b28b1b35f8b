package shield

import "net/http"

// HeaderConfig lists the security headers set on every response. Empty
// fields are not sent.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
}

// APIHeaders is the header set for the command API. Rendered documents are
// served from it too, so nothing they reference may load or run.
func APIHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "default-src 'none'; frame-ancestors 'none'; sandbox",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
	}
}

func (c HeaderConfig) pairs() [][2]string {
	var out [][2]string
	for _, h := range [][2]string{
		{"Content-Security-Policy", c.CSP},
		{"X-Frame-Options", c.XFrameOptions},
		{"X-Content-Type-Options", c.XContentTypeOptions},
		{"Referrer-Policy", c.ReferrerPolicy},
		{"Permissions-Policy", c.PermissionsPolicy},
	} {
		if h[1] != "" {
			out = append(out, h)
		}
	}
	return out
}

// SecurityHeaders sets the headers of cfg before calling next.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	headers := cfg.pairs()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range headers {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}
