// Package fetcher acquires a page over plain HTTP, without a browser, and
// hands back a parsed document the engine can work on.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/safeurl"
)

// maxBody caps a single download.
const maxBody = 10 << 20

// Result is the outcome of one fetch.
type Result struct {
	URL      string
	Status   int
	Document *dom.Document
	// Sufficient reports whether the static HTML carries enough content to
	// be worth filtering without running scripts.
	Sufficient bool
	ETag       string
	LastMod    string
}

// Fetcher performs rate-limited HTTP GETs.
type Fetcher struct {
	client       *http.Client
	ua           string
	limiter      *rate.Limiter
	logger       *slog.Logger
	blockPrivate bool
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.ua = ua }
}

// WithRate limits requests to r per second with the given burst.
func WithRate(r float64, burst int) Option {
	return func(f *Fetcher) {
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithBlockPrivate refuses URLs, redirects included, that point at
// private or loopback addresses.
func WithBlockPrivate() Option {
	return func(f *Fetcher) { f.blockPrivate = true }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher. Without WithRate requests are not limited.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		ua:      "Mozilla/5.0 (compatible; domveil/1.0)",
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	if f.blockPrivate && f.client.CheckRedirect == nil {
		c := *f.client
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			_, err := safeurl.Check(req.URL.String(), true)
			return err
		}
		f.client = &c
	}
	return f
}

// Fetch GETs pageURL and parses the body. Non-2xx responses are errors.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	if _, err := safeurl.Check(pageURL, f.blockPrivate); err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetcher: rate: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetcher: %s: status %d", pageURL, resp.StatusCode)
	}

	encoded, err := safeurl.LimitedReadAll(resp.Body, maxBody)
	if err != nil {
		return nil, fmt.Errorf("fetcher: read body: %w", err)
	}
	body, err := charset.NewReader(bytes.NewReader(encoded), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("fetcher: charset: %w", err)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("fetcher: decode body: %w", err)
	}

	location := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		location = resp.Request.URL.String()
	}
	doc, err := dom.ParseString(string(raw), location)
	if err != nil {
		return nil, fmt.Errorf("fetcher: parse: %w", err)
	}

	res := &Result{
		URL:        location,
		Status:     resp.StatusCode,
		Document:   doc,
		Sufficient: IsSufficient(raw),
		ETag:       resp.Header.Get("ETag"),
		LastMod:    resp.Header.Get("Last-Modified"),
	}
	f.logger.Debug("fetcher: fetched",
		"url", location, "status", resp.StatusCode,
		"size", len(raw), "sufficient", res.Sufficient)
	return res, nil
}

// Head checks ETag and Last-Modified without downloading the body.
func (f *Fetcher) Head(ctx context.Context, pageURL string) (etag, lastMod string, err error) {
	if _, err := safeurl.Check(pageURL, f.blockPrivate); err != nil {
		return "", "", fmt.Errorf("fetcher: %w", err)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", "", fmt.Errorf("fetcher: rate: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, pageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("fetcher: head request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetcher: head do: %w", err)
	}
	resp.Body.Close()
	return resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), nil
}
