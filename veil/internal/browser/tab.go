package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is one Chrome page opened by a Manager.
type Tab struct {
	Page   *rod.Page
	router *rod.HijackRouter
	mgr    *Manager
}

// Open creates a page, applies stealth and resource blocking, navigates to
// pageURL and waits for the load event. timeout bounds the navigation.
func Open(ctx context.Context, mgr *Manager, pageURL string, timeout time.Duration) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{Page: page, mgr: mgr}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.router = blockResources(page, mgr.cfg.ResourceBlocking)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// URL returns the page's current location.
func (t *Tab) URL() (string, error) {
	info, err := t.Page.Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// HTML serialises the live DOM.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Close stops request interception and closes the page.
func (t *Tab) Close() error {
	if t.router != nil {
		t.router.Stop()
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
