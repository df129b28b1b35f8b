package veil

import (
	"context"
	"fmt"
	"io"

	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/safeurl"
	"github.com/hazyhaar/domveil/veil/internal/browser"
	"github.com/hazyhaar/domveil/veil/internal/fetcher"
)

// Parse reads a static document and attaches it.
func (s *Session) Parse(ctx context.Context, r io.Reader, location string) error {
	doc, err := dom.Parse(r, location)
	if err != nil {
		return fmt.Errorf("veil: %w", err)
	}
	return s.Attach(ctx, doc)
}

// Fetch downloads pageURL over plain HTTP and attaches the result. Pages
// whose static HTML looks like a client-rendered shell are still attached,
// with a warning: OpenLive sees what their scripts render.
func (s *Session) Fetch(ctx context.Context, pageURL string) error {
	fc := s.cfg.Fetch
	opts := []fetcher.Option{
		fetcher.WithUserAgent(fc.UserAgent),
		fetcher.WithRate(fc.Rate, fc.Burst),
		fetcher.WithLogger(s.logger),
	}
	if fc.BlockPrivate {
		opts = append(opts, fetcher.WithBlockPrivate())
	}
	f := fetcher.New(opts...)
	ctx, cancel := context.WithTimeout(ctx, fc.Timeout)
	defer cancel()

	res, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("veil: %w", err)
	}
	if !res.Sufficient {
		s.logger.Warn("veil: static HTML looks script-rendered", "url", res.URL)
	}
	return s.Attach(ctx, res.Document)
}

// OpenLive opens pageURL in Chrome and attaches a mirror of the live page.
// Hiding and restoring are applied to the page itself. Close releases the
// browser.
func (s *Session) OpenLive(ctx context.Context, pageURL string) error {
	if _, err := safeurl.Check(pageURL, s.cfg.Fetch.BlockPrivate); err != nil {
		return fmt.Errorf("veil: %w", err)
	}
	bc := s.cfg.Browser
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        bc.Remote,
		Bin:              bc.Bin,
		Stealth:          bc.Stealth,
		Headful:          bc.Headful,
		ResourceBlocking: bc.ResourceBlocking,
		Logger:           s.logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("veil: %w", err)
	}
	tab, err := browser.Open(ctx, mgr, pageURL, bc.NavigateTimeout)
	if err != nil {
		mgr.Close()
		return fmt.Errorf("veil: %w", err)
	}
	bridge, err := browser.Attach(s.ctx, tab, s.loop, s.logger)
	if err != nil {
		tab.Close()
		mgr.Close()
		return fmt.Errorf("veil: %w", err)
	}
	s.onClose(func() {
		bridge.Close()
		tab.Close()
		mgr.Close()
	})
	return s.Attach(ctx, bridge.Document())
}
