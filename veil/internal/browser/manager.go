// Package browser drives a Chrome page through rod and mirrors it into a
// dom.Document, so the engine can filter live pages.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned by a Manager after Close.
var ErrClosed = errors.New("browser: manager is closed")

// Config selects how Chrome is obtained for live sessions.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome. Empty
	// launches a local one.
	RemoteURL string
	// Bin is the Chrome executable. Empty lets the launcher find or
	// download one.
	Bin string
	// Stealth applies go-rod/stealth evasions to new pages.
	Stealth bool
	// Headful runs Chrome with a window on an Xvfb display.
	Headful bool
	// Display is the Xvfb display for headful mode. Default: ":99".
	Display string
	// ResourceBlocking lists request types to abort: image, font, media,
	// stylesheet.
	ResourceBlocking []string

	Logger *slog.Logger
}

// Manager owns one Chrome process or remote connection, shared by the
// tabs of a session.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	display *display
	closed  bool
}

// NewManager creates a Manager. Start launches Chrome.
func NewManager(cfg Config) *Manager {
	if cfg.Display == "" {
		cfg.Display = ":99"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{cfg: cfg}
}

// Start launches Chrome, or connects to the remote instance, once.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}
	b, err := m.launch(ctx)
	if err != nil {
		m.cleanup()
		return nil, err
	}
	m.browser = b
	return b, nil
}

// Browser returns the rod handle, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	ws := m.cfg.RemoteURL
	if ws == "" {
		l := launcher.New().Context(ctx).
			Headless(!m.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.Headful {
			d, err := startDisplay(ctx, m.cfg.Display)
			if err != nil {
				return nil, fmt.Errorf("browser: %w", err)
			}
			m.display = d
			l = l.Env("DISPLAY=" + d.name)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		m.lnch, ws = l, u
		log.Info("browser: chrome launched", "headful", m.cfg.Headful)
	} else {
		log.Info("browser: using remote chrome", "url", ws)
	}

	b := rod.New().ControlURL(ws)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect %s: %w", ws, err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.display.stop()
	m.display = nil
}
