// Package veil hides the parts of a document that mention configured
// keywords and keeps hiding them while the document changes.
//
// A Session binds one engine, one monitor and one navigation detector to
// one document. All tree access happens on the session's loop goroutine;
// the exported methods are safe for concurrent use.
//
//	s, _ := veil.New(veil.WithStore(keystore.NewMemory("sponsored")))
//	defer s.Close()
//	s.Attach(ctx, doc)
//	res, _ := s.Suppress(ctx, []string{"promoted"})
package veil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/idgen"
	"github.com/hazyhaar/domveil/keystore"
	"github.com/hazyhaar/domveil/veil/internal/classify"
	"github.com/hazyhaar/domveil/veil/internal/config"
	"github.com/hazyhaar/domveil/veil/internal/monitor"
	"github.com/hazyhaar/domveil/veil/internal/sched"
	"github.com/hazyhaar/domveil/veil/internal/suppress"
)

var (
	// ErrClosed is returned once the session's loop has exited.
	ErrClosed = errors.New("veil: session closed")
	// ErrNoDocument is returned by commands issued before Attach.
	ErrNoDocument = errors.New("veil: no document attached")
)

// Config is the YAML configuration of a session and its host.
type Config = config.Config

// Record describes one hidden node.
type Record = suppress.Record

// LoadConfig reads a YAML configuration file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("veil: config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config { return config.Default() }

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the configuration. Default: DefaultConfig().
func WithConfig(cfg *Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithStore sets the keyword store. Default: an empty memory store.
func WithStore(st keystore.Store) Option {
	return func(s *Session) { s.store = st }
}

// withClock drives timers from c. Tests use a manual clock.
func withClock(c sched.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// Session is one document context.
type Session struct {
	id     string
	cfg    *Config
	logger *slog.Logger
	store  keystore.Store
	scope  *config.Scope
	clock  sched.Clock

	loop    *sched.Loop
	engine  *suppress.Engine
	monitor *monitor.Monitor
	nav     *monitor.Navigator

	ctx    context.Context
	cancel context.CancelFunc

	// doc is owned by the loop.
	doc *dom.Document

	mu      sync.Mutex
	closers []func()
	closed  bool
}

// New builds a session and starts its loop. Attach binds a document.
func New(opts ...Option) (*Session, error) {
	s := &Session{
		id:     idgen.Prefixed("ses_", idgen.Default)(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.cfg == nil {
		s.cfg = config.Default()
	}
	if s.store == nil {
		s.store = keystore.NewMemory(s.cfg.Store.Keywords...)
	}
	s.logger = s.logger.With("session", s.id)

	protect, err := dom.CompileSelectors(s.cfg.Protect)
	if err != nil {
		return nil, fmt.Errorf("veil: protect: %w", err)
	}
	scope, err := config.CompileScope(s.cfg.Pages)
	if err != nil {
		return nil, fmt.Errorf("veil: pages: %w", err)
	}
	s.scope = scope

	cls := classify.New(s.cfg.Thresholds, protect)
	s.engine = suppress.New(cls, suppress.WithLogger(s.logger))
	s.loop = sched.NewLoop(s.clock, s.logger)
	s.monitor = monitor.New(s.loop, s.engine, s.cfg.Monitor, s.logger)
	s.nav = monitor.NewNavigator(s.loop, s.monitor, s.engine, s.keywordsAt, s.cfg.Navigation, s.logger)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.loop.Run(s.ctx)

	if w, ok := s.store.(keystore.Watcher); ok {
		go s.watchStore(w)
	}
	return s, nil
}

// ID identifies the session in logs and responses.
func (s *Session) ID() string { return s.id }

// Attach binds doc and runs the load pipeline: the stored keywords for
// the document's location are applied at once, again after a short delay,
// and then kept applied as the tree changes or navigates.
func (s *Session) Attach(ctx context.Context, doc *dom.Document) error {
	return s.do(ctx, func() {
		s.monitor.Stop()
		s.nav.Stop()
		s.doc = doc
		s.nav.Start(s.ctx, doc)
	})
}

// onClose registers fn to run when the session closes, before the loop
// stops.
func (s *Session) onClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// Close stops monitoring, releases the host and stops the loop. The
// document is left as it is.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	s.loop.Do(context.Background(), func() {
		s.nav.Stop()
		s.monitor.Stop()
	})
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	s.cancel()
	<-s.loop.Done()
	s.logger.Debug("veil: session closed")
	return nil
}

// do runs fn on the loop.
func (s *Session) do(ctx context.Context, fn func()) error {
	err := s.loop.Do(ctx, fn)
	if errors.Is(err, sched.ErrStopped) {
		return ErrClosed
	}
	return err
}

// keywordsAt is the navigator's keyword source: the stored list scoped to
// location.
func (s *Session) keywordsAt(ctx context.Context, location string) ([]string, error) {
	stored, err := s.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("veil: keywords: %w", err)
	}
	return s.scope.Keywords(location, stored), nil
}

func (s *Session) watchStore(w keystore.Watcher) {
	err := w.Watch(s.ctx, func(list []string) {
		s.logger.Info("veil: stored keywords changed", "keywords", len(list))
		s.loop.Post(func() { s.nav.Reload("keywords") })
	})
	if err != nil && s.ctx.Err() == nil {
		s.logger.Warn("veil: keyword watch stopped", "error", err)
	}
}
