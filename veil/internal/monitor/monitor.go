// Package monitor keeps the suppression policy applied while a document
// changes.
//
// Monitor reacts to nodes being added: the first mutation batch that adds
// nodes arms a short debounce timer, later batches are coalesced into it,
// and one suppression pass runs when it fires. A periodic pass re-asserts
// the policy for changes the subscription cannot see, such as a script
// resetting an inline style.
//
// Navigator re-runs the whole pipeline (keywords from the store, pass,
// re-arm the monitor) when the document location changes.
package monitor

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/veil/internal/sched"
)

// Suppressor runs one suppression pass.
type Suppressor interface {
	Suppress(doc *dom.Document, keywords []string) int
}

// Config tunes the monitor timers.
type Config struct {
	// Debounce delays the pass after a burst of added nodes. Default: 100ms.
	Debounce time.Duration `yaml:"debounce"`
	// Interval is the periodic re-assertion period. Default: 2s.
	Interval time.Duration `yaml:"interval"`
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 100 * time.Millisecond
	}
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
}

// State is the debounce state.
type State int

const (
	Idle    State = iota // no pass scheduled
	Pending              // a pass is scheduled, new bursts coalesce into it
	Fired                // the scheduled pass is running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Fired:
		return "fired"
	}
	return "unknown"
}

// Stats counts what the monitor did since it was created.
type Stats struct {
	Passes    int `json:"passes"`
	Coalesced int `json:"coalesced"`
	Hidden    int `json:"hidden"`
}

// Monitor is the reactive part of a session. Every method must be called
// on the scheduler's thread.
type Monitor struct {
	sched  sched.Scheduler
	engine Suppressor
	cfg    Config
	logger *slog.Logger

	doc      *dom.Document
	keywords []string
	sub      *dom.Subscription
	ticker   *sched.Ticker
	debounce *sched.Timer
	state    State
	stats    Stats
}

// New returns a stopped Monitor.
func New(s sched.Scheduler, engine Suppressor, cfg Config, logger *slog.Logger) *Monitor {
	cfg.Defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{sched: s, engine: engine, cfg: cfg, logger: logger}
}

// Start watches doc with keywords, replacing any previous watch. An empty
// keyword set leaves the monitor stopped.
func (m *Monitor) Start(doc *dom.Document, keywords []string) {
	m.Stop()
	if doc == nil || len(keywords) == 0 {
		return
	}
	m.doc = doc
	m.keywords = append([]string(nil), keywords...)
	m.sub = doc.Observe(m.onMutations)
	m.ticker = m.sched.Every(m.cfg.Interval, func() { m.pass("interval") })
	m.logger.Debug("monitor: armed", "keywords", len(m.keywords), "location", doc.Location())
}

// Stop disconnects the subscription and cancels both timers. A pass
// already running finishes. Idempotent.
func (m *Monitor) Stop() {
	if m.sub == nil && m.ticker == nil && m.debounce == nil {
		return
	}
	m.sub.Disconnect()
	m.ticker.Stop()
	m.debounce.Stop()
	m.sub, m.ticker, m.debounce = nil, nil, nil
	m.doc, m.keywords = nil, nil
	m.state = Idle
	m.logger.Debug("monitor: stopped")
}

// Armed reports whether the monitor is watching a document.
func (m *Monitor) Armed() bool { return m.sub != nil }

// Keywords returns the tracked keywords.
func (m *Monitor) Keywords() []string { return append([]string(nil), m.keywords...) }

// State returns the debounce state.
func (m *Monitor) State() State { return m.state }

// Stats returns the counters.
func (m *Monitor) Stats() Stats { return m.stats }

func (m *Monitor) onMutations(records []dom.MutationRecord) {
	if !m.Armed() || !addsNodes(records) {
		return
	}
	switch m.state {
	case Pending:
		m.stats.Coalesced++
	case Idle:
		m.state = Pending
		m.debounce = m.sched.After(m.cfg.Debounce, m.fire)
	}
	// Mutations made by the pass itself while Fired are ignored.
}

func (m *Monitor) fire() {
	m.debounce = nil
	m.state = Fired
	m.pass("debounce")
	if m.state == Fired {
		m.state = Idle
	}
}

func (m *Monitor) pass(reason string) {
	if !m.Armed() || m.doc.Root() == nil {
		return
	}
	n := m.engine.Suppress(m.doc, m.keywords)
	m.stats.Passes++
	m.stats.Hidden += n
	if n > 0 {
		m.logger.Info("monitor: pass", "reason", reason, "hidden", n, "location", m.doc.Location())
	}
}

func addsNodes(records []dom.MutationRecord) bool {
	for _, r := range records {
		if r.Type == dom.ChildList && len(r.Added) > 0 {
			return true
		}
	}
	return false
}
