package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/veil/internal/sched"
)

// KeywordSource returns the keywords that apply at location.
type KeywordSource func(ctx context.Context, location string) ([]string, error)

// NavConfig tunes the navigation detector.
type NavConfig struct {
	// PollInterval is the location polling period, the fallback for hosts
	// that do not report navigations. Default: 2s.
	PollInterval time.Duration `yaml:"poll_interval"`
	// SettleDelay is the delay of the second pipeline run after a
	// navigation, for content rendered after the event. Default: 500ms.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// FollowUp is the delay between the first pass of a pipeline run and
	// the second pass that arms the monitor. Default: 100ms.
	FollowUp time.Duration `yaml:"follow_up"`
}

// Defaults fills zero fields.
func (c *NavConfig) Defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 500 * time.Millisecond
	}
	if c.FollowUp <= 0 {
		c.FollowUp = 100 * time.Millisecond
	}
}

// Navigator re-initialises suppression on location changes.
type Navigator struct {
	sched   sched.Scheduler
	monitor *Monitor
	engine  Suppressor
	source  KeywordSource
	cfg     NavConfig
	logger  *slog.Logger

	ctx      context.Context
	doc      *dom.Document
	last     string
	sub      *dom.Subscription
	poll     *sched.Ticker
	settle   *sched.Timer
	followUp *sched.Timer
	runs     int
}

// NewNavigator returns a stopped Navigator driving m.
func NewNavigator(s sched.Scheduler, m *Monitor, engine Suppressor, source KeywordSource, cfg NavConfig, logger *slog.Logger) *Navigator {
	cfg.Defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{sched: s, monitor: m, engine: engine, source: source, cfg: cfg, logger: logger}
}

// Start watches doc for navigations and runs the pipeline once for the
// current location. ctx bounds keyword lookups.
func (n *Navigator) Start(ctx context.Context, doc *dom.Document) {
	n.Stop()
	n.ctx = ctx
	n.doc = doc
	n.last = doc.Location()
	n.sub = doc.OnNavigate(n.onNavigate)
	n.poll = n.sched.Every(n.cfg.PollInterval, n.check)
	n.Reload("load")
}

// Stop cancels polling, the subscription and any pending run. The monitor
// is left as is.
func (n *Navigator) Stop() {
	n.sub.Disconnect()
	n.poll.Stop()
	n.settle.Stop()
	n.followUp.Stop()
	n.sub, n.poll, n.settle, n.followUp = nil, nil, nil, nil
	n.doc = nil
}

// CancelPending drops a scheduled settle or follow-up run. Navigation
// watching continues.
func (n *Navigator) CancelPending() {
	n.settle.Stop()
	n.followUp.Stop()
	n.settle, n.followUp = nil, nil
}

// Runs is the number of pipeline runs so far.
func (n *Navigator) Runs() int { return n.runs }

func (n *Navigator) onNavigate(nav dom.Navigation) {
	n.last = nav.To
	n.trigger(string(nav.Kind))
}

func (n *Navigator) check() {
	if n.doc == nil {
		return
	}
	if loc := n.doc.Location(); loc != n.last {
		n.last = loc
		n.trigger("poll")
	}
}

// trigger runs the pipeline now and again after the settle delay. A
// navigation arriving while the delayed run is pending pushes it back.
func (n *Navigator) trigger(reason string) {
	n.logger.Debug("monitor: navigation", "reason", reason, "location", n.last)
	n.Reload(reason)
	n.settle.Stop()
	n.settle = n.sched.After(n.cfg.SettleDelay, func() {
		n.settle = nil
		n.Reload(reason + "+settle")
	})
}

// Reload fetches the keywords for the current location, runs a pass, and
// after the follow-up delay runs another pass and arms the monitor. With
// no keywords the monitor is stopped.
func (n *Navigator) Reload(reason string) {
	if n.doc == nil {
		return
	}
	n.runs++
	keywords, err := n.source(n.ctx, n.doc.Location())
	if err != nil {
		n.logger.Warn("monitor: keyword lookup failed", "reason", reason, "error", err)
		return
	}
	n.followUp.Stop()
	n.followUp = nil
	if len(keywords) == 0 {
		n.monitor.Stop()
		return
	}
	doc := n.doc
	hidden := n.engine.Suppress(doc, keywords)
	n.followUp = n.sched.After(n.cfg.FollowUp, func() {
		n.followUp = nil
		if n.doc != doc {
			return
		}
		hidden := n.engine.Suppress(doc, keywords)
		n.monitor.Start(doc, keywords)
		if hidden > 0 {
			n.logger.Debug("monitor: follow-up pass", "reason", reason, "hidden", hidden)
		}
	})
	n.logger.Info("monitor: reload", "reason", reason, "keywords", len(keywords), "hidden", hidden, "location", doc.Location())
}
