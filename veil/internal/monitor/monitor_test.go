package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/veil/internal/classify"
	"github.com/hazyhaar/domveil/veil/internal/sched"
	"github.com/hazyhaar/domveil/veil/internal/suppress"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingEngine struct {
	*suppress.Engine
	calls int
}

func (c *countingEngine) Suppress(doc *dom.Document, keywords []string) int {
	c.calls++
	return c.Engine.Suppress(doc, keywords)
}

type harness struct {
	clock  *sched.ManualClock
	engine *countingEngine
	mon    *Monitor
	doc    *dom.Document
}

func newHarness(t *testing.T, src string) *harness {
	t.Helper()
	doc, err := dom.ParseString(src, "https://example.com/a")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	clock := sched.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	engine := &countingEngine{Engine: suppress.New(classify.New(classify.Thresholds{}, nil), suppress.WithLogger(quiet))}
	mon := New(sched.Inline{Clock: clock}, engine, Config{}, quiet)
	return &harness{clock: clock, engine: engine, mon: mon, doc: doc}
}

func (h *harness) list(t *testing.T) *dom.Node {
	t.Helper()
	var ul *dom.Node
	h.doc.Root().Walk(func(n *dom.Node) bool {
		if ul == nil && n.IsElement("ul") {
			ul = n
		}
		return ul == nil
	})
	if ul == nil {
		t.Fatal("no ul")
	}
	return ul
}

const feed = `<body><div><ul><li>first</li><li>second</li></ul></div></body>`

func TestMonitor_DebouncesBurstIntoOnePass(t *testing.T) {
	h := newHarness(t, feed)
	h.mon.Start(h.doc, []string{"promo"})

	ul := h.list(t)
	var added []*dom.Node
	for i := range 5 {
		li := dom.NewElement("li")
		li.AppendChild(dom.NewText(fmt.Sprintf("promo %d", i)))
		ul.AppendChild(li)
		added = append(added, li)
	}
	if h.mon.State() != Pending {
		t.Fatalf("state: got %v, want pending", h.mon.State())
	}

	h.clock.Advance(99 * time.Millisecond)
	if h.engine.calls != 0 {
		t.Fatalf("pass ran before the debounce delay")
	}
	h.clock.Advance(time.Millisecond)
	if h.engine.calls != 1 {
		t.Fatalf("passes: got %d, want 1", h.engine.calls)
	}
	for _, li := range added {
		if !li.Marked() {
			t.Errorf("added node %s not hidden", li.XPath())
		}
	}
	st := h.mon.Stats()
	if st.Coalesced != 4 || st.Hidden != 5 {
		t.Errorf("stats: %+v", st)
	}
	if h.mon.State() != Idle {
		t.Errorf("state after pass: %v", h.mon.State())
	}
}

func TestMonitor_EmptyKeywordsNotArmed(t *testing.T) {
	h := newHarness(t, feed)
	h.mon.Start(h.doc, nil)
	if h.mon.Armed() {
		t.Fatal("armed with no keywords")
	}
	if h.doc.Observers() != 0 {
		t.Errorf("observers: %d", h.doc.Observers())
	}
	h.list(t).AppendChild(dom.NewElement("li"))
	h.clock.Advance(10 * time.Second)
	if h.engine.calls != 0 {
		t.Errorf("passes: %d", h.engine.calls)
	}
	if h.clock.Pending() != 0 {
		t.Errorf("timers armed: %d", h.clock.Pending())
	}
}

func TestMonitor_PeriodicPass(t *testing.T) {
	h := newHarness(t, `<body><div><p>plain</p></div></body>`)
	h.mon.Start(h.doc, []string{"promo"})

	var text *dom.Node
	h.doc.Root().Walk(func(n *dom.Node) bool {
		if n.Type == dom.TextNode && n.Data == "plain" {
			text = n
		}
		return true
	})
	text.SetText("promo now")

	h.clock.Advance(time.Second)
	if h.engine.calls != 0 {
		t.Fatal("character data change triggered the debounce")
	}
	h.clock.Advance(time.Second)
	if h.engine.calls != 1 || !text.Parent().Marked() {
		t.Errorf("interval pass: calls=%d hidden=%v", h.engine.calls, text.Parent().Marked())
	}
	h.clock.Advance(4 * time.Second)
	if h.engine.calls != 3 {
		t.Errorf("passes after 6s: %d", h.engine.calls)
	}
}

func TestMonitor_StopCancelsPendingDebounce(t *testing.T) {
	h := newHarness(t, feed)
	h.mon.Start(h.doc, []string{"promo"})
	h.list(t).AppendChild(dom.NewElement("li"))
	h.mon.Stop()
	h.mon.Stop()

	h.clock.Advance(5 * time.Second)
	if h.engine.calls != 0 {
		t.Errorf("passes after stop: %d", h.engine.calls)
	}
	if h.doc.Observers() != 0 || h.mon.Armed() {
		t.Error("subscription left behind")
	}
}

func TestMonitor_RestartReplacesSubscription(t *testing.T) {
	h := newHarness(t, feed)
	h.mon.Start(h.doc, []string{"a"})
	h.mon.Start(h.doc, []string{"b", "c"})
	if h.doc.Observers() != 1 {
		t.Errorf("observers: got %d, want 1", h.doc.Observers())
	}
	if kw := h.mon.Keywords(); len(kw) != 2 || kw[0] != "b" {
		t.Errorf("keywords: %v", kw)
	}
	h.clock.Advance(2 * time.Second)
	if h.engine.calls != 1 {
		t.Errorf("interval passes: got %d, want 1", h.engine.calls)
	}
}

func TestMonitor_TreeReplacement(t *testing.T) {
	h := newHarness(t, feed)
	h.mon.Start(h.doc, []string{"promo"})

	fresh, err := dom.ParseString(`<body><div><p id="n">promo</p></div></body>`, "")
	if err != nil {
		t.Fatal(err)
	}
	h.doc.Replace(fresh.Root())
	h.clock.Advance(100 * time.Millisecond)
	if h.engine.calls != 1 {
		t.Fatalf("passes: %d", h.engine.calls)
	}
	p := h.doc.Body().ElementChildren()[0].ElementChildren()[0]
	if !p.Marked() {
		t.Error("node of the new tree not hidden")
	}
}

type fakeStore map[string][]string

func (s fakeStore) lookup(_ context.Context, location string) ([]string, error) {
	if location == "https://example.com/broken" {
		return nil, errors.New("store down")
	}
	return s[location], nil
}

func newNavigator(h *harness, store fakeStore) *Navigator {
	return NewNavigator(sched.Inline{Clock: h.clock}, h.mon, h.engine, store.lookup, NavConfig{}, quiet)
}

func TestNavigator_InitialLoad(t *testing.T) {
	h := newHarness(t, `<body><div><p>promo</p></div></body>`)
	nav := newNavigator(h, fakeStore{"https://example.com/a": {"promo"}})
	nav.Start(context.Background(), h.doc)

	if h.engine.calls != 1 {
		t.Fatalf("immediate pass: %d", h.engine.calls)
	}
	if h.mon.Armed() {
		t.Fatal("monitor armed before the follow-up pass")
	}
	h.clock.Advance(100 * time.Millisecond)
	if h.engine.calls != 2 || !h.mon.Armed() {
		t.Errorf("follow-up: calls=%d armed=%v", h.engine.calls, h.mon.Armed())
	}
}

func TestNavigator_PushRunsTwice(t *testing.T) {
	h := newHarness(t, feed)
	nav := newNavigator(h, fakeStore{
		"https://example.com/a": nil,
		"https://example.com/b": {"promo"},
	})
	nav.Start(context.Background(), h.doc)
	if h.engine.calls != 0 || h.mon.Armed() {
		t.Fatal("no keywords at /a, engine should be inert")
	}

	h.doc.Navigate(dom.NavPush, "https://example.com/b")
	if nav.Runs() != 2 || h.engine.calls != 1 {
		t.Fatalf("immediate run: runs=%d calls=%d", nav.Runs(), h.engine.calls)
	}

	// Content rendered after the event, before the monitor is re-armed.
	li := dom.NewElement("li")
	li.AppendChild(dom.NewText("promo late"))
	h.list(t).AppendChild(li)

	h.clock.Advance(500 * time.Millisecond)
	if nav.Runs() != 3 {
		t.Errorf("settle run: runs=%d", nav.Runs())
	}
	if !li.Marked() {
		t.Error("late node not hidden")
	}
}

func TestNavigator_PollDetectsSilentChange(t *testing.T) {
	h := newHarness(t, feed)
	nav := newNavigator(h, fakeStore{"https://example.com/a": {"x"}, "https://example.com/c": {"y"}})
	nav.Start(context.Background(), h.doc)
	h.clock.Advance(time.Second)

	h.doc.SetLocation("https://example.com/c")
	h.clock.Advance(time.Second)
	if nav.Runs() != 2 {
		t.Fatalf("poll: runs=%d, want 2", nav.Runs())
	}
	h.clock.Advance(500 * time.Millisecond)
	if nav.Runs() != 3 {
		t.Errorf("settle after poll: runs=%d", nav.Runs())
	}
	h.clock.Advance(200 * time.Millisecond)
	if kw := h.mon.Keywords(); len(kw) != 1 || kw[0] != "y" {
		t.Errorf("monitor keywords: %v", kw)
	}
}

func TestNavigator_EmptyKeywordsStopMonitor(t *testing.T) {
	h := newHarness(t, feed)
	nav := newNavigator(h, fakeStore{"https://example.com/a": {"promo"}})
	nav.Start(context.Background(), h.doc)
	h.clock.Advance(100 * time.Millisecond)
	if !h.mon.Armed() {
		t.Fatal("setup: monitor not armed")
	}
	h.doc.Navigate(dom.NavReplace, "https://example.com/none")
	if h.mon.Armed() {
		t.Error("monitor still armed at a location without keywords")
	}
}

func TestNavigator_LookupErrorKeepsState(t *testing.T) {
	h := newHarness(t, feed)
	nav := newNavigator(h, fakeStore{"https://example.com/a": {"promo"}})
	nav.Start(context.Background(), h.doc)
	h.clock.Advance(100 * time.Millisecond)

	h.doc.Navigate(dom.NavPop, "https://example.com/broken")
	if !h.mon.Armed() {
		t.Error("lookup failure should not disarm the monitor")
	}
	nav.Stop()
	calls := h.engine.calls
	h.doc.Navigate(dom.NavPush, "https://example.com/a")
	if nav.Runs() != 2 || h.engine.calls != calls {
		t.Errorf("navigator ran after Stop: runs=%d", nav.Runs())
	}
}

func TestNavigator_CancelPendingSkipsFollowUp(t *testing.T) {
	h := newHarness(t, `<body><div><p>promo</p></div></body>`)
	nav := newNavigator(h, fakeStore{"https://example.com/a": {"promo"}})
	nav.Start(context.Background(), h.doc)

	nav.CancelPending()
	h.clock.Advance(time.Second)
	if h.engine.calls != 1 {
		t.Errorf("calls: got %d, want 1", h.engine.calls)
	}
	if h.mon.Armed() {
		t.Error("monitor armed by a cancelled follow-up")
	}
}
