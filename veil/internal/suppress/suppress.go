// Package suppress hides the nodes matching a keyword set and reverts them.
//
// An Engine keeps one Record per node it hid. Suppress is idempotent: a
// second call with the same keywords and an unchanged tree hides nothing,
// because hidden nodes carry the marker attribute and the text pass does
// not descend into them. Restore reverts every record still attached and
// then sweeps the current tree for markers left behind by records that
// went stale across a tree replacement.
package suppress

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/idgen"
	"github.com/hazyhaar/domveil/veil/internal/classify"
	"github.com/hazyhaar/domveil/veil/internal/match"
	"github.com/hazyhaar/domveil/veil/internal/resolve"
)

// Record is one hidden node.
type Record struct {
	ID      string    `json:"id"`
	Node    *dom.Node `json:"-"`
	XPath   string    `json:"xpath"`
	Display string    `json:"original_display"`
	Keyword string    `json:"keyword"`
	// Parent and Next locate the node at hide time. Informational only:
	// nodes are hidden in place.
	Parent   *dom.Node `json:"-"`
	Next     *dom.Node `json:"-"`
	HiddenAt time.Time `json:"hidden_at"`

	style    string // raw style attribute before hiding
	hadStyle bool
	applied  string // raw style attribute right after hiding
}

// revert restores the node's visibility. The original style attribute is
// written back verbatim unless something else rewrote it meanwhile, in
// which case only the display value is restored.
func (r Record) revert() {
	cur, ok := r.Node.Attr("style")
	switch {
	case ok && cur == r.applied && r.hadStyle:
		r.Node.SetAttr("style", r.style)
	case ok && cur == r.applied:
		r.Node.RemoveAttr("style")
	default:
		r.Node.SetDisplay(r.Display)
	}
	r.Node.SetMarked(false)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator sets the record ID strategy. Default: prefixed UUIDv7.
func WithIDGenerator(g idgen.Generator) Option {
	return func(e *Engine) { e.newID = g }
}

// WithNow sets the time source used for HiddenAt.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns the suppression records of one document context. It is not
// safe for concurrent use.
type Engine struct {
	cls     *classify.Set
	records []Record
	logger  *slog.Logger
	newID   idgen.Generator
	now     func() time.Time
}

// New returns an Engine evaluating targets with cls.
func New(cls *classify.Set, opts ...Option) *Engine {
	e := &Engine{
		cls:    cls,
		logger: slog.Default(),
		newID:  idgen.Prefixed("sup_", idgen.Default),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type processed map[*dom.Node]struct{}

func (p processed) has(n *dom.Node) bool {
	_, ok := p[n]
	return ok
}

// markUp marks n and its ancestors up to body.
func (p processed) markUp(n *dom.Node) {
	for cur := n; cur != nil && cur.Type == dom.ElementNode && cur.Tag != "body"; cur = cur.Parent() {
		p[cur] = struct{}{}
	}
}

// markDown marks n and its whole subtree.
func (p processed) markDown(n *dom.Node) {
	n.Walk(func(c *dom.Node) bool {
		p[c] = struct{}{}
		return true
	})
}

// Suppress hides the nodes matching keywords in caller order and returns
// how many nodes this call newly hid. Empty keywords are skipped; an empty
// set leaves the tree untouched.
func (e *Engine) Suppress(doc *dom.Document, keywords []string) int {
	if doc == nil || len(keywords) == 0 {
		return 0
	}
	e.cls.Prepare(doc)
	seen := make(processed)
	// above holds the hidden nodes and their ancestors. A candidate found
	// there would hide a subtree that already contains a hidden node.
	above := make(processed)
	// Nodes hidden by an earlier pass block their ancestors and subtree
	// exactly as they did when they were hidden.
	doc.Root().Walk(func(n *dom.Node) bool {
		if n.Marked() {
			seen.markUp(n)
			seen.markDown(n)
			above.markUp(n)
			return false
		}
		return true
	})
	hidden := 0
	for _, raw := range keywords {
		kw := strings.ToLower(raw)
		if strings.TrimSpace(kw) == "" {
			continue
		}
		candidates := e.attributePass(doc, kw, seen)
		candidates = append(candidates, e.textPass(doc, kw, seen)...)
		for _, n := range candidates {
			if above.has(n) {
				continue
			}
			if e.hide(n, raw) {
				seen.markUp(n)
				above.markUp(n)
				hidden++
			}
		}
	}
	if hidden > 0 {
		e.logger.Debug("suppress: pass", "hidden", hidden, "records", len(e.records), "location", doc.Location())
	}
	return hidden
}

func (e *Engine) attributePass(doc *dom.Document, kw string, seen processed) []*dom.Node {
	var out []*dom.Node
	doc.Root().Walk(func(n *dom.Node) bool {
		if n.Type != dom.ElementNode || seen.has(n) {
			return true
		}
		// Scaffolding is never hidden, so a match on it must not claim
		// its subtree.
		if match.Attributes(n, kw) && !e.cls.ImportantContainer(n) {
			out = append(out, n)
			seen.markUp(n)
			seen.markDown(n)
		}
		return true
	})
	return out
}

func (e *Engine) textPass(doc *dom.Document, kw string, seen processed) []*dom.Node {
	body := doc.Body()
	if body == nil {
		return nil
	}
	var out []*dom.Node
	body.Walk(func(n *dom.Node) bool {
		if n.Marked() {
			return false
		}
		if n.Type != dom.TextNode || seen.has(n) {
			return true
		}
		if !strings.Contains(strings.ToLower(n.Data), kw) {
			return true
		}
		target := resolve.Target(n, kw, e.cls)
		if target == nil || seen.has(target) {
			return true
		}
		out = append(out, target)
		seen.markDown(target)
		return true
	})
	return out
}

func (e *Engine) hide(n *dom.Node, keyword string) bool {
	if n.Marked() || n.Hidden() || e.cls.ImportantContainer(n) {
		return false
	}
	style, hadStyle := n.Attr("style")
	rec := Record{
		ID:       e.newID(),
		Node:     n,
		XPath:    n.XPath(),
		Display:  n.Display(),
		Keyword:  keyword,
		Parent:   n.Parent(),
		Next:     n.NextSibling(),
		HiddenAt: e.now(),
		style:    style,
		hadStyle: hadStyle,
	}
	n.SetDisplay("none")
	rec.applied = n.AttrValue("style")
	n.SetMarked(true)
	e.records = append(e.records, rec)
	return true
}

// Restore reverts every record and clears every marker in doc. It never
// panics: a fault during the sweep is logged and reported as false.
func (e *Engine) Restore(doc *dom.Document) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("suppress: restore failed", "error", fmt.Sprint(r))
			ok = false
		}
		e.records = nil
	}()

	restored := 0
	for i := len(e.records) - 1; i >= 0; i-- {
		rec := e.records[i]
		if rec.Node == nil || !rec.Node.IsAttached() {
			continue
		}
		rec.revert()
		restored++
	}

	swept := 0
	if doc != nil && doc.Root() != nil {
		var stale []*dom.Node
		doc.Root().Walk(func(n *dom.Node) bool {
			if n.Marked() {
				stale = append(stale, n)
			}
			return true
		})
		for _, n := range stale {
			n.SetDisplay("")
			n.SetMarked(false)
			swept++
		}
	}
	e.logger.Debug("suppress: restored", "records", restored, "swept", swept)
	return true
}

// Records returns a copy of the live records in hide order.
func (e *Engine) Records() []Record {
	return append([]Record(nil), e.records...)
}

// Len is the number of live records.
func (e *Engine) Len() int { return len(e.records) }
