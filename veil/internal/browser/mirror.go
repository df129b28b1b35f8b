package browser

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hazyhaar/domveil/dom"
)

// message is one report from the injected page observer.
type message struct {
	Op    string `json:"op"` // children | nav
	XPath string `json:"xpath"`
	Tag   string `json:"tag"`
	HTML  string `json:"html"`
	Kind  string `json:"kind"`
	URL   string `json:"url"`
}

func decodeMessages(payload string) ([]message, error) {
	var msgs []message
	if err := json.Unmarshal([]byte(payload), &msgs); err != nil {
		return nil, fmt.Errorf("browser: decode observer payload: %w", err)
	}
	return msgs, nil
}

func navKind(kind string) dom.NavKind {
	switch kind {
	case "push":
		return dom.NavPush
	case "replace":
		return dom.NavReplace
	default:
		return dom.NavPop
	}
}

// syncChildren makes the children of the element at xpath match html.
// Children that render identically on both sides are kept, so hidden nodes
// and their records survive unrelated insertions.
func syncChildren(doc *dom.Document, xpath, tag, html string) error {
	parent := doc.FindXPath(xpath)
	if parent == nil {
		return fmt.Errorf("browser: no mirror node at %s", xpath)
	}
	if tag == "" {
		tag = parent.Tag
	}
	fresh, err := dom.ParseFragmentIn(html, tag)
	if err != nil {
		return err
	}
	reconcile(parent, fresh)
	return nil
}

func reconcile(parent *dom.Node, fresh []*dom.Node) {
	old := append([]*dom.Node(nil), parent.Children()...)

	i := 0
	for i < len(old) && i < len(fresh) && sameNode(old[i], fresh[i]) {
		i++
	}
	j := 0
	for j < len(old)-i && j < len(fresh)-i && sameNode(old[len(old)-1-j], fresh[len(fresh)-1-j]) {
		j++
	}

	var ref *dom.Node
	if j > 0 {
		ref = old[len(old)-j]
	}
	for _, n := range old[i : len(old)-j] {
		parent.RemoveChild(n)
	}
	for _, n := range fresh[i : len(fresh)-j] {
		parent.InsertBefore(n, ref)
	}
}

func sameNode(a, b *dom.Node) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type == dom.TextNode {
		return a.Data == b.Data
	}
	return dom.RenderNode(a) == dom.RenderNode(b)
}

// pushOp is one attribute write replayed on the page.
type pushOp struct {
	XPath  string `json:"x"`
	Name   string `json:"a"`
	Value  string `json:"v"`
	Remove bool   `json:"d,omitempty"`
}

// pushQueue coalesces attribute writes made on the mirror until the page
// side drains them. The latest write per node and attribute wins.
type pushQueue struct {
	mu    sync.Mutex
	order []string
	ops   map[string]pushOp
}

func (q *pushQueue) add(records []dom.MutationRecord) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ops == nil {
		q.ops = make(map[string]pushOp)
	}
	n := 0
	for _, r := range records {
		if r.Type != dom.Attributes || r.Target == nil || !r.Target.IsAttached() {
			continue
		}
		op := pushOp{XPath: r.Target.XPath(), Name: r.AttributeName}
		v, ok := r.Target.Attr(r.AttributeName)
		op.Value, op.Remove = v, !ok
		key := op.XPath + "\x00" + op.Name
		if _, seen := q.ops[key]; !seen {
			q.order = append(q.order, key)
		}
		q.ops[key] = op
		n++
	}
	return n
}

func (q *pushQueue) drain() []pushOp {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]pushOp, 0, len(q.order))
	for _, k := range q.order {
		out = append(out, q.ops[k])
	}
	q.order = nil
	q.ops = nil
	return out
}

// pushJS applies drained ops on the page.
const pushJS = `(ops) => {
	let applied = 0;
	for (const op of ops) {
		const n = document.evaluate(op.x, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!n || n.nodeType !== 1) continue;
		if (op.d) n.removeAttribute(op.a); else n.setAttribute(op.a, op.v);
		applied++;
	}
	return applied;
}`
