package resolve

import (
	"strings"
	"testing"

	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/veil/internal/classify"
)

func setup(t *testing.T, src string) (*dom.Document, *classify.Set) {
	t.Helper()
	d, err := dom.ParseString(src, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d, classify.New(classify.Thresholds{}, nil)
}

// textOf returns the first text node containing s.
func textOf(t *testing.T, d *dom.Document, s string) *dom.Node {
	t.Helper()
	var found *dom.Node
	d.Root().Walk(func(n *dom.Node) bool {
		if found == nil && n.Type == dom.TextNode && strings.Contains(n.Data, s) {
			found = n
		}
		return found == nil
	})
	if found == nil {
		t.Fatalf("no text %q", s)
	}
	return found
}

func TestTarget_PrefersLeaf(t *testing.T) {
	d, cls := setup(t, `<body><div id="c"><div id="b"><span id="a">promo code</span><p>x</p><p>y</p></div><p>z</p></div></body>`)
	got := Target(textOf(t, d, "promo"), "promo", cls)
	if got == nil || got.AttrValue("id") != "a" {
		t.Fatalf("Target: got %v, want #a", got)
	}
}

func TestTarget_SmallContainer(t *testing.T) {
	// The nearest ancestor holds three block children so it is not a
	// near-leaf; it is dense in the keyword.
	d, cls := setup(t, `<body><main><div id="box">promo <p>promo</p><p>a</p><p>b</p></div></main></body>`)
	got := Target(textOf(t, d, "promo "), "promo", cls)
	if got == nil || got.AttrValue("id") != "box" {
		t.Fatalf("Target: got %v, want #box", got)
	}
}

func TestTarget_TargetableTag(t *testing.T) {
	long := strings.Repeat("filler words ", 20)
	d, cls := setup(t, `<body><main><ul><li id="item"><div id="inner">promo `+long+`<p>a</p><p>b</p><p>c</p></div></li></ul></main></body>`)
	got := Target(textOf(t, d, "promo"), "promo", cls)
	if got == nil || got.AttrValue("id") != "item" {
		t.Fatalf("Target: got %v, want #item", got)
	}
}

func TestTarget_FallsBackToNearest(t *testing.T) {
	long := strings.Repeat("filler words ", 20)
	d, cls := setup(t, `<body><main><div id="outer"><div id="inner">promo `+long+`<p>a</p><p>b</p><p>c</p></div></div></main></body>`)
	got := Target(textOf(t, d, "promo"), "promo", cls)
	if got == nil || got.AttrValue("id") != "inner" {
		t.Fatalf("Target: got %v, want #inner", got)
	}
}

func TestTarget_SkipsFormRelated(t *testing.T) {
	d, cls := setup(t, `<body><div><div id="row"><label id="lbl">promo</label><input></div></div></body>`)
	text := textOf(t, d, "promo")
	for _, c := range Candidates(text, cls) {
		if c.Tag == "label" {
			t.Fatal("label must not be a candidate")
		}
	}
	got := Target(text, "promo", cls)
	if got == nil {
		t.Fatal("Target: got nil, want an ancestor past the label")
	}
	if got.AttrValue("id") == "lbl" {
		t.Fatal("Target resolved to the form-related label")
	}
}

func TestTarget_StopsAtHiddenAndNonContent(t *testing.T) {
	d, cls := setup(t, `<body>
		<div style="display:none"><p>promo one</p></div>
		<div><span><span data-domveil-hidden="true">promo two</span></span></div>
		<div><style>.promo { color: red }</style></div>
	</body>`)
	if got := Target(textOf(t, d, ".promo"), "promo", cls); got != nil {
		t.Errorf("style text: got %v, want nil", got)
	}
	if got := Target(textOf(t, d, "promo two"), "promo", cls); got != nil {
		t.Errorf("marked parent: got %v, want nil", got)
	}
	one := Candidates(textOf(t, d, "promo one"), cls)
	if len(one) != 1 || one[0].Tag != "p" {
		t.Errorf("hidden ancestor: candidates %v", one)
	}
}

func TestTarget_NoCandidates(t *testing.T) {
	d, cls := setup(t, `<body>promo</body>`)
	if got := Target(textOf(t, d, "promo"), "promo", cls); got != nil {
		t.Errorf("body text: got %v, want nil", got)
	}
	if got := Target(nil, "promo", cls); got != nil {
		t.Errorf("nil: got %v", got)
	}
}
