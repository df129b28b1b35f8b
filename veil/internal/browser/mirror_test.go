package browser

import (
	"strings"
	"testing"

	"github.com/hazyhaar/domveil/dom"
)

func mirror(t *testing.T, body string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString("<html><head></head><body>"+body+"</body></html>", "https://example.test/")
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestSyncChildren_KeepsUnchangedNodes(t *testing.T) {
	doc := mirror(t, `<ul><li id="a">one</li><li id="b">two</li></ul>`)
	ul := doc.FindXPath("/html/body/ul")
	first := ul.ElementChildren()[0]
	first.SetDisplay("none")
	first.SetMarked(true)

	var added []*dom.Node
	doc.Observe(func(recs []dom.MutationRecord) {
		for _, r := range recs {
			added = append(added, r.Added...)
		}
	})

	page := dom.RenderNode(first) + `<li id="b">two</li><li id="c">three</li>`
	if err := syncChildren(doc, "/html/body/ul", "ul", page); err != nil {
		t.Fatal(err)
	}

	kids := ul.ElementChildren()
	if len(kids) != 3 {
		t.Fatalf("children: got %d, want 3", len(kids))
	}
	if kids[0] != first {
		t.Error("unchanged hidden node was replaced")
	}
	if len(added) != 1 || added[0].AttrValue("id") != "c" {
		t.Errorf("added: got %d nodes", len(added))
	}
}

func TestSyncChildren_Removal(t *testing.T) {
	doc := mirror(t, `<div id="feed"><p>a</p><p>b</p><p>c</p></div>`)
	if err := syncChildren(doc, "/html/body/div", "div", `<p>a</p><p>c</p>`); err != nil {
		t.Fatal(err)
	}
	got := doc.FindXPath("/html/body/div").TextContent()
	if got != "ac" {
		t.Errorf("got %q, want %q", got, "ac")
	}
}

func TestSyncChildren_TableContext(t *testing.T) {
	doc := mirror(t, `<table><tbody><tr><td>a</td></tr></tbody></table>`)
	err := syncChildren(doc, "/html/body/table/tbody", "tbody", `<tr><td>a</td></tr><tr><td>sponsored</td></tr>`)
	if err != nil {
		t.Fatal(err)
	}
	rows := doc.FindXPath("/html/body/table/tbody").ElementChildren()
	if len(rows) != 2 || !rows[1].IsElement("tr") {
		t.Fatalf("rows: got %d", len(rows))
	}
}

func TestSyncChildren_UnknownPath(t *testing.T) {
	doc := mirror(t, `<div></div>`)
	if err := syncChildren(doc, "/html/body/section", "section", "<p>x</p>"); err == nil {
		t.Fatal("expected error for missing node")
	}
}

func TestPushQueue_Coalesces(t *testing.T) {
	doc := mirror(t, `<div id="x"></div><div id="y" style="color: red"></div>`)
	var q pushQueue
	doc.Observe(func(recs []dom.MutationRecord) { q.add(recs) })

	x := doc.FindXPath("/html/body/div[1]")
	y := doc.FindXPath("/html/body/div[2]")
	x.SetDisplay("none")
	x.SetMarked(true)
	y.SetDisplay("none")
	y.SetDisplay("")
	x.SetMarked(false)

	ops := q.drain()
	if len(ops) != 3 {
		t.Fatalf("ops: got %d, want 3: %+v", len(ops), ops)
	}
	if ops[0].XPath != "/html/body/div[1]" || ops[0].Name != "style" || !strings.Contains(ops[0].Value, "none") {
		t.Errorf("first op: %+v", ops[0])
	}
	if ops[1].Name != dom.MarkerAttr || !ops[1].Remove {
		t.Errorf("marker op should be a removal: %+v", ops[1])
	}
	if ops[2].XPath != "/html/body/div[2]" || ops[2].Value != y.AttrValue("style") || strings.Contains(ops[2].Value, "none") {
		t.Errorf("restored style op: %+v", ops[2])
	}
	if len(q.drain()) != 0 {
		t.Error("drain did not empty the queue")
	}
}

func TestDecodeMessages(t *testing.T) {
	msgs, err := decodeMessages(`[{"op":"nav","kind":"push","url":"https://example.test/b"},{"op":"children","xpath":"/html/body","tag":"body","html":"<p>x</p>"}]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].URL != "https://example.test/b" || msgs[1].Tag != "body" {
		t.Fatalf("decoded: %+v", msgs)
	}
	if _, err := decodeMessages("not json"); err == nil {
		t.Error("expected error")
	}
}

func TestNavKind(t *testing.T) {
	tests := map[string]dom.NavKind{
		"push":    dom.NavPush,
		"replace": dom.NavReplace,
		"pop":     dom.NavPop,
		"":        dom.NavPop,
	}
	for in, want := range tests {
		if got := navKind(in); got != want {
			t.Errorf("navKind(%q) = %q, want %q", in, got, want)
		}
	}
}
