package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse builds a Document from HTML.
func Parse(r io.Reader, location string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	d := &Document{
		location:  location,
		observers: make(map[int]MutationFunc),
		navs:      make(map[int]NavigationFunc),
	}
	d.setRoot(fromHTML(root))
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s, location string) (*Document, error) {
	return Parse(strings.NewReader(s), location)
}

// ParseFragment parses HTML as children of a body element and returns the
// detached top-level nodes, ready for AppendChild.
func ParseFragment(s string) ([]*Node, error) {
	return ParseFragmentIn(s, "body")
}

// ParseFragmentIn parses HTML as the children of an element named tag, so
// table rows or list items land where a browser would put them.
func ParseFragmentIn(s, tag string) ([]*Node, error) {
	tag = strings.ToLower(tag)
	ctx := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	nodes, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	out := make([]*Node, 0, len(nodes))
	for _, hn := range nodes {
		out = append(out, fromHTML(hn))
	}
	return out, nil
}

// Render writes the document as HTML.
func Render(w io.Writer, d *Document) error {
	hn, _ := toHTML(d.root, nil)
	return html.Render(w, hn)
}

// RenderNode returns the outer HTML of a single node.
func RenderNode(n *Node) string {
	hn, _ := toHTML(n, nil)
	var buf bytes.Buffer
	if err := html.Render(&buf, hn); err != nil {
		return ""
	}
	return buf.String()
}

// RenderVisible writes the document without the subtrees the inline style
// hides. Consumers that cannot apply CSS (markdown, plain text) use it.
func RenderVisible(w io.Writer, d *Document) error {
	hn, _ := toHTML(d.root, func(n *Node) bool { return !n.Hidden() })
	return html.Render(w, hn)
}

// QueryAll returns every node under root matched by the selector group.
func QueryAll(root *Node, sel cascadia.SelectorGroup) []*Node {
	if len(sel) == 0 {
		return nil
	}
	back := make(map[*html.Node]*Node)
	hn, _ := toHTML(root, nil, back)
	var out []*Node
	for _, m := range cascadia.QueryAll(hn, sel) {
		if n, ok := back[m]; ok {
			out = append(out, n)
		}
	}
	if sel.Match(hn) {
		out = append([]*Node{root}, out...)
	}
	return out
}

// CompileSelectors parses a list of CSS selectors into one group.
func CompileSelectors(selectors []string) (cascadia.SelectorGroup, error) {
	var group cascadia.SelectorGroup
	for _, s := range selectors {
		if strings.TrimSpace(s) == "" {
			continue
		}
		g, err := cascadia.ParseGroup(s)
		if err != nil {
			return nil, fmt.Errorf("dom: selector %q: %w", s, err)
		}
		group = append(group, g...)
	}
	return group, nil
}

func fromHTML(hn *html.Node) *Node {
	n := &Node{}
	switch hn.Type {
	case html.DocumentNode:
		n.Type = DocumentNode
	case html.ElementNode:
		n.Type = ElementNode
		n.Tag = strings.ToLower(hn.Data)
		for _, a := range hn.Attr {
			key := strings.ToLower(a.Key)
			if a.Namespace != "" {
				key = a.Namespace + ":" + key
			}
			n.attrs = append(n.attrs, Attr{Key: key, Val: a.Val})
		}
	case html.TextNode:
		n.Type = TextNode
		n.Data = hn.Data
	case html.CommentNode:
		n.Type = CommentNode
		n.Data = hn.Data
	case html.DoctypeNode:
		n.Type = DoctypeNode
		n.Data = hn.Data
	default:
		n.Type = CommentNode
	}
	for c := hn.FirstChild; c != nil; c = c.NextSibling {
		child := fromHTML(c)
		child.parent = n
		n.children = append(n.children, child)
	}
	return n
}

// toHTML mirrors n as an x/net/html tree. keep filters subtrees; back, when
// given, records the mapping from mirror to source nodes.
func toHTML(n *Node, keep func(*Node) bool, back ...map[*html.Node]*Node) (*html.Node, bool) {
	if keep != nil && n.Type == ElementNode && !keep(n) {
		return nil, false
	}
	hn := &html.Node{}
	switch n.Type {
	case DocumentNode:
		hn.Type = html.DocumentNode
	case ElementNode:
		hn.Type = html.ElementNode
		hn.Data = n.Tag
		for _, a := range n.attrs {
			hn.Attr = append(hn.Attr, html.Attribute{Key: a.Key, Val: a.Val})
		}
	case TextNode:
		hn.Type = html.TextNode
		hn.Data = n.Data
	case CommentNode:
		hn.Type = html.CommentNode
		hn.Data = n.Data
	case DoctypeNode:
		hn.Type = html.DoctypeNode
		hn.Data = n.Data
	}
	if len(back) > 0 && back[0] != nil {
		back[0][hn] = n
	}
	for _, c := range n.children {
		if hc, ok := toHTML(c, keep, back...); ok {
			hn.AppendChild(hc)
		}
	}
	return hn, true
}
