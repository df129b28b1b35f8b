// Package dom is the mutable document tree the suppression engine works on.
//
// A Document owns a strict tree of Nodes. Every structural or attribute
// change made through the Node API is reported to the Document's mutation
// observers, and location changes are reported to its navigation observers,
// so hosts (a parsed HTML file, a live browser tab) can drive the engine
// through one abstraction.
//
// Attributes are kept as an ordered list. Keys starting with ReservedPrefix
// belong to the engine: they carry the hidden-marker and are never treated
// as page content.
package dom

import (
	"strings"
)

// NodeType is the kind of a Node.
type NodeType int

const (
	DocumentNode NodeType = iota + 1
	ElementNode
	TextNode
	CommentNode
	DoctypeNode
)

// ReservedPrefix marks attributes owned by the engine.
const ReservedPrefix = "data-domveil-"

// MarkerAttr is the hidden-marker attribute set on every node the engine hides.
const MarkerAttr = ReservedPrefix + "hidden"

// Attr is a single attribute. Keys are lower-case.
type Attr struct {
	Key string
	Val string
}

// Node is one element, text run, comment or the document root.
type Node struct {
	Type NodeType
	// Tag is the lower-case tag name for elements.
	Tag string
	// Data is the character data of text and comment nodes.
	Data string

	attrs    []Attr
	parent   *Node
	children []*Node
	doc      *Document
}

// NewElement returns a detached element.
func NewElement(tag string, attrs ...Attr) *Node {
	n := &Node{Type: ElementNode, Tag: strings.ToLower(tag)}
	for _, a := range attrs {
		n.attrs = append(n.attrs, Attr{Key: strings.ToLower(a.Key), Val: a.Val})
	}
	return n
}

// NewText returns a detached text node.
func NewText(data string) *Node {
	return &Node{Type: TextNode, Data: data}
}

// Parent returns the parent node, nil for roots and detached nodes.
func (n *Node) Parent() *Node { return n.parent }

// Document returns the owning document, nil if the node was never inserted.
func (n *Node) Document() *Document { return n.doc }

// Children returns the child list. The slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

// ElementChildren returns the element children in order.
func (n *Node) ElementChildren() []*Node {
	var out []*Node
	for _, c := range n.children {
		if c.Type == ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// ChildElementCount is the number of element children.
func (n *Node) ChildElementCount() int {
	count := 0
	for _, c := range n.children {
		if c.Type == ElementNode {
			count++
		}
	}
	return count
}

// IsElement reports whether n is an element with one of the given tags.
// With no tags it only checks the node type.
func (n *Node) IsElement(tags ...string) bool {
	if n == nil || n.Type != ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if n.Tag == t {
			return true
		}
	}
	return false
}

// Attrs returns the ordered attribute list. The slice must not be modified.
func (n *Node) Attrs() []Attr { return n.attrs }

// Attr returns the value of the named attribute and whether it is present.
func (n *Node) Attr(key string) (string, bool) {
	key = strings.ToLower(key)
	for _, a := range n.attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrValue returns the named attribute or "".
func (n *Node) AttrValue(key string) string {
	v, _ := n.Attr(key)
	return v
}

// SetAttr sets an attribute, keeping its position when it already exists.
func (n *Node) SetAttr(key, val string) {
	key = strings.ToLower(key)
	old, had := n.Attr(key)
	if had && old == val {
		return
	}
	if had {
		for i := range n.attrs {
			if n.attrs[i].Key == key {
				n.attrs[i].Val = val
				break
			}
		}
	} else {
		n.attrs = append(n.attrs, Attr{Key: key, Val: val})
	}
	n.notify(MutationRecord{Type: Attributes, Target: n, AttributeName: key, OldValue: old})
}

// RemoveAttr deletes an attribute. Missing attributes are a no-op.
func (n *Node) RemoveAttr(key string) {
	key = strings.ToLower(key)
	for i, a := range n.attrs {
		if a.Key == key {
			n.attrs = append(n.attrs[:i], n.attrs[i+1:]...)
			n.notify(MutationRecord{Type: Attributes, Target: n, AttributeName: key, OldValue: a.Val})
			return
		}
	}
}

// DataAttrs returns every data-* attribute that is not engine-reserved.
func (n *Node) DataAttrs() []Attr {
	var out []Attr
	for _, a := range n.attrs {
		if strings.HasPrefix(a.Key, "data-") && !strings.HasPrefix(a.Key, ReservedPrefix) {
			out = append(out, a)
		}
	}
	return out
}

// Marked reports whether the engine hidden-marker is set.
func (n *Node) Marked() bool {
	return n.AttrValue(MarkerAttr) == "true"
}

// SetMarked sets or clears the hidden-marker.
func (n *Node) SetMarked(on bool) {
	if on {
		n.SetAttr(MarkerAttr, "true")
		return
	}
	n.RemoveAttr(MarkerAttr)
}

// TextContent concatenates all descendant text, like the DOM property.
func (n *Node) TextContent() string {
	if n.Type == TextNode {
		return n.Data
	}
	var b strings.Builder
	n.Walk(func(c *Node) bool {
		if c.Type == TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// SetText replaces the character data of a text node.
func (n *Node) SetText(data string) {
	if n.Type != TextNode || n.Data == data {
		return
	}
	old := n.Data
	n.Data = data
	n.notify(MutationRecord{Type: CharacterData, Target: n, OldValue: old})
}

// Walk visits n and its descendants depth-first in document order. Returning
// false from fn skips the node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Contains reports whether other is n or one of its descendants.
func (n *Node) Contains(other *Node) bool {
	for c := other; c != nil; c = c.parent {
		if c == n {
			return true
		}
	}
	return false
}

// HasDescendant reports whether any element below n has one of the tags.
func (n *Node) HasDescendant(tags ...string) bool {
	found := false
	for _, c := range n.children {
		c.Walk(func(d *Node) bool {
			if found {
				return false
			}
			if d.IsElement(tags...) {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

// NextSibling returns the node following n under the same parent.
func (n *Node) NextSibling() *Node {
	if n.parent == nil {
		return nil
	}
	sibs := n.parent.children
	for i, c := range sibs {
		if c == n && i+1 < len(sibs) {
			return sibs[i+1]
		}
	}
	return nil
}

// IsAttached reports whether n is still reachable from its document's root.
func (n *Node) IsAttached() bool {
	if n == nil || n.doc == nil {
		return false
	}
	root := n
	for root.parent != nil {
		root = root.parent
	}
	return root == n.doc.root
}

// AppendChild adds c as the last child of n, detaching it from any previous
// parent first.
func (n *Node) AppendChild(c *Node) {
	n.InsertBefore(c, nil)
}

// InsertBefore inserts c before ref. A nil ref appends.
func (n *Node) InsertBefore(c, ref *Node) {
	if c.parent != nil {
		c.parent.RemoveChild(c)
	}
	idx := len(n.children)
	if ref != nil {
		for i, x := range n.children {
			if x == ref {
				idx = i
				break
			}
		}
	}
	n.children = append(n.children, nil)
	copy(n.children[idx+1:], n.children[idx:])
	n.children[idx] = c
	c.parent = n
	c.adopt(n.doc)
	n.notify(MutationRecord{Type: ChildList, Target: n, Added: []*Node{c}})
}

// RemoveChild detaches c from n. Unknown children are ignored.
func (n *Node) RemoveChild(c *Node) {
	for i, x := range n.children {
		if x == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			c.parent = nil
			n.notify(MutationRecord{Type: ChildList, Target: n, Removed: []*Node{c}})
			return
		}
	}
}

func (n *Node) adopt(doc *Document) {
	n.Walk(func(c *Node) bool {
		c.doc = doc
		return true
	})
}

func (n *Node) notify(rec MutationRecord) {
	if n.doc == nil || !n.IsAttached() {
		return
	}
	n.doc.deliver(rec)
}
