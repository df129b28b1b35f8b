package dom

import (
	"slices"
	"sync"
)

// MutationType classifies a MutationRecord.
type MutationType int

const (
	ChildList MutationType = iota + 1
	Attributes
	CharacterData
)

// MutationRecord describes one change to the tree.
type MutationRecord struct {
	Type          MutationType
	Target        *Node
	Added         []*Node
	Removed       []*Node
	AttributeName string
	OldValue      string
}

// MutationFunc receives mutation records.
type MutationFunc func(records []MutationRecord)

// NavKind says how the document location changed.
type NavKind string

const (
	NavPush    NavKind = "push"    // programmatic forward navigation
	NavReplace NavKind = "replace" // programmatic in-place navigation
	NavPop     NavKind = "pop"     // history traversal / history-changed event
	NavReset   NavKind = "reset"   // the whole tree was replaced
)

// Navigation is delivered to navigation observers.
type Navigation struct {
	Kind NavKind
	From string
	To   string
}

// NavigationFunc receives navigation events.
type NavigationFunc func(Navigation)

// Subscription is a handle on an observer registration.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Disconnect removes the observer. Safe to call more than once.
func (s *Subscription) Disconnect() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Document is the root of a live tree plus its location. It is not safe for
// concurrent use: hosts serialise all access on one goroutine.
type Document struct {
	root     *Node
	location string

	nextID    int
	observers map[int]MutationFunc
	navs      map[int]NavigationFunc
}

// NewDocument returns an empty document with an html/head/body skeleton.
func NewDocument(location string) *Document {
	d := &Document{
		location:  location,
		observers: make(map[int]MutationFunc),
		navs:      make(map[int]NavigationFunc),
	}
	root := &Node{Type: DocumentNode}
	htmlEl := NewElement("html")
	htmlEl.children = []*Node{NewElement("head"), NewElement("body")}
	for _, c := range htmlEl.children {
		c.parent = htmlEl
	}
	htmlEl.parent = root
	root.children = []*Node{htmlEl}
	d.setRoot(root)
	return d
}

func (d *Document) setRoot(root *Node) {
	root.parent = nil
	d.root = root
	root.adopt(d)
}

// Root returns the document node.
func (d *Document) Root() *Node { return d.root }

// Body returns the body element, falling back to the first element found
// when the tree has no body.
func (d *Document) Body() *Node {
	var body, first *Node
	d.root.Walk(func(n *Node) bool {
		if body != nil {
			return false
		}
		if n.Type == ElementNode {
			if first == nil {
				first = n
			}
			if n.Tag == "body" {
				body = n
				return false
			}
		}
		return true
	})
	if body != nil {
		return body
	}
	return first
}

// Location is the current location identifier (usually a URL).
func (d *Document) Location() string { return d.location }

// Navigate changes the location and notifies navigation observers. It
// mirrors history.pushState / replaceState / popstate in a browser host.
func (d *Document) Navigate(kind NavKind, to string) {
	nav := Navigation{Kind: kind, From: d.location, To: to}
	d.location = to
	for _, id := range d.sortedNavIDs() {
		if fn, ok := d.navs[id]; ok {
			fn(nav)
		}
	}
}

// SetLocation changes the location silently, as a host whose navigation
// is only observable by polling would.
func (d *Document) SetLocation(to string) { d.location = to }

// Replace swaps the whole tree, detaching every node of the old one. It
// reports a ChildList record for the new root's children and a NavReset
// navigation.
func (d *Document) Replace(root *Node) {
	if root.Type != DocumentNode {
		wrapped := &Node{Type: DocumentNode}
		wrapped.children = []*Node{root}
		root.parent = wrapped
		root = wrapped
	}
	d.setRoot(root)
	d.deliver(MutationRecord{Type: ChildList, Target: root, Added: append([]*Node(nil), root.children...)})
	for _, id := range d.sortedNavIDs() {
		if fn, ok := d.navs[id]; ok {
			fn(Navigation{Kind: NavReset, From: d.location, To: d.location})
		}
	}
}

// Observe registers fn for every mutation of the tree.
func (d *Document) Observe(fn MutationFunc) *Subscription {
	id := d.nextID
	d.nextID++
	d.observers[id] = fn
	return &Subscription{cancel: func() { delete(d.observers, id) }}
}

// OnNavigate registers fn for location changes.
func (d *Document) OnNavigate(fn NavigationFunc) *Subscription {
	id := d.nextID
	d.nextID++
	d.navs[id] = fn
	return &Subscription{cancel: func() { delete(d.navs, id) }}
}

// Observers returns the number of live mutation observers.
func (d *Document) Observers() int { return len(d.observers) }

func (d *Document) deliver(rec MutationRecord) {
	if len(d.observers) == 0 {
		return
	}
	batch := []MutationRecord{rec}
	for _, id := range d.sortedObserverIDs() {
		if fn, ok := d.observers[id]; ok {
			fn(batch)
		}
	}
}

func (d *Document) sortedObserverIDs() []int {
	return sortedKeys(d.observers)
}

func (d *Document) sortedNavIDs() []int {
	return sortedKeys(d.navs)
}

func sortedKeys[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
