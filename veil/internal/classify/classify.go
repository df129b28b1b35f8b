// Package classify holds the structural predicates the resolver and the
// suppression engine use to decide what may be hidden.
//
// Every size and density threshold is configuration: the defaults are
// heuristics, not derived constants.
package classify

import (
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"

	"github.com/hazyhaar/domveil/dom"
)

// Thresholds tunes the predicates. Zero fields take the defaults.
type Thresholds struct {
	// ImportantChildren: more element children than this makes a node important. Default: 20.
	ImportantChildren int `yaml:"important_children"`
	// StructuralChildren applies to nodes with a layout class name. Default: 10.
	StructuralChildren int `yaml:"structural_children"`
	// InteractiveChildren applies to nodes holding form controls. Default: 5.
	InteractiveChildren int `yaml:"interactive_children"`
	// NearLeafChildren is the most inline children a near-leaf may have. Default: 2.
	NearLeafChildren int `yaml:"near_leaf_children"`
	// SmallChildren is the most children a small container may have. Default: 5.
	SmallChildren int `yaml:"small_children"`
	// TargetableChildren caps the fallback tag whitelist. Default: 8.
	TargetableChildren int `yaml:"targetable_children"`
	// Density is the keyword coverage a small container must exceed. Default: 0.1.
	Density float64 `yaml:"density"`
}

// Defaults fills zero fields.
func (t *Thresholds) Defaults() {
	if t.ImportantChildren <= 0 {
		t.ImportantChildren = 20
	}
	if t.StructuralChildren <= 0 {
		t.StructuralChildren = 10
	}
	if t.InteractiveChildren <= 0 {
		t.InteractiveChildren = 5
	}
	if t.NearLeafChildren <= 0 {
		t.NearLeafChildren = 2
	}
	if t.SmallChildren <= 0 {
		t.SmallChildren = 5
	}
	if t.TargetableChildren <= 0 {
		t.TargetableChildren = 8
	}
	if t.Density <= 0 {
		t.Density = 0.1
	}
}

var (
	importantTags = []string{"main", "article", "section", "nav", "header", "footer", "aside", "form", "table", "tbody", "thead"}
	layoutClasses = []string{"container", "content", "main", "wrapper", "page", "article", "layout", "sidebar", "navigation"}
	interactive   = []string{"form", "input", "button", "select", "textarea"}
	formTags      = []string{"input", "textarea", "select", "button", "form", "label"}
	formClasses   = []string{"search", "input", "form"}
	inlineTags    = []string{"span", "em", "strong", "b", "i", "small"}
	targetable    = []string{"a", "button", "li", "td", "th", "h1", "h2", "h3", "h4", "h5", "h6"}
)

// Set evaluates the predicates with one set of thresholds and an optional
// group of protected selectors.
type Set struct {
	t         Thresholds
	protect   cascadia.SelectorGroup
	protected map[*dom.Node]struct{}
}

// New returns a Set. protect may be nil.
func New(t Thresholds, protect cascadia.SelectorGroup) *Set {
	t.Defaults()
	return &Set{t: t, protect: protect}
}

// Thresholds returns the effective thresholds.
func (s *Set) Thresholds() Thresholds { return s.t }

// Prepare resolves the protected selectors against doc. Call it once per
// scan; nodes added afterwards are not protected until the next call.
func (s *Set) Prepare(doc *dom.Document) {
	s.protected = nil
	if len(s.protect) == 0 || doc == nil {
		return
	}
	s.protected = make(map[*dom.Node]struct{})
	for _, n := range dom.QueryAll(doc.Root(), s.protect) {
		s.protected[n] = struct{}{}
	}
}

// Protected reports whether n matched a protected selector at Prepare time.
func (s *Set) Protected(n *dom.Node) bool {
	_, ok := s.protected[n]
	return ok
}

// ImportantContainer reports page scaffolding that must never be hidden.
func (s *Set) ImportantContainer(n *dom.Node) bool {
	if n == nil || n.Type != dom.ElementNode {
		return true
	}
	if s.Protected(n) {
		return true
	}
	if n.IsElement(importantTags...) {
		return true
	}
	children := n.ChildElementCount()
	if children > s.t.ImportantChildren {
		return true
	}
	if classContainsAny(n, layoutClasses) && children > s.t.StructuralChildren {
		return true
	}
	if children > s.t.InteractiveChildren && n.HasDescendant(interactive...) {
		return true
	}
	if n.IsElement("html", "head", "body") {
		return true
	}
	if p := n.Parent(); p.IsElement("body") {
		return true
	}
	return false
}

// FormRelated reports form controls, their direct children and search-like
// wrappers around inputs. The resolver walks past these without targeting
// them.
func (s *Set) FormRelated(n *dom.Node) bool {
	if n.IsElement(formTags...) {
		return true
	}
	if p := n.Parent(); p.IsElement(formTags...) {
		return true
	}
	if classContainsAny(n, formClasses) && n.HasDescendant("input", "textarea", "select") {
		return true
	}
	return false
}

// LeafOrNearLeaf reports nodes with no element children, or a couple of
// inline-emphasis or childless children.
func (s *Set) LeafOrNearLeaf(n *dom.Node) bool {
	kids := n.ElementChildren()
	if len(kids) == 0 {
		return true
	}
	if len(kids) > s.t.NearLeafChildren {
		return false
	}
	for _, c := range kids {
		if !c.IsElement(inlineTags...) && c.ChildElementCount() > 0 {
			return false
		}
	}
	return true
}

// SmallContainer reports a node with few children whose text is dense in
// keyword. keyword must be lower-case.
func (s *Set) SmallContainer(n *dom.Node, keyword string) bool {
	if n.ChildElementCount() > s.t.SmallChildren || keyword == "" {
		return false
	}
	text := strings.ToLower(strings.TrimSpace(n.TextContent()))
	length := utf8.RuneCountInString(text)
	if length == 0 {
		return false
	}
	matches := strings.Count(text, keyword)
	coverage := float64(matches*utf8.RuneCountInString(keyword)) / float64(length)
	return coverage > s.t.Density
}

// TargetableTag is the last-resort whitelist of self-contained tags.
func (s *Set) TargetableTag(n *dom.Node) bool {
	return n.IsElement(targetable...) && n.ChildElementCount() <= s.t.TargetableChildren
}

// NonContent reports tags whose text is never rendered.
func NonContent(n *dom.Node) bool {
	return n.IsElement("script", "style", "meta", "link", "title")
}

func classContainsAny(n *dom.Node, words []string) bool {
	class := strings.ToLower(n.AttrValue("class"))
	if class == "" {
		return false
	}
	for _, w := range words {
		if strings.Contains(class, w) {
			return true
		}
	}
	return false
}
