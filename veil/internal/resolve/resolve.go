// Package resolve picks the node to hide for a text match.
package resolve

import (
	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/veil/internal/classify"
)

// Candidates collects the ancestors of a text node eligible as targets,
// nearest first. The walk ends below body, at non-content tags and at
// nodes that are already hidden. Form-related ancestors are stepped over.
func Candidates(text *dom.Node, cls *classify.Set) []*dom.Node {
	if text == nil {
		return nil
	}
	var out []*dom.Node
	for cur := text.Parent(); cur != nil && cur.Type == dom.ElementNode; cur = cur.Parent() {
		if cur.Tag == "body" {
			break
		}
		if classify.NonContent(cur) || cur.Hidden() || cur.Marked() {
			break
		}
		if cls.FormRelated(cur) {
			continue
		}
		out = append(out, cur)
	}
	return out
}

// Target returns the smallest meaningful ancestor of text to hide for
// keyword, or nil. keyword must be lower-case.
func Target(text *dom.Node, keyword string, cls *classify.Set) *dom.Node {
	candidates := Candidates(text, cls)
	if len(candidates) == 0 {
		return nil
	}
	for _, c := range candidates {
		if cls.LeafOrNearLeaf(c) {
			return c
		}
	}
	for _, c := range candidates {
		if cls.SmallContainer(c, keyword) {
			return c
		}
	}
	for _, c := range candidates {
		if cls.TargetableTag(c) {
			return c
		}
	}
	return candidates[0]
}
