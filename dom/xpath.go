package dom

import (
	"fmt"
	"strings"
)

// XPath returns a positional XPath for an element, e.g.
// /html/body/div[2]/p. Sibling indexes appear only when more than one
// sibling shares the tag, matching document.evaluate semantics.
func (n *Node) XPath() string {
	if n == nil || n.Type != ElementNode {
		return ""
	}
	var parts []string
	for cur := n; cur != nil && cur.Type == ElementNode; cur = cur.parent {
		parts = append(parts, cur.xpathStep())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func (n *Node) xpathStep() string {
	if n.parent == nil {
		return n.Tag
	}
	idx, total := 0, 0
	for _, sib := range n.parent.children {
		if sib.Type != ElementNode || sib.Tag != n.Tag {
			continue
		}
		total++
		if sib == n {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s[%d]", n.Tag, idx)
	}
	return n.Tag
}

// FindXPath resolves a path produced by XPath against the document.
func (d *Document) FindXPath(path string) *Node {
	steps := strings.Split(strings.TrimPrefix(path, "/"), "/")
	cur := d.root
	for _, step := range steps {
		if step == "" {
			continue
		}
		tag, want := step, 1
		if i := strings.IndexByte(step, '['); i > 0 && strings.HasSuffix(step, "]") {
			tag = step[:i]
			if _, err := fmt.Sscanf(step[i+1:len(step)-1], "%d", &want); err != nil {
				return nil
			}
		}
		var next *Node
		seen := 0
		for _, c := range cur.children {
			if c.Type == ElementNode && c.Tag == tag {
				seen++
				if seen == want {
					next = c
					break
				}
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	if cur == d.root {
		return nil
	}
	return cur
}
