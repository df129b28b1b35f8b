// Package match tests a node's structural attributes for keyword containment.
package match

import (
	"strings"

	"github.com/hazyhaar/domveil/dom"
)

// inputOnly are the attributes checked on form inputs. Placeholder and
// label-like attributes are skipped so an input is never hidden because of
// unrelated hint text.
var inputOnly = []string{"class", "id"}

var standard = []string{"class", "id", "alt", "title", "aria-label"}

// IsFormInput reports whether n is an input-like control.
func IsFormInput(n *dom.Node) bool {
	return n.IsElement("input", "textarea", "select")
}

// Attributes reports whether any checked attribute of n contains keyword.
// keyword must already be lower-case.
func Attributes(n *dom.Node, keyword string) bool {
	if n == nil || n.Type != dom.ElementNode || keyword == "" {
		return false
	}
	if IsFormInput(n) {
		return anyContains(n, inputOnly, keyword)
	}
	if anyContains(n, standard, keyword) {
		return true
	}
	for _, a := range n.DataAttrs() {
		if contains(a.Val, keyword) {
			return true
		}
	}
	return false
}

func anyContains(n *dom.Node, keys []string, keyword string) bool {
	for _, k := range keys {
		if v, ok := n.Attr(k); ok && contains(v, keyword) {
			return true
		}
	}
	return false
}

func contains(value, keyword string) bool {
	return value != "" && strings.Contains(strings.ToLower(value), keyword)
}
