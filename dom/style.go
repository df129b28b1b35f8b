package dom

import (
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

// Display returns the inline display value of an element: "none" when
// hidden, "" when the inline style sets none.
func (n *Node) Display() string {
	style, ok := n.Attr("style")
	if !ok || strings.TrimSpace(style) == "" {
		return ""
	}
	decls, err := parser.ParseDeclarations(style)
	if err != nil {
		return ""
	}
	display := ""
	for _, d := range decls {
		if strings.EqualFold(d.Property, "display") {
			display = strings.ToLower(strings.TrimSpace(d.Value))
		}
	}
	return display
}

// Hidden reports whether the inline style hides the node.
func (n *Node) Hidden() bool {
	return n.Display() == "none"
}

// SetDisplay rewrites the inline display value, keeping every other
// declaration. An empty value removes the declaration, and the style
// attribute with it when nothing else remains.
func (n *Node) SetDisplay(value string) {
	style := n.AttrValue("style")
	var kept []*css.Declaration
	if strings.TrimSpace(style) != "" {
		decls, err := parser.ParseDeclarations(style)
		if err == nil {
			for _, d := range decls {
				if !strings.EqualFold(d.Property, "display") {
					kept = append(kept, d)
				}
			}
		}
	}
	if value != "" {
		kept = append(kept, &css.Declaration{Property: "display", Value: value})
	}
	if len(kept) == 0 {
		n.RemoveAttr("style")
		return
	}
	parts := make([]string, len(kept))
	for i, d := range kept {
		parts[i] = d.String()
	}
	n.SetAttr("style", strings.Join(parts, " "))
}
