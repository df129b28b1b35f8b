package fetcher

import (
	"bytes"
	"unicode"

	"golang.org/x/net/html"
)

// shellMarkers are empty mount points left by client-rendered apps.
var shellMarkers = [][]byte{
	[]byte(`<div id="root"></div>`),
	[]byte(`<div id="app"></div>`),
	[]byte(`<div id="__next"></div>`),
	[]byte("<noscript>you need to enable javascript"),
	[]byte("<noscript>enable javascript"),
}

// IsSufficient reports whether body has enough visible text relative to
// markup that a browser is not needed to see the page's content.
func IsSufficient(body []byte) bool {
	if len(body) < 256 {
		return false
	}
	text, markup := textMarkupRatio(body)
	total := text + markup
	if total == 0 {
		return false
	}
	if float64(text)/float64(total) < 0.10 {
		return false
	}
	if text < 200 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, m := range shellMarkers {
		if bytes.Contains(lower, m) {
			return false
		}
	}
	return true
}

// textMarkupRatio counts non-space text bytes against everything else.
// Script and style bodies count as markup.
func textMarkupRatio(body []byte) (text, markup int) {
	z := html.NewTokenizer(bytes.NewReader(body))
	raw := false
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return text, markup
		case html.TextToken:
			b := z.Raw()
			if raw {
				markup += len(b)
				continue
			}
			for _, r := range string(b) {
				if !unicode.IsSpace(r) {
					text++
				}
			}
		case html.StartTagToken:
			markup += len(z.Raw())
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				raw = true
			}
		case html.EndTagToken:
			markup += len(z.Raw())
			raw = false
		default:
			markup += len(z.Raw())
		}
	}
}
