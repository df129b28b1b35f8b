package veil

import (
	"fmt"
	"html"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Format selects how Document renders.
type Format string

const (
	// FormatHTML is the whole document, hidden nodes included with their
	// inline display set to none.
	FormatHTML Format = "html"
	// FormatMarkdown drops hidden nodes and converts the rest.
	FormatMarkdown Format = "markdown"
	// FormatText drops hidden nodes and every tag.
	FormatText Format = "text"
)

// ParseFormat accepts html, markdown (or md) and text. Empty means html.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "html":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt":
		return FormatText, nil
	}
	return "", formatError{name: s}
}

type formatError struct{ name string }

func (e formatError) Error() string { return fmt.Sprintf("veil: unknown format %q", e.name) }

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

var textPolicy = bluemonday.StrictPolicy()

func convert(src string, format Format) (string, error) {
	switch format {
	case FormatHTML:
		return src, nil
	case FormatMarkdown:
		md, err := mdConverter.ConvertString(src)
		if err != nil {
			return "", fmt.Errorf("veil: markdown: %w", err)
		}
		return md, nil
	case FormatText:
		return plainText(src), nil
	}
	return "", formatError{name: string(format)}
}

// plainText strips every tag and collapses blank runs to single lines.
func plainText(src string) string {
	// Block boundaries become line breaks before the tags are dropped.
	for _, tag := range []string{"</p>", "</div>", "</li>", "</h1>", "</h2>", "</h3>", "</h4>", "</h5>", "</h6>", "<br>", "<br/>", "</tr>", "</section>", "</article>"} {
		src = strings.ReplaceAll(src, tag, tag+"\n")
	}
	stripped := html.UnescapeString(textPolicy.Sanitize(src))
	var lines []string
	for _, line := range strings.Split(stripped, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
