package content

import (
	"strings"

	"golang.org/x/net/html"
)

// FlattenHTML reduces a formatted_body to plain text for terminal
// display: <mx-reply> fallback blocks are dropped, <br> and block
// elements become newlines, and all other markup is stripped.
func FlattenHTML(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var b strings.Builder
	flatten(doc, &b)
	return strings.TrimRight(b.String(), "\n ")
}

func flatten(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "mx-reply", "script", "style":
			return
		case "br":
			b.WriteByte('\n')
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flatten(c, b)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "blockquote", "pre", "div", "li":
			b.WriteByte('\n')
		}
	}
}
