package structure

import (
	"io"
	"strings"

	"github.com/siherrmann/filingqa/helper"
	"golang.org/x/net/html"
)

// Document is a parsed filing. Text holds one trimmed line per text node.
type Document struct {
	Text   string
	tables []*html.Node
}

// ParseHTML parses a filing document and collects its plain text and tables.
func ParseHTML(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, helper.NewError("parse html", err)
	}

	doc := &Document{}
	var lines []string
	walk(root, doc, &lines)
	doc.Text = strings.Join(lines, "\n")

	return doc, nil
}

// ParseText wraps plain text that has no markup.
func ParseText(text string) *Document {
	var lines []string
	appendLines(&lines, text)
	return &Document{Text: strings.Join(lines, "\n")}
}

func walk(n *html.Node, doc *Document, lines *[]string) {
	switch n.Type {
	case html.TextNode:
		appendLines(lines, n.Data)
		return
	case html.ElementNode:
		if shouldSkipElement(n.Data) {
			return
		}
		if n.Data == "table" {
			doc.tables = append(doc.tables, n)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, doc, lines)
	}
}

func appendLines(lines *[]string, text string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			*lines = append(*lines, line)
		}
	}
}

func shouldSkipElement(tagName string) bool {
	switch tagName {
	case "script", "style", "noscript", "head", "template":
		return true
	}
	return false
}

// textContent returns the concatenated text below n with surrounding
// whitespace removed.
func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && shouldSkipElement(n.Data) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.TrimSpace(b.String())
}
