package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/pagemark/internal/meta"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files, typically saved OCR output. An <hr> or an
// element with class "page" after the first starts a new page.
type HTMLParser struct{}

func (p *HTMLParser) Pages(r io.Reader, filename string) (meta.Pages, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	pages := make(meta.Pages)
	page := 1
	var current strings.Builder
	seenPageDiv := false

	flushPage := func() {
		pages[page] = current.String()
		current.Reset()
		page++
	}
	addBlock := func(t string) {
		if t == "" {
			return
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(t)
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav":
				return
			case "hr":
				flushPage()
				return
			case "h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "td", "blockquote", "pre":
				addBlock(textContent(n))
				return
			}
			if hasClass(n, "page") {
				if seenPageDiv {
					flushPage()
				}
				seenPageDiv = true
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	// Find <body> or use whole document.
	body := findBody(doc)
	if body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	pages[page] = current.String()

	return pages, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
