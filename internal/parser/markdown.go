package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/pagemark/internal/meta"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. A thematic break
// (---, ***) ends a page. Blocks on a page are joined by blank lines.
type MarkdownParser struct{}

func (p *MarkdownParser) Pages(r io.Reader, filename string) (meta.Pages, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	pages := make(meta.Pages)
	page := 1
	var current strings.Builder

	flushPage := func() {
		pages[page] = current.String()
		current.Reset()
		page++
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() == ast.KindThematicBreak {
			flushPage()
			continue
		}
		t := blockText(n, src)
		if t == "" {
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(t)
	}
	pages[page] = current.String()

	return pages, nil
}

// blockText gets the text of a block node. Paragraphs and headings keep only
// their inline text; code blocks keep their raw lines.
func blockText(n ast.Node, src []byte) string {
	switch n.Kind() {
	case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock:
		var buf bytes.Buffer
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}

	if first := n.FirstChild(); first != nil && first.Type() == ast.TypeInline {
		return strings.TrimSpace(inlineText(n, src))
	}

	// Container blocks: lists, list items, blockquotes.
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := blockText(c, src); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			buf.Write(c.Segment.Value(src))
			if c.HardLineBreak() || c.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(c.Value)
		default:
			// Emphasis, links, code spans.
			buf.WriteString(inlineText(c, src))
		}
	}
	return buf.String()
}
