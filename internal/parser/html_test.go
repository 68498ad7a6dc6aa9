package parser

import (
	"strings"
	"testing"
)

func TestHTMLParser_HRPages(t *testing.T) {
	input := `<html><head><title>Core</title><style>p{}</style></head><body>
<h1>Merits</h1>
<p>Intro text.</p>
<hr>
<h2>Allies</h2>
<p>Allies help <b>your</b> character.</p>
<script>alert(1)</script>
</body></html>`

	p := &HTMLParser{}
	pages, err := p.Pages(strings.NewReader(input), "core.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d: %v", len(pages), pages)
	}
	if pages[1] != "Merits\n\nIntro text." {
		t.Errorf("page 1: unexpected text %q", pages[1])
	}
	if pages[2] != "Allies\n\nAllies help your character." {
		t.Errorf("page 2: unexpected text %q", pages[2])
	}
}

func TestHTMLParser_PageDivs(t *testing.T) {
	input := `<body>
<div class="page"><p>one</p></div>
<div class="ocr page"><p>two</p></div>
<div class="page"><p>three</p></div>
</body>`

	p := &HTMLParser{}
	pages, err := p.Pages(strings.NewReader(input), "scan.htm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[int]string{1: "one", 2: "two", 3: "three"}
	if len(pages) != len(want) {
		t.Fatalf("expected %d pages, got %d: %v", len(want), len(pages), pages)
	}
	for n, w := range want {
		if pages[n] != w {
			t.Errorf("page %d: expected %q, got %q", n, w, pages[n])
		}
	}
}

func TestHTMLParser_NoBreaks(t *testing.T) {
	p := &HTMLParser{}
	pages, err := p.Pages(strings.NewReader("<p>only</p>"), "one.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 || pages[1] != "only" {
		t.Errorf("expected single page %q, got %v", "only", pages)
	}
}
