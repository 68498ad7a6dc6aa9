package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/pagemark/internal/meta"
)

// Parser extracts per-page text from raw document bytes. Page numbers start at
// 1 and must stay stable between runs, since section offsets depend on them.
type Parser interface {
	Pages(r io.Reader, filename string) (meta.Pages, error)
}

// Options tunes parser construction.
type Options struct {
	PDFFallbackPdftotext bool
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// PagesFromFile opens path and extracts its pages with the matching parser.
func PagesFromFile(path string, opts Options) (meta.Pages, error) {
	p, err := ForFile(path, opts)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	pages, err := p.Pages(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("extract pages from %s: %w", filepath.Base(path), err)
	}
	return pages, nil
}

// splitPages numbers form-feed separated chunks from 1. Text is kept byte for
// byte.
func splitPages(text string) meta.Pages {
	pages := make(meta.Pages)
	for i, page := range strings.Split(text, "\f") {
		pages[i+1] = page
	}
	return pages
}
