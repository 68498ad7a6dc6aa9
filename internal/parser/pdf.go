package parser

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/dgallion1/pagemark/internal/meta"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser handles PDF files. It tries the Go library first,
// then falls back to pdftotext if available.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Pages(r io.Reader, filename string) (meta.Pages, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "pagemark-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	pages, err := extractPDFPages(tmpPath)
	if err != nil && p.FallbackPdftotext {
		pages, err = extractPdftotext(tmpPath)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	return pages, nil
}

// extractPDFPages keeps one entry per page of the document. Pages that cannot
// be read become empty strings so numbering matches the PDF.
func extractPDFPages(path string) (pages meta.Pages, err error) {
	// The library panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf reader: %v", r)
		}
	}()

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	pages = make(meta.Pages, numPages)
	readable := 0
	for i := 1; i <= numPages; i++ {
		pages[i] = ""
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i] = text
		readable++
	}
	if readable == 0 {
		return nil, fmt.Errorf("no readable pages in %d", numPages)
	}
	return pages, nil
}

func extractPdftotext(path string) (meta.Pages, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	pages := splitPages(string(out))
	// pdftotext ends every page with a form feed, leaving an empty tail.
	if last := len(pages); last > 1 && pages[last] == "" {
		delete(pages, last)
	}
	return pages, nil
}
