package parser

import (
	"io"

	"github.com/dgallion1/pagemark/internal/meta"
)

// TextParser handles plain text files. Form feeds separate pages; a file
// without one is a single page.
type TextParser struct{}

func (p *TextParser) Pages(r io.Reader, filename string) (meta.Pages, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return splitPages(string(data)), nil
}
