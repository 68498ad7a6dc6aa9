// Package extract turns per-page text and a section definition into the
// section's final text.
//
// All offsets stored in a definition are byte offsets into one exact string:
// the concatenation of the range's pages, joined with PageSeparator. Span
// offsets address that concatenation; op offsets address the working text left
// after span selection. Extraction is a pure function of its inputs.
package extract

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/pagemark/internal/meta"
)

// PageSeparator is inserted between consecutive pages. Changing it would shift
// every offset already recorded in sidecar files.
const PageSeparator = ""

var (
	ErrMissingPage      = errors.New("missing page")
	ErrInvalidSpan      = errors.New("invalid span")
	ErrInvalidPageRange = errors.New("invalid page range")
)

// MissingPageError reports a page in the section's range that the page map
// does not contain.
type MissingPageError struct {
	Page  int
	Range meta.PageRange
}

func (e *MissingPageError) Error() string {
	return fmt.Sprintf("page %d of range %s not found in extracted text", e.Page, e.Range)
}

func (e *MissingPageError) Unwrap() error { return ErrMissingPage }

// InvalidSpanError reports a stored span that no longer fits the text. The
// span is stale and must be re-selected.
type InvalidSpanError struct {
	Span meta.Span
	Len  int
}

func (e *InvalidSpanError) Error() string {
	return fmt.Sprintf("span %s out of bounds for %d bytes of text; re-select the span", e.Span, e.Len)
}

func (e *InvalidSpanError) Unwrap() error { return ErrInvalidSpan }

// ExtractedSection is the engine output for one section.
type ExtractedSection struct {
	Text string // Working text after all deletions

	// Full is the whole page-range concatenation and [SpanStart, SpanEnd) the
	// selected span inside it, before deletions.
	Full      string
	SpanStart int
	SpanEnd   int

	Removed int // Bytes deleted by ops
}

// Segments splits Full into the text before the span, the span itself and the
// text after it.
func (e *ExtractedSection) Segments() (before, selected, after string) {
	return e.Full[:e.SpanStart], e.Full[e.SpanStart:e.SpanEnd], e.Full[e.SpanEnd:]
}

// Concatenate joins pages r.Start..r.End in ascending order.
func Concatenate(pages meta.Pages, r meta.PageRange) (string, error) {
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPageRange, err)
	}

	var buf strings.Builder
	for p := r.Start; p <= r.End; p++ {
		text, ok := pages[p]
		if !ok {
			return "", &MissingPageError{Page: p, Range: r}
		}
		if p > r.Start {
			buf.WriteString(PageSeparator)
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

// Extract computes the final text of def over pages.
func Extract(pages meta.Pages, def meta.SectionDefinition) (*ExtractedSection, error) {
	full, err := Concatenate(pages, def.Pages)
	if err != nil {
		return nil, err
	}

	start, end := 0, len(full)
	if def.Span != nil {
		var ok bool
		start, end, ok = def.Span.Bounds(len(full))
		if !ok {
			return nil, &InvalidSpanError{Span: *def.Span, Len: len(full)}
		}
	}

	working := full[start:end]
	text := Apply(working, def.Ops)

	return &ExtractedSection{
		Text:      text,
		Full:      full,
		SpanStart: start,
		SpanEnd:   end,
		Removed:   len(working) - len(text),
	}, nil
}

// Apply removes every byte covered by a delete op from text. Ops are read in
// text coordinates; their order in the slice does not affect the result and the
// slice is not modified. Overlapping or touching ranges delete their union, so
// no byte is removed twice.
func Apply(text string, ops []meta.Op) string {
	spans := deletions(ops)
	if len(spans) == 0 {
		return text
	}

	out := []byte(text)
	for _, s := range spans {
		lo, hi := s.lo, s.hi
		if hi > len(out) {
			hi = len(out)
		}
		if lo >= hi {
			continue
		}
		out = append(out[:lo], out[hi:]...)
	}
	return string(out)
}

type byteRange struct {
	lo, hi int // half-open
}

// deletions returns the delete ops as disjoint half-open ranges, sorted by
// descending start so that splicing one never moves another.
func deletions(ops []meta.Op) []byteRange {
	ranges := make([]byteRange, 0, len(ops))
	for _, op := range ops {
		if op.Kind != meta.OpDelete || op.Empty() {
			continue
		}
		lo := op.First
		if lo < 0 {
			lo = 0
		}
		hi := op.Last + 1
		if hi <= lo {
			continue
		}
		ranges = append(ranges, byteRange{lo: lo, hi: hi})
	}
	if len(ranges) == 0 {
		return nil
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].lo < ranges[j].lo })
	merged := ranges[:1]
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.lo <= last.hi {
			if r.hi > last.hi {
				last.hi = r.hi
			}
			continue
		}
		merged = append(merged, r)
	}

	for i, j := 0, len(merged)-1; i < j; i, j = i+1, j-1 {
		merged[i], merged[j] = merged[j], merged[i]
	}
	return merged
}
