package meta

import (
	"errors"
	"fmt"
	"sort"
)

// ErrIndexOutOfRange is returned when a section or op index does not exist.
var ErrIndexOutOfRange = errors.New("index out of range")

// Pages maps a 1-based page number to the raw text extracted for that page.
type Pages map[int]string

// Numbers returns the page numbers present, ascending.
func (p Pages) Numbers() []int {
	nums := make([]int, 0, len(p))
	for n := range p {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// PageRange is an inclusive range of page numbers.
type PageRange struct {
	Start int
	End   int
}

// Validate checks 1 <= Start <= End.
func (r PageRange) Validate() error {
	if r.Start < 1 {
		return fmt.Errorf("page range %d-%d: start must be positive", r.Start, r.End)
	}
	if r.Start > r.End {
		return fmt.Errorf("page range %d-%d: start after end", r.Start, r.End)
	}
	return nil
}

// Len returns the number of pages covered.
func (r PageRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

func (r PageRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Span selects the part of a page range's concatenated text that belongs to a
// section. A bounded span is the half-open byte range [Start, End); an open span
// runs from Start to the end of the text.
type Span struct {
	Start int
	End   int // ignored when Open
	Open  bool
}

// Range returns the bounded span [start, end).
func Range(start, end int) *Span {
	return &Span{Start: start, End: end}
}

// From returns the open span [start, len).
func From(start int) *Span {
	return &Span{Start: start, Open: true}
}

// Bounds resolves the span against a text of length n. It reports false if the
// stored offsets do not fit; offsets are never clamped.
func (s Span) Bounds(n int) (start, end int, ok bool) {
	end = s.End
	if s.Open {
		end = n
	}
	if s.Start < 0 || s.Start > end || end > n {
		return s.Start, end, false
	}
	return s.Start, end, true
}

func (s Span) String() string {
	if s.Open {
		return fmt.Sprintf("[%d..)", s.Start)
	}
	return fmt.Sprintf("[%d..%d)", s.Start, s.End)
}

// OpKind names an edit operation variant.
type OpKind string

const OpDelete OpKind = "delete"

// Op is one recorded edit. First and Last are inclusive byte indices into the
// working text, i.e. the text left after span selection and before any edits.
type Op struct {
	Kind  OpKind
	First int
	Last  int
}

// Delete marks the inclusive byte range [first, last] for removal.
func Delete(first, last int) Op {
	return Op{Kind: OpDelete, First: first, Last: last}
}

// DeleteRange converts a half-open selection [start, end) into a delete op.
func DeleteRange(start, end int) Op {
	return Delete(start, end-1)
}

// Empty reports whether the op covers no bytes.
func (o Op) Empty() bool {
	return o.Last < o.First
}

func (o Op) String() string {
	return fmt.Sprintf("%s[%d..=%d]", o.Kind, o.First, o.Last)
}

// SectionDefinition is one named, classified section of a source document.
type SectionDefinition struct {
	Name  string    // Display name, e.g. "Allies"
	Pages PageRange // Pages whose text is concatenated
	Span  *Span     // Nil means the whole concatenation
	Kind  Kind      // Semantic role, used downstream only
	Ops   []Op      // Authoring order, never reordered
}

// NewSection returns the definition used for a freshly added section.
func NewSection() SectionDefinition {
	return SectionDefinition{
		Name:  "Unnamed",
		Pages: PageRange{Start: 1, End: 2},
		Kind:  Merit(""),
		Ops:   []Op{},
	}
}

// AppendOp records op at the end of the log.
func (d *SectionDefinition) AppendOp(op Op) {
	d.Ops = append(d.Ops, op)
}

// RemoveOp deletes the op at index i, keeping the order of the rest.
func (d *SectionDefinition) RemoveOp(i int) error {
	if i < 0 || i >= len(d.Ops) {
		return fmt.Errorf("op %d: %w", i, ErrIndexOutOfRange)
	}
	d.Ops = append(d.Ops[:i:i], d.Ops[i+1:]...)
	return nil
}

// Clone returns a deep copy.
func (d SectionDefinition) Clone() SectionDefinition {
	c := d
	if d.Span != nil {
		sp := *d.Span
		c.Span = &sp
	}
	if d.Ops != nil {
		c.Ops = make([]Op, len(d.Ops))
		copy(c.Ops, d.Ops)
	}
	return c
}

// SourceMeta is the metadata record for one source document, keyed by the
// content hash of that document.
type SourceMeta struct {
	Hash      string
	Timestamp int64
	Sections  []SectionDefinition
}

// New returns an empty record for hash.
func New(hash string) *SourceMeta {
	return &SourceMeta{Hash: hash, Sections: []SectionDefinition{}}
}

// Section returns a pointer to section i for in-place edits.
func (m *SourceMeta) Section(i int) (*SectionDefinition, error) {
	if i < 0 || i >= len(m.Sections) {
		return nil, fmt.Errorf("section %d: %w", i, ErrIndexOutOfRange)
	}
	return &m.Sections[i], nil
}

// AddSection appends def and returns its index.
func (m *SourceMeta) AddSection(def SectionDefinition) int {
	m.Sections = append(m.Sections, def)
	return len(m.Sections) - 1
}

// RemoveSection deletes section i.
func (m *SourceMeta) RemoveSection(i int) error {
	if i < 0 || i >= len(m.Sections) {
		return fmt.Errorf("section %d: %w", i, ErrIndexOutOfRange)
	}
	m.Sections = append(m.Sections[:i:i], m.Sections[i+1:]...)
	return nil
}

// Clone returns a deep copy that shares nothing with m.
func (m *SourceMeta) Clone() *SourceMeta {
	c := &SourceMeta{Hash: m.Hash, Timestamp: m.Timestamp}
	if m.Sections != nil {
		c.Sections = make([]SectionDefinition, len(m.Sections))
		for i, s := range m.Sections {
			c.Sections[i] = s.Clone()
		}
	}
	return c
}
