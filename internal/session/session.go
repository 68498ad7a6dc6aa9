package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/pagemark/internal/extract"
	"github.com/dgallion1/pagemark/internal/lease"
	"github.com/dgallion1/pagemark/internal/meta"
	"github.com/dgallion1/pagemark/internal/store"
)

// Session is one user's exclusive hold on a metadata record while editing.
// All access to the record goes through the session mutex.
type Session struct {
	mu sync.Mutex

	Hash        string
	SourcePath  string
	SidecarPath string
	Found       bool // Record came from an existing sidecar
	Skipped     []store.Skipped
	CreatedAt   time.Time

	record    *meta.SourceMeta
	pages     meta.Pages
	dirty     bool
	lost      bool // Lease could not be renewed; the record may have a new owner
	updatedAt time.Time
}

// Extraction is the engine output for one section together with the section's
// name as it was when extracted.
type Extraction struct {
	Name string
	*extract.ExtractedSection
}

// Snapshot is a read-only, JSON-safe copy of session state.
type Snapshot struct {
	Hash        string           `json:"hash"`
	SourcePath  string           `json:"source_path"`
	SidecarPath string           `json:"sidecar_path"`
	Found       bool             `json:"found"`
	Dirty       bool             `json:"dirty"`
	Pages       []int            `json:"pages"`
	Skipped     []SkippedSidecar `json:"skipped_sidecars"`
	Record      *meta.SourceMeta `json:"record"`
}

// SkippedSidecar describes a sidecar the lookup could not parse.
type SkippedSidecar struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func newSession(lookup *store.Lookup, sourcePath string, pages meta.Pages) *Session {
	now := time.Now()
	return &Session{
		Hash:        lookup.Record.Hash,
		SourcePath:  sourcePath,
		SidecarPath: lookup.Path,
		Found:       lookup.Found,
		Skipped:     lookup.Skipped,
		CreatedAt:   now,
		record:      lookup.Record,
		pages:       pages,
		updatedAt:   now,
	}
}

// Update applies fn to the record under the session lock. The record is
// marked dirty when fn succeeds.
func (s *Session) Update(fn func(*meta.SourceMeta) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost {
		return fmt.Errorf("%s: %w", s.Hash, lease.ErrLeaseHeld)
	}
	if err := fn(s.record); err != nil {
		return err
	}
	s.dirty = true
	s.updatedAt = time.Now()
	return nil
}

// UpdateSection applies fn to section i.
func (s *Session) UpdateSection(i int, fn func(*meta.SectionDefinition) error) error {
	return s.Update(func(rec *meta.SourceMeta) error {
		sec, err := rec.Section(i)
		if err != nil {
			return err
		}
		return fn(sec)
	})
}

// Record returns a deep copy of the record.
func (s *Session) Record() *meta.SourceMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// Extract runs the extraction engine on a copy of section i.
func (s *Session) Extract(i int) (*Extraction, error) {
	s.mu.Lock()
	sec, err := s.record.Section(i)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	def := sec.Clone()
	s.updatedAt = time.Now()
	s.mu.Unlock()

	// pages is never written after the session is created.
	out, err := extract.Extract(s.pages, def)
	if err != nil {
		return nil, fmt.Errorf("section %d %q: %w", i, def.Name, err)
	}
	return &Extraction{Name: def.Name, ExtractedSection: out}, nil
}

// Save writes the record to the session's sidecar path.
func (s *Session) Save(st *store.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost {
		return fmt.Errorf("%s: %w", s.Hash, lease.ErrLeaseHeld)
	}
	if err := st.Save(s.record, s.SidecarPath); err != nil {
		return err
	}
	s.dirty = false
	s.updatedAt = time.Now()
	return nil
}

// markLost refuses further edits and saves.
func (s *Session) markLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost = true
}

// Touch marks the session as recently used.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = time.Now()
}

// Dirty reports whether the record has unsaved edits.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// UpdatedAt returns the last time the session was used.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Snapshot returns a JSON-safe copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	skipped := make([]SkippedSidecar, 0, len(s.Skipped))
	for _, sk := range s.Skipped {
		skipped = append(skipped, SkippedSidecar{Path: sk.Path, Error: sk.Err.Error()})
	}
	return Snapshot{
		Hash:        s.Hash,
		SourcePath:  s.SourcePath,
		SidecarPath: s.SidecarPath,
		Found:       s.Found,
		Dirty:       s.dirty,
		Pages:       s.pages.Numbers(),
		Skipped:     skipped,
		Record:      s.record.Clone(),
	}
}
