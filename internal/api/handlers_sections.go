package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dgallion1/pagemark/internal/meta"
	"github.com/go-chi/chi/v5"
)

var errBadInput = errors.New("bad input")

// sectionPatch carries the editable fields of a section. Absent fields are
// left unchanged.
type sectionPatch struct {
	Name  *string         `json:"name"`
	Pages *meta.PageRange `json:"pages"`
	Kind  *meta.Kind      `json:"kind"`
}

func (p sectionPatch) apply(sec *meta.SectionDefinition) error {
	if p.Pages != nil {
		if err := p.Pages.Validate(); err != nil {
			return fmt.Errorf("%w: %w", errBadInput, err)
		}
		sec.Pages = *p.Pages
	}
	if p.Name != nil {
		sec.Name = *p.Name
	}
	if p.Kind != nil {
		sec.Kind = *p.Kind
	}
	return nil
}

type opRequest struct {
	Start *int `json:"start"`
	End   *int `json:"end"`
}

type sectionResponse struct {
	Index   int                    `json:"index"`
	Section meta.SectionDefinition `json:"section"`
}

type extractResponse struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	SpanStart int    `json:"span_start"`
	SpanEnd   int    `json:"span_end"`
	Removed   int    `json:"removed"`

	Full     *string `json:"full,omitempty"`
	Before   *string `json:"before,omitempty"`
	Selected *string `json:"selected,omitempty"`
	After    *string `json:"after,omitempty"`
}

// handleAddSection appends a default section, optionally with initial fields.
func (s *Server) handleAddSection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var patch sectionPatch
	if !decodeBody(w, r, &patch, true) {
		return
	}

	var resp sectionResponse
	err := sess.Update(func(rec *meta.SourceMeta) error {
		sec := meta.NewSection()
		if err := patch.apply(&sec); err != nil {
			return err
		}
		resp.Index = rec.AddSection(sec)
		resp.Section = sec.Clone()
		return nil
	})
	if err != nil {
		s.fail(w, "add section", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	var patch sectionPatch
	if !decodeBody(w, r, &patch, false) {
		return
	}
	s.editSection(w, r, "update section", patch.apply)
}

func (s *Server) handleDeleteSection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	idx, ok := urlIndex(w, r, "idx")
	if !ok {
		return
	}
	err := sess.Update(func(rec *meta.SourceMeta) error {
		return rec.RemoveSection(idx)
	})
	if err != nil {
		s.fail(w, "delete section", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": idx})
}

// handleSetSpan replaces the section's span. A JSON null clears it so the
// section covers all of its page text.
func (s *Server) handleSetSpan(w http.ResponseWriter, r *http.Request) {
	var span *meta.Span
	if !decodeBody(w, r, &span, false) {
		return
	}
	if span != nil && (span.Start < 0 || (!span.Open && span.End < span.Start)) {
		jsonError(w, fmt.Sprintf("invalid span %s", span), http.StatusBadRequest)
		return
	}
	s.editSection(w, r, "set span", func(sec *meta.SectionDefinition) error {
		sec.Span = span
		return nil
	})
}

// handleAddOp records a deletion of the half-open selection [start, end)
// relative to the section's spanned text.
func (s *Server) handleAddOp(w http.ResponseWriter, r *http.Request) {
	var req opRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if req.Start == nil || req.End == nil {
		jsonError(w, "start and end are required", http.StatusBadRequest)
		return
	}
	if *req.Start < 0 || *req.End <= *req.Start {
		jsonError(w, fmt.Sprintf("invalid selection [%d, %d)", *req.Start, *req.End), http.StatusBadRequest)
		return
	}
	s.editSection(w, r, "add op", func(sec *meta.SectionDefinition) error {
		sec.AppendOp(meta.DeleteRange(*req.Start, *req.End))
		return nil
	})
}

func (s *Server) handleDeleteOp(w http.ResponseWriter, r *http.Request) {
	op, ok := urlIndex(w, r, "op")
	if !ok {
		return
	}
	s.editSection(w, r, "delete op", func(sec *meta.SectionDefinition) error {
		return sec.RemoveOp(op)
	})
}

// handleExtract runs the extraction engine on one section. With full=true the
// response also carries the whole concatenated text split around the span.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	idx, ok := urlIndex(w, r, "idx")
	if !ok {
		return
	}
	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))

	start := time.Now()
	out, err := sess.Extract(idx)
	s.stats.Record(time.Since(start), err)
	if err != nil {
		s.fail(w, "extract", err)
		return
	}
	resp := extractResponse{
		Index:     idx,
		Name:      out.Name,
		Text:      out.Text,
		SpanStart: out.SpanStart,
		SpanEnd:   out.SpanEnd,
		Removed:   out.Removed,
	}
	if full {
		before, selected, after := out.Segments()
		resp.Full = &out.Full
		resp.Before, resp.Selected, resp.After = &before, &selected, &after
	}
	writeJSON(w, http.StatusOK, resp)
}

// editSection applies fn to section {idx} and responds with the result.
func (s *Server) editSection(w http.ResponseWriter, r *http.Request, action string, fn func(*meta.SectionDefinition) error) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	idx, ok := urlIndex(w, r, "idx")
	if !ok {
		return
	}

	var updated meta.SectionDefinition
	err := sess.UpdateSection(idx, func(sec *meta.SectionDefinition) error {
		if err := fn(sec); err != nil {
			return err
		}
		updated = sec.Clone()
		return nil
	})
	if err != nil {
		s.fail(w, action, err)
		return
	}
	writeJSON(w, http.StatusOK, sectionResponse{Index: idx, Section: updated})
}

func urlIndex(w http.ResponseWriter, r *http.Request, param string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, param))
	if err != nil || n < 0 {
		jsonError(w, fmt.Sprintf("invalid %s %q", param, chi.URLParam(r, param)), http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// maxBodyBytes caps JSON request bodies. Edits are small; nothing legitimate
// comes close.
const maxBodyBytes = 1 << 20

// decodeBody decodes a JSON request body into v and writes the error response
// on failure. An empty body is accepted when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		jsonError(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		return false
	}
	jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
	return false
}
