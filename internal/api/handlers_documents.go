package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/pagemark/internal/extract"
	"github.com/dgallion1/pagemark/internal/lease"
	"github.com/dgallion1/pagemark/internal/meta"
	"github.com/dgallion1/pagemark/internal/parser"
	"github.com/dgallion1/pagemark/internal/session"
	"github.com/dgallion1/pagemark/internal/store"
	"github.com/go-chi/chi/v5"
)

var errOutsideSourceDir = errors.New("path is outside the source directory")

type openRequest struct {
	Path string `json:"path"`
}

// handleListDocuments lists the open sessions.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"documents": s.sessions.List()})
}

// handleOpenDocument hashes a source file on disk and opens an editing session
// for it, loading the matching sidecar when one exists. The path is resolved
// against the configured source directory and may not leave it.
func (s *Server) handleOpenDocument(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if req.Path == "" {
		jsonError(w, "path is required", http.StatusBadRequest)
		return
	}
	if !parser.IsSupportedExtension(req.Path) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(req.Path)), http.StatusBadRequest)
		return
	}

	path, err := resolveSource(s.cfg.SourceDir, req.Path)
	if err != nil {
		s.fail(w, "open document", err)
		return
	}

	sess, err := s.sessions.Open(r.Context(), path)
	if err != nil {
		s.fail(w, "open document", err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// resolveSource maps a requested path onto a file under root. Relative paths
// are taken relative to root; symlinks are followed before the containment
// check.
func resolveSource(root, p string) (string, error) {
	base, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if base, err = filepath.EvalSymlinks(base); err != nil {
		return "", fmt.Errorf("source directory: %w", err)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	target, err := filepath.EvalSymlinks(filepath.Clean(p))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %w", store.ErrHashFailed, err)
		}
		return "", err
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errOutsideSourceDir, p)
	}
	return target, nil
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Touch()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleCloseDocument drops the session. Unsaved edits are lost.
func (s *Server) handleCloseDocument(w http.ResponseWriter, r *http.Request) {
	sum := chi.URLParam(r, "hash")
	if err := s.sessions.Close(r.Context(), sum); err != nil {
		s.fail(w, "close document", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hash": sum, "closed": true})
}

func (s *Server) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Save(s.sessions.Store()); err != nil {
		s.fail(w, "save document", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hash":         sess.Hash,
		"sidecar_path": sess.SidecarPath,
		"saved":        true,
	})
}

// session resolves the {hash} URL parameter, writing a 404 when no session is
// open for it.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, "find session", err)
		return nil, false
	}
	return sess, true
}

// fail maps err to a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, action string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error(action+" failed", "error", err)
	}
	jsonError(w, err.Error(), code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, meta.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, errOutsideSourceDir):
		return http.StatusForbidden
	case errors.Is(err, lease.ErrLeaseHeld):
		return http.StatusConflict
	case errors.Is(err, session.ErrSourceTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, extract.ErrInvalidSpan),
		errors.Is(err, extract.ErrMissingPage),
		errors.Is(err, extract.ErrInvalidPageRange),
		errors.Is(err, store.ErrHashFailed),
		errors.Is(err, errBadInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
