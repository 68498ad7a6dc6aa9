package api

import (
	"net/http"
)

// handleStats reports open sessions and recent extraction latency.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": s.sessions.Len(),
		"extract":  s.stats.Snapshot(),
	})
}
