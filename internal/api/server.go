package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dgallion1/pagemark/internal/config"
	"github.com/dgallion1/pagemark/internal/extract"
	"github.com/dgallion1/pagemark/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP editing backend. Each document is addressed by its
// content hash once a session is open for it.
type Server struct {
	router   chi.Router
	sessions *session.Manager
	stats    *extract.Stats
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(sessions *session.Manager, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		sessions: sessions,
		stats:    extract.NewStats(time.Hour),
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		r.Get("/api/stats", s.handleStats)
	})

	r.Route("/api/documents", func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/", s.handleListDocuments)
		r.Post("/", s.handleOpenDocument)

		r.Route("/{hash}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Delete("/", s.handleCloseDocument)
			r.Post("/save", s.handleSaveDocument)

			r.Post("/sections", s.handleAddSection)
			r.Route("/sections/{idx}", func(r chi.Router) {
				r.Patch("/", s.handleUpdateSection)
				r.Delete("/", s.handleDeleteSection)
				r.Put("/span", s.handleSetSpan)
				r.Post("/ops", s.handleAddOp)
				r.Delete("/ops/{op}", s.handleDeleteOp)
				r.Get("/extract", s.handleExtract)
			})
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
