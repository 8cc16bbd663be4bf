package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"libraryhub/internal/ratelimit"
	"libraryhub/internal/stafftoken"
	"libraryhub/internal/util"
	"libraryhub/services/library/internal/app"
)

const serviceName = "library"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App       *app.App
	APIPrefix string

	// Limiter throttles mutating requests per client IP. Nil disables it.
	Limiter        ratelimit.Limiter
	TrustedProxies *util.TrustedProxies

	// StaffTokens guards mutating routes when set.
	StaffTokens *stafftoken.Verifier

	CORSAllowedOrigins []string
	CoverMaxBytes      int64
}

// Server exposes HTTP endpoints for the library service.
type Server struct {
	app            *app.App
	router         chi.Router
	validate       *validator
	limiter        ratelimit.Limiter
	trustedProxies *util.TrustedProxies
	staffTokens    *stafftoken.Verifier
	corsOrigins    []string
	coverMaxBytes  int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	coverMaxBytes := cfg.CoverMaxBytes
	if coverMaxBytes <= 0 {
		coverMaxBytes = 5 << 20
	}
	s := &Server{
		app:            cfg.App,
		router:         chi.NewRouter(),
		validate:       newValidator(),
		limiter:        cfg.Limiter,
		trustedProxies: cfg.TrustedProxies,
		staffTokens:    cfg.StaffTokens,
		corsOrigins:    cfg.CORSAllowedOrigins,
		coverMaxBytes:  coverMaxBytes,
	}
	s.routes(cfg.APIPrefix)
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog(serviceName,
			util.WithRecover(codeInternal,
				util.WithSecurityHeaders(s.router),
			),
		),
	)
}

func (s *Server) routes(prefix string) {
	s.router.Use(s.corsHandler())
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeRouteNotFound, "not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})
	s.router.Get("/healthz", s.handleHealth)

	mount := func(r chi.Router) {
		r.Use(s.withWriteRateLimit, s.withStaffToken)

		r.Route("/authors", func(r chi.Router) {
			r.Post("/", s.handleCreateAuthor)
			r.Get("/", s.handleListAuthors)
			r.Get("/{id}", s.handleGetAuthor)
			r.Put("/{id}", s.handleUpdateAuthor)
			r.Delete("/{id}", s.handleDeleteAuthor)
		})
		r.Route("/books", func(r chi.Router) {
			r.Post("/", s.handleCreateBook)
			r.Get("/", s.handleListBooks)
			r.Get("/{id}", s.handleGetBook)
			r.Put("/{id}", s.handleUpdateBook)
			r.Delete("/{id}", s.handleDeleteBook)
			r.Put("/{id}/cover", s.handleSetBookCover)
			r.Get("/{id}/cover", s.handleGetBookCover)
		})
		r.Route("/borrows", func(r chi.Router) {
			r.Post("/", s.handleCreateBorrow)
			r.Get("/", s.handleListBorrows)
			r.Get("/{id}", s.handleGetBorrow)
			r.Patch("/{id}/return", s.handleReturnBorrow)
		})
	}
	if prefix == "" || prefix == "/" {
		s.router.Group(mount)
		return
	}
	s.router.Route(prefix, mount)
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", util.RequestIDHeader},
		ExposedHeaders:   []string{util.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           int((10 * time.Minute).Seconds()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
