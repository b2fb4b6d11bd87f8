package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/domains/internal/api/handler"
	mw "github.com/edvin/domains/internal/api/middleware"
	"github.com/edvin/domains/internal/api/response"
	"github.com/edvin/domains/internal/hostname"
	"github.com/edvin/domains/internal/verifyclient"
)

// ReadyCheck names one dependency /readyz reports on.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Domains    handler.DomainService
	Resolver   handler.Resolver
	Keys       mw.Authenticator
	Classifier *hostname.Classifier
	Ready      []ReadyCheck
}

type Server struct {
	router chi.Router
	logger zerolog.Logger
	deps   Deps
}

func NewServer(logger zerolog.Logger, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// Unauthenticated: the edge calls this on every custom domain request.
	verify := handler.NewVerify(s.deps.Resolver, s.deps.Classifier)
	s.router.Get(verifyclient.VerifyPath, verify.Get)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.deps.Keys))

		domains := handler.NewCustomDomain(s.deps.Domains)
		r.Get("/domains", domains.List)
		r.Post("/domains", domains.Add)
		r.Get("/domains/{id}", domains.Get)
		r.Delete("/domains/{id}", domains.Delete)
		r.Post("/domains/{id}/verify", domains.Verify)
		r.Post("/domains/{id}/recheck", domains.Recheck)
		r.Get("/domains/{id}/dns", domains.DNS)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	for _, c := range s.deps.Ready {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = err.Error()
			healthy = false
			continue
		}
		checks[c.Name] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	response.WriteJSON(w, status, checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
