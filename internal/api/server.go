package api

import (
	"context"
	"net/http"

	"replay/crumbs/internal/summarizer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// TrailService is the part of the service layer the HTTP API needs
type TrailService interface {
	Segments(ctx context.Context, replayID string, clickable bool) ([]summarizer.Segment, error)
	Click(ctx context.Context, replayID, crumbID string) error
	Clicks(ctx context.Context, replayID string) (map[string]int64, error)
	Enqueue(ctx context.Context, replayIDs ...string) error
}

// Server is the HTTP API for breadcrumb trails
type Server struct {
	router  chi.Router
	service TrailService
	log     *log.Logger
	apiKey  string
}

// NewServer creates and configures the HTTP server. An empty apiKey disables
// authentication.
func NewServer(service TrailService, logger *log.Logger, apiKey string) *Server {
	s := &Server{
		service: service,
		log:     logger,
		apiKey:  apiKey,
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

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.apiKey != "" {
			r.Use(AuthMiddleware(s.apiKey, s.log))
		}

		r.Post("/api/segments", s.handleSummarize)

		r.Route("/api/replays/{replayID}", func(r chi.Router) {
			r.Get("/segments", s.handleReplaySegments)
			r.Post("/breadcrumbs/{crumbID}/click", s.handleClick)
			r.Get("/breadcrumbs/{crumbID}/click", s.handleClickRedirect)
			r.Get("/clicks", s.handleClicks)
			r.Post("/sync", s.handleSync)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
