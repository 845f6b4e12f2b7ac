package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/np-engine/internal/config"
	"github.com/snarg/np-engine/internal/database"
	"github.com/snarg/np-engine/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, db *database.DB, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	// Metrics — no auth
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	health := NewHealthHandler(db, version, startTime)
	stations := &StationsHandler{db: db}
	connections := &ConnectionsHandler{db: db}
	events := &EventsHandler{db: db}

	r.Route("/api", func(r chi.Router) {
		// Health endpoint — no auth
		r.Get("/v1/health", health.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))

			r.Route("/stations", func(r chi.Router) {
				r.Get("/", stations.List)
				r.Post("/", stations.Create)
				r.Get("/{id}", stations.Get)
				r.Put("/{id}", stations.Update)
				r.Delete("/{id}", stations.Delete)
			})

			r.Route("/connections", func(r chi.Router) {
				// Mapping routes first so "mappings" isn't swallowed by {id}.
				r.Get("/mappings", connections.ListMappings)
				r.Post("/mappings", connections.CreateMapping)
				r.Get("/mappings/{id}", connections.GetMapping)
				r.Put("/mappings/{id}", connections.UpdateMapping)
				r.Delete("/mappings/{id}", connections.DeleteMapping)

				r.Get("/", connections.List)
				r.Post("/", connections.Create)
				r.Get("/{id}", connections.Get)
				r.Put("/{id}", connections.Update)
				r.Delete("/{id}", connections.Delete)
				r.Post("/{id}/enable", connections.Enable)
				r.Post("/{id}/disable", connections.Disable)
				r.Post("/{id}/test", connections.Test)
			})

			r.Route("/events", func(r chi.Router) {
				r.Get("/", events.List)
				r.Delete("/", events.Clear)
				r.Get("/{id}", events.Get)
			})
		})
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
