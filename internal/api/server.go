package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amaumene/bridgarr/internal/api/handlers"
	"github.com/amaumene/bridgarr/internal/api/middleware"
	"github.com/amaumene/bridgarr/internal/config"
	"github.com/amaumene/bridgarr/internal/metrics"
	"github.com/amaumene/bridgarr/internal/models"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	logger *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, store models.Store, submitter handlers.Submitter, links handlers.LinkReader, logger *logrus.Logger) *Server {
	s := &Server{logger: logger}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      NewRouter(cfg, store, submitter, links, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// NewRouter configures all HTTP routes
func NewRouter(cfg *config.Config, store models.Store, submitter handlers.Submitter, links handlers.LinkReader, logger *logrus.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	// Health, status and metrics
	r.Get("/health", handlers.NewHealthHandler(logger).ServeHTTP)
	r.Get("/status", handlers.NewStatusHandler(store, logger).ServeHTTP)
	r.Handle("/metrics", metrics.Handler())

	// Request manager webhooks
	r.Post("/api/webhooks/overseerr", handlers.NewWebhookHandler(submitter, cfg.WebhookSecret, logger).ServeHTTP)
	r.Get("/api/webhooks/test", handlers.WebhookTestHandler)

	// Read API
	media := handlers.NewMediaHandler(store, links, cfg.LinkRefreshWindow, logger)
	r.Mount("/api/media", media.Router())
	r.Get("/api/links/stats", media.Stats)

	return r
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
