package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"facebot-go/internal/config"
	"facebot-go/internal/core/pipeline"
	"facebot-go/internal/db/repository"
	"facebot-go/internal/recognizer"
)

// Server exposes the REST surface: health, statistics, enrolled labels and
// a prediction upload endpoint.
type Server struct {
	cfg        *config.Config
	repo       repository.Repository
	svc        *pipeline.Service
	pool       *pipeline.WorkerPool
	recognizer *recognizer.Client
	httpServer *http.Server
}

func NewServer(cfg *config.Config, repo repository.Repository, svc *pipeline.Service, pool *pipeline.WorkerPool, rec *recognizer.Client) *Server {
	s := &Server{
		cfg:        cfg,
		repo:       repo,
		svc:        svc,
		pool:       pool,
		recognizer: rec,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Route("/api", s.registerRoutes)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	return s
}

func (s *Server) registerRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/labels", s.handleLabels)
	r.Post("/predict", s.handlePredict)
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
