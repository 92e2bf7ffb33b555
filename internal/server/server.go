// Package server provides the HTTP API for manabu.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/manabu/internal/config"
	"github.com/hyperjump/manabu/internal/extract"
	"github.com/hyperjump/manabu/internal/rag"
	"github.com/hyperjump/manabu/pkg/utils"
	"go.uber.org/zap"
)

// Server is the HTTP server for the manabu API.
type Server struct {
	svc       *rag.Service
	extractor *extract.Extractor
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(svc *rag.Service, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		svc:       svc,
		extractor: extract.NewExtractor(),
		config:    cfg,
		logger:    utils.OrNop(logger),
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if timeout := s.config.Server.RequestTimeout(); timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Post("/documents", s.handleIngest)
		r.Post("/documents/upload", s.handleUpload)
		r.Get("/documents", s.handleListDocuments)
		r.Post("/questions", s.handleQuestions)
		r.Get("/stats/{exam_type}", s.handleStats)
		r.Get("/passages", s.handlePassages)
		r.Get("/status", s.handleStatus)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs one line per request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}
