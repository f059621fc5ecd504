// Package server provides the HTTP API for docchat.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/docchat/internal/chat"
	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/convindex"
	"github.com/hyperjump/docchat/internal/indexer"
	"github.com/hyperjump/docchat/pkg/utils"
)

// WatchService lists the inbox roots being watched.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the docchat API.
type Server struct {
	indexes *convindex.Manager
	indexer *indexer.Indexer
	chat    *chat.Service
	config  *config.Config
	watch   WatchService
	logger  *zap.Logger
	server  *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithWatchService exposes the watched inbox roots on /api/v1/watch.
func WithWatchService(w WatchService) ServerOption {
	return func(s *Server) { s.watch = w }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	indexes *convindex.Manager,
	idx *indexer.Indexer,
	chatSvc *chat.Service,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{
		indexes: indexes,
		indexer: idx,
		chat:    chatSvc,
		config:  cfg,
		logger:  utils.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/watch", s.handleWatchDirectories)
		r.Get("/conversations", s.handleListConversations)
		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Use(s.requireConversationID)
			r.Delete("/", s.handleClear)
			r.Get("/stats", s.handleStats)
			r.Post("/documents", s.handleAddDocument)
			r.Delete("/documents/{docID}", s.handleRemoveDocument)
			r.Post("/search", s.handleSearch)
			r.Post("/messages", s.handleMessage)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
