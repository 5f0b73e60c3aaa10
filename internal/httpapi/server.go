// Package httpapi exposes the library and the download coordinator over a
// small local REST API, with a websocket stream of progress updates.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ytget/yt-offline/internal/download"
	"github.com/ytget/yt-offline/internal/library"
	"github.com/ytget/yt-offline/internal/logger"
)

// DefaultPersistTimeout bounds saving a playlist after its refresh job settled
const DefaultPersistTimeout = 30 * time.Second

// Server is the local control API
type Server struct {
	downloader download.Downloader
	library    *library.Library
	hub        *Hub
	log        *logger.Manager
	server     *http.Server
}

// NewServer creates a server listening on addr once started
func NewServer(addr string, d download.Downloader, lib *library.Library, hub *Hub, log *logger.Manager) *Server {
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		downloader: d,
		library:    lib,
		hub:        hub,
		log:        log,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/playlists", func(r chi.Router) {
			r.Get("/", s.handleListPlaylists)
			r.Post("/", s.handleAddPlaylist)
			r.Get("/{id}", s.handleGetPlaylist)
			r.Post("/{id}/refresh", s.handleRefreshPlaylist)
		})

		r.Route("/videos/{id}", func(r chi.Router) {
			r.Post("/download", s.handleDownloadVideo)
			r.Delete("/file", s.handleDeleteVideoFile)
			r.Put("/position", s.handleSetPosition)
		})

		if s.hub != nil {
			r.Get("/progress", s.hub.HandleWebSocket)
		}
	})

	return r
}

// Start begins serving HTTP requests in a separate goroutine
func (s *Server) Start() error {
	if s.server.Addr == "" {
		return fmt.Errorf("http address is not configured")
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Printf("http api server stopped with error: %v", err)
		}
	}()
	s.log.Info().Printf("HTTP API server listening on %s", s.server.Addr)
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
