package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agleyzer/reelserver/internal/catalog"
	"github.com/agleyzer/reelserver/internal/contact"
	"github.com/agleyzer/reelserver/internal/playlist"
	"github.com/agleyzer/reelserver/internal/stats"
	"github.com/agleyzer/reelserver/internal/stream"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// StatsProvider contributes a section to the health report.
type StatsProvider interface {
	Stats() map[string]interface{}
}

// Deps are the components the server routes requests to.
type Deps struct {
	Streamer *stream.Streamer
	Catalog  *catalog.Catalog
	Rotation *playlist.Rotation
	Views    *stats.Counter
	Relay    *contact.Relay
	// Cluster is nil when the node runs standalone.
	Cluster StatsProvider
}

// Options configure the HTTP surface.
type Options struct {
	Port int
	// BaseURL prefixes showreel entries. Empty yields relative URIs.
	BaseURL     string
	CORSOrigins []string
	// TestEmail exposes GET /api/test-email.
	TestEmail bool
}

// Server serves videos, the project API and the showreel
type Server struct {
	deps       Deps
	opts       Options
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// New creates a new HTTP server
func New(deps Deps, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		deps:   deps,
		opts:   opts,
		logger: logger,
	}
	s.handler = s.loggingMiddleware(s.corsMiddleware(s.routes()))
	return s
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *mux.Router {
	// Ids reach the media library as sent; it owns traversal checks.
	r := mux.NewRouter().SkipClean(true)

	r.HandleFunc("/video/{id}", s.handleVideo).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/reel.m3u8", s.handleReel).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/projects", s.handleProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}", s.handleProject).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/featured", s.handleFeatured).Methods(http.MethodGet)
	api.HandleFunc("/contact", s.handleContact).Methods(http.MethodPost)
	if s.opts.TestEmail {
		api.HandleFunc("/test-email", s.handleTestEmail).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	return r
}

// Start starts the HTTP server and blocks until ctx is done
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "port", s.opts.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen on port %d: %w", s.opts.Port, err)
	}

	// Graceful shutdown
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost},
		AllowedHeaders: []string{"Range", "Content-Type"},
		ExposedHeaders: []string{"Content-Range", "Content-Length", "Accept-Ranges", "X-Request-Id"},
	}).Handler(next)
}

// loggingMiddleware tags each request with an id and logs it
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		// Wrap the response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				s.logger.Warn("HTTP request aborted",
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"bytes", wrapped.written,
					"duration", time.Since(start),
				)
				panic(p)
			}
		}()

		next.ServeHTTP(wrapped, r)

		s.logger.Info("HTTP request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"bytes", wrapped.written,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(p)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
