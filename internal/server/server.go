package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FindoraNetwork/findora-exporter/internal/store"
)

const (
	// shutdownTimeout bounds graceful shutdown of in-flight scrapes.
	shutdownTimeout = 5 * time.Second

	readHeaderTimeout = 10 * time.Second
)

// Server exposes the exporter over HTTP.
//
// Server provides three endpoints:
//   - GET /metrics: prometheus text exposition of every registry
//   - GET /api/status: the status of every target as JSON
//   - GET /healthz: liveness probe
//
// Any other path or method is answered with 403 Forbidden.
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	gatherer   prometheus.Gatherer
	addr       string
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store implementation for status data
//   - gatherer: source of the /metrics exposition
//   - addr: TCP address to listen on, e.g. "127.0.0.1:9090"
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, gatherer prometheus.Gatherer, addr string, logger *slog.Logger) *Server {
	return &Server{
		store:    st,
		gatherer: gatherer,
		addr:     addr,
		logger:   logger,
	}
}

// Handler returns the router. Exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Get("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
		ErrorHandling: promhttp.HTTPErrorOnError,
	}).ServeHTTP)
	r.Get("/api/status", s.handleStatus)
	r.Get("/healthz", s.handleHealth)

	r.NotFound(forbidden)
	r.MethodNotAllowed(forbidden)
	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured address.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify address availability synchronously
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		// BaseContext derives all request contexts from the server context.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// handleStatus returns all current statuses as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	statuses := s.store.GetAll()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(statuses); err != nil {
		s.logger.Error("failed to encode status response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func forbidden(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// logRequests logs each request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
