package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/toolbridge/internal/broker"
	"github.com/mattjoyce/toolbridge/internal/catalog"
	"github.com/mattjoyce/toolbridge/internal/events"
	"github.com/mattjoyce/toolbridge/internal/history"
)

//go:generate mockgen -destination=mocks/mock_broker.go -package=mocks github.com/mattjoyce/toolbridge/internal/api Broker,HistoryReader

// Broker is the part of the command broker the HTTP surface drives.
type Broker interface {
	Submit(tool string, args json.RawMessage) (*broker.Pending, error)
	Poll(ctx context.Context, wait time.Duration) (broker.Command, bool, error)
	Complete(id string, result json.RawMessage) error
	Fail(id, message string) error
	Pending() []broker.Snapshot
	Stats() broker.Stats
}

// HistoryReader serves GET /history.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// Service is reported by /health.
	Service      string
	MaxBodyBytes int64
	// PollWait is used when a poll gives no ?wait=; MaxPollWait caps it.
	PollWait    time.Duration
	MaxPollWait time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	broker    Broker
	events    *events.Hub
	catalog   *catalog.Catalog
	history   HistoryReader
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. hub, tools and hist may be nil; the
// matching endpoints then report 404.
func New(config Config, b Broker, hub *events.Hub, tools *catalog.Catalog, hist HistoryReader, logger *slog.Logger) *Server {
	if config.Service == "" {
		config.Service = "toolbridge"
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 10 << 20
	}
	if config.PollWait <= 0 {
		config.PollWait = broker.DefaultPollWait
	}
	if config.MaxPollWait < config.PollWait {
		config.MaxPollWait = config.PollWait
	}
	return &Server{
		config:    config,
		broker:    b,
		events:    hub,
		catalog:   tools,
		history:   hist,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		// Long polls and tool calls hold the response open; no write timeout.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestSize(s.config.MaxBodyBytes))
		r.Post("/tool/{name}", s.handleTool)
		r.Post("/result", s.handleResult)
	})
	r.Get("/poll", s.handlePoll)

	r.Get("/commands", s.handleCommands)
	r.Get("/tools", s.handleTools)
	r.Get("/history", s.handleHistory)
	r.Get("/events", s.handleEvents)

	return r
}

// loggingMiddleware logs HTTP requests. Worker polls are frequent, so
// successful ones are logged at debug.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if r.URL.Path == "/poll" && ww.Status() < http.StatusBadRequest {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) port() int {
	_, p, err := net.SplitHostPort(s.config.Listen)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}
