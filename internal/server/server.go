// Package server exposes the hub and the mutation handler over HTTP: a REST
// surface for page loads and offline clients, and a websocket endpoint for
// live members.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/roach88/famshelf/internal/config"
	"github.com/roach88/famshelf/internal/groupcode"
	"github.com/roach88/famshelf/internal/hub"
	"github.com/roach88/famshelf/internal/ids"
	"github.com/roach88/famshelf/internal/mutation"
)

// errGroupNotFound rejects codes that were never issued and are not in use.
var errGroupNotFound = errors.New("group not found")

// Store is what the server needs from the durable store directly; item
// reads and writes go through the mutation handler.
type Store interface {
	groupcode.Reserver
	GroupKnown(ctx context.Context, code string) (bool, error)
	Ping(ctx context.Context) error
}

// Server routes HTTP and websocket traffic.
type Server struct {
	cfg      *config.Config
	store    Store
	hub      *hub.Hub
	handler  *mutation.Handler
	logger   *slog.Logger
	connIDs  ids.Generator
	upgrader websocket.Upgrader
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConnIDs sets the connection id generator. Default: ULID.
func WithConnIDs(gen ids.Generator) Option {
	return func(s *Server) {
		if gen != nil {
			s.connIDs = gen
		}
	}
}

// New wires a Server. cfg supplies the websocket and group settings.
func New(cfg *config.Config, store Store, h *hub.Hub, handler *mutation.Handler, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		hub:     h,
		handler: handler,
		logger:  slog.Default(),
		connIDs: ids.ULIDGenerator{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(cfg.WebSocket.AllowedOrigins) > 0 {
		allowed := make(map[string]bool, len(cfg.WebSocket.AllowedOrigins))
		for _, o := range cfg.WebSocket.AllowedOrigins {
			allowed[strings.TrimRight(o, "/")] = true
		}
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return allowed[r.Header.Get("Origin")]
		}
	}

	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/groups", func(r chi.Router) {
		r.Post("/", s.handleCreateGroup)
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/items", s.handleListItems)
			r.Post("/items", s.handleAddItem)
			r.Patch("/items/{id}", s.handleUpdateItem)
			r.Delete("/items/{id}", s.handleDeleteItem)
			r.Get("/members", s.handleMembers)
		})
	})
	return r
}

// logRequests logs every non-upgrade request once it completes.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Run serves on ln until ctx is cancelled, then shuts down: the HTTP
// server stops accepting, and the hub closes every live connection.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		s.hub.Close()
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.hub.Close()
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// resolveGroup normalizes a code and, when configured, rejects codes the
// store has never seen and no connection is using.
func (s *Server) resolveGroup(ctx context.Context, raw string) (string, error) {
	code, err := groupcode.Parse(raw)
	if err != nil {
		return "", err
	}
	if !s.cfg.Groups.RequireKnown || s.hub.GroupLive(code) {
		return code, nil
	}
	known, err := s.store.GroupKnown(ctx, code)
	if err != nil {
		return "", fmt.Errorf("check group: %w", err)
	}
	if !known {
		return "", errGroupNotFound
	}
	return code, nil
}
