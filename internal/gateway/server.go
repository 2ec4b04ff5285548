// Package gateway is the HTTP and WebSocket route layer of the relay.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/chatrelay/internal/agent"
	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/conversation"
	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/soyeahso/chatrelay/internal/notify"
	"github.com/soyeahso/chatrelay/internal/render"
	"github.com/soyeahso/chatrelay/internal/store"
	"github.com/soyeahso/chatrelay/internal/version"
)

var ErrClientClosed = errors.New("client connection closed")

// maxMessageBytes bounds request bodies and WebSocket frames.
const maxMessageBytes = 1 << 20

// Server is the relay's HTTP + WebSocket server.
type Server struct {
	cfg      config.GatewayConfig
	log      *logging.Logger
	runner   *agent.Runner
	sessions *conversation.Registry
	clients  *ClientRegistry
	version  string
	eventSeq atomic.Int64

	// Optional collaborators.
	store     store.TranscriptStore
	renderer  render.Renderer
	scheduler *notify.Scheduler
	hooks     *hooks.Manager

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
	ready      chan string
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// WithStore exposes persisted transcripts on the session routes.
func WithStore(ts store.TranscriptStore) ServerOption {
	return func(s *Server) {
		s.store = ts
	}
}

// WithRenderer enables GET /sessions/{id}/document.
func WithRenderer(r render.Renderer) ServerOption {
	return func(s *Server) {
		s.renderer = r
	}
}

// WithScheduler reports pending notifications on the session routes.
func WithScheduler(sch *notify.Scheduler) ServerOption {
	return func(s *Server) {
		s.scheduler = sch
	}
}

// New creates a new gateway server.
func New(cfg config.GatewayConfig, runner *agent.Runner, sessions *conversation.Registry, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		log:      log.Sub("gateway"),
		runner:   runner,
		sessions: sessions,
		clients:  NewClientRegistry(log.Sub("clients")),
		version:  version.Version,
		ready:    make(chan string, 1),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// Requests without an Origin header (same-origin or non-browser clients) are allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.AllowedOrigins)
}

// Start begins listening for HTTP and WebSocket connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	// No WriteTimeout: replies stream for as long as the model does and are
	// bounded by the llm timeout instead.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertPath, s.cfg.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, tlsCfg)
		s.log.Info().Msg("TLS enabled")
	}

	s.startedAt = time.Now()
	bound := ln.Addr().String()

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": bound})
	}
	s.log.Info().
		Str("addr", bound).
		Str("bind", s.cfg.Bind).
		Msg("gateway server ready")
	s.ready <- bound

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Ready yields the bound address once Start is listening.
func (s *Server) Ready() <-chan string {
	return s.ready
}

// Addr returns the configured listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}
