package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/rvc-bridge/internal/auth"
	"github.com/nerrad567/rvc-bridge/internal/bus"
	"github.com/nerrad567/rvc-bridge/internal/dispatch"
	"github.com/nerrad567/rvc-bridge/internal/eventlog"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/rvc-bridge/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// EventLog is the read and delete side of the event log.
// *eventlog.Recorder satisfies it.
type EventLog interface {
	Query(ctx context.Context, f eventlog.Filter) ([]eventlog.Entry, error)
	Clear(ctx context.Context, f eventlog.Filter) (int64, error)
}

// BrokerStatus reports the MQTT connection state for /health.
type BrokerStatus interface {
	IsConnected() bool
}

// BusStats reports the MQTT bridge counters for /health.
// *bus.Bridge satisfies it.
type BusStats interface {
	Stats() bus.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Store      *state.Store
	Dispatcher *dispatch.Dispatcher
	EventLog   EventLog       // Optional: log endpoints return 503 without it
	Auth       *auth.Verifier // Required when EventLog is set
	Broker     BrokerStatus   // Optional
	Bus        BusStats       // Optional
	Version    string
}

// Server is the HTTP API server for the RV-C bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	store      *state.Store
	dispatcher *dispatch.Dispatcher
	eventLog   EventLog
	auth       *auth.Verifier
	broker     BrokerStatus
	bus        BusStats
	version    string

	hub      *Hub
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	mu       sync.Mutex
}

// New creates a new API server with the given dependencies.
//
// The WebSocket hub is attached to the store immediately so no change is
// missed between New and Start. The server is not listening until Start().
//
// Parameters:
//   - deps: Required dependencies (logger, store, dispatcher)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Store == nil {
		return nil, errors.New("state store is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if deps.EventLog != nil && deps.Auth == nil {
		return nil, errors.New("auth verifier is required when the event log is exposed")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		eventLog:   deps.EventLog,
		auth:       deps.Auth,
		broker:     deps.Broker,
		bus:        deps.Bus,
		version:    deps.Version,
		hub:        NewHub(deps.WS, deps.Logger),
	}

	s.store.OnChange(s.broadcastChange)
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// The listener is bound before Start returns so a port conflict is reported
// to the caller. Requests are served in a background goroutine until Close().
//
// Parameters:
//   - ctx: Parent context for the WebSocket hub
//
// Returns:
//   - error: If the listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API listener on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		var serveErr error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			serveErr = srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			serveErr = srv.Serve(ln)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", serveErr)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
