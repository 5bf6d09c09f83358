package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/asysbus-bridge/internal/bridges/asb"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/config"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/asysbus-bridge/internal/journal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ControlSink accepts control messages as if they came from the broker.
// *asb.Relay implements it.
type ControlSink interface {
	HandleControl(topic string, payload []byte) error
}

// JournalReader lists journaled frames. *journal.SQLiteRepository implements it.
type JournalReader interface {
	List(ctx context.Context, filter journal.Filter) (*journal.ListResult, error)
}

// TelemetryStats reports telemetry write counters. *influxdb.Client
// implements it.
type TelemetryStats interface {
	Stats() influxdb.Stats
}

// BrokerStats reports broker client counters. *mqtt.Client implements it.
type BrokerStats interface {
	Stats() mqtt.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	Logger *logging.Logger

	// BridgeID is reported by the health endpoint.
	BridgeID uint16

	// Status is required.
	Status asb.StatusSource

	// Control and Prefix enable the control endpoint.
	Control ControlSink
	Prefix  string

	// Journal, DB, Broker and Telemetry are optional.
	Journal   JournalReader
	DB        *sql.DB
	Broker    BrokerStats
	Telemetry TelemetryStats

	// ProcessStats defaults to asb.ReadProcessStats.
	ProcessStats func() (asb.ProcessStats, error)

	Version string
}

// Server is the HTTP API server of the bridge.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	logger       *logging.Logger
	bridgeID     uint16
	status       asb.StatusSource
	control      ControlSink
	prefix       string
	journal      JournalReader
	db           *sql.DB
	broker       BrokerStats
	telemetry    TelemetryStats
	processStats func() (asb.ProcessStats, error)
	version      string
	startTime    time.Time
	server       *http.Server
	listener     net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Status == nil {
		return nil, fmt.Errorf("status source is required")
	}

	processStats := deps.ProcessStats
	if processStats == nil {
		processStats = asb.ReadProcessStats
	}

	return &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		bridgeID:     deps.BridgeID,
		status:       deps.Status,
		control:      deps.Control,
		prefix:       deps.Prefix,
		journal:      deps.Journal,
		db:           deps.DB,
		broker:       deps.Broker,
		telemetry:    deps.Telemetry,
		processStats: processStats,
		version:      deps.Version,
		startTime:    time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine. Binding
// happens synchronously so a port conflict is reported here.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
