// Package api provides the HTTP REST API and WebSocket server of the
// irrigation controller.
//
// The server follows the same lifecycle as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/irrigation-core/internal/auth"
	"github.com/nerrad567/irrigation-core/internal/eventlog"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/logging"
	"github.com/nerrad567/irrigation-core/internal/irrigation"
	"github.com/nerrad567/irrigation-core/internal/jobs"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the irrigation engine as seen by the API.
type Engine interface {
	Execute(cmd irrigation.Command) (irrigation.Result, error)
	Status() irrigation.DeviceStatus
	Schedules() []irrigation.Schedule
	Schedule(id uint32) (irrigation.Schedule, bool)
	ActiveZones() []irrigation.ActiveRun
	NextEvent() (irrigation.NextEvent, bool)
	Configuration() irrigation.Configuration
	ZoneCount() int
}

// EventStore is the read side of the watering event log.
type EventStore interface {
	Get(ctx context.Context, id string) (eventlog.Event, error)
	List(ctx context.Context, f eventlog.Filter) ([]eventlog.Event, error)
	Count(ctx context.Context, f eventlog.Filter) (int, error)
	Stats(ctx context.Context, since time.Time) (eventlog.Stats, error)
}

// JobRunner exposes the housekeeping scheduler.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
	Entries() []jobs.Entry
}

// HealthChecker is a dependency reported by GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server. Events, Jobs and
// Accounts are optional; their endpoints answer 503 when absent.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Engine   Engine
	Events   EventStore
	Jobs     JobRunner
	Accounts *auth.Accounts

	// Checks are probed by GET /health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	engine   Engine
	events   EventStore
	jobs     JobRunner
	accounts *auth.Accounts
	checks   map[string]HealthChecker
	version  string

	server      *http.Server
	hub         *Hub
	tickets     *ticketStore
	transitions chan irrigation.Transition
	startTime   time.Time
	cancel      context.CancelFunc
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if deps.Security.Enabled && len(deps.Security.JWT.Secret) == 0 {
		return nil, errors.New("jwt secret is required when security is enabled")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		engine:      deps.Engine,
		events:      deps.Events,
		jobs:        deps.Jobs,
		accounts:    deps.Accounts,
		checks:      deps.Checks,
		version:     deps.Version,
		tickets:     newTicketStore(),
		transitions: make(chan irrigation.Transition, transitionQueueSize),
		startTime:   time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	return s, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the WebSocket relay and the HTTP listener.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.relayTransitions(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close shuts the server down, waiting up to 10 seconds for requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
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

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
