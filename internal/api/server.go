package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZZSZ-YCT/customSystem/internal/audit"
	"github.com/ZZSZ-YCT/customSystem/internal/auth"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/config"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/logging"
	"github.com/ZZSZ-YCT/customSystem/internal/oauth"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is satisfied by the database handle and other backends
// whose failure makes the service unhealthy.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	Sessions    *auth.SessionManager
	Permissions *auth.PermissionService
	Registrar   *auth.Registrar
	Apps        *oauth.Service
	AuditRepo   audit.Repository // optional: GET /audit answers 500 without it
	Health      HealthChecker    // optional
	Metrics     *Metrics         // optional: a private registry is created when nil
	Version     string
}

// Server is the HTTP API server for the user centre.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	sessions    *auth.SessionManager
	permissions *auth.PermissionService
	registrar   *auth.Registrar
	apps        *oauth.Service
	auditRepo   audit.Repository
	health      HealthChecker
	metrics     *Metrics
	version     string
	server      *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Permissions == nil {
		return nil, fmt.Errorf("permission service is required")
	}
	if deps.Registrar == nil {
		return nil, fmt.Errorf("registrar is required")
	}
	if deps.Apps == nil {
		return nil, fmt.Errorf("oauth app service is required")
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		sessions:    deps.Sessions,
		permissions: deps.Permissions,
		registrar:   deps.Registrar,
		apps:        deps.Apps,
		auditRepo:   deps.AuditRepo,
		health:      deps.Health,
		metrics:     metrics,
		version:     deps.Version,
	}, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
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

// HealthCheck verifies the API server is running and its backends respond.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	if s.health != nil {
		if err := s.health.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api health check: %w", err)
		}
	}
	return nil
}
