// Package api provides the controller's HTTP API: CRUD and lifecycle
// operations over pkg/orchestrator's agent state machine, served with
// Echo v5.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/database"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/events"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/orchestrator"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/version"
)

// Orchestrator is the subset of *orchestrator.Orchestrator the API surface
// drives. Narrowed to an interface so handlers can be tested against a
// fake rather than the real quota/pool/snapshot stack.
type Orchestrator interface {
	Create(ctx context.Context, req orchestrator.CreateRequest) (*models.Agent, error)
	ListAgents(ctx context.Context, filters repo.AgentFilters) ([]*models.Agent, int, error)
	GetAgent(ctx context.Context, agentID string) (*models.Agent, error)
	SubmitPrompt(ctx context.Context, agentID, callerUserID, text string) error
	Interrupt(ctx context.Context, agentID string) error
	Archive(ctx context.Context, agentID string) error
	Fork(ctx context.Context, sourceAgentID, newOwnerID string, newName *string) (*models.Agent, error)
	Reboot(ctx context.Context, agentID string) (*models.Agent, error)
	Delete(ctx context.Context, agentID string) error
	Health(ctx context.Context, agentID string) (*orchestrator.HealthStatus, error)
}

// Server is the controller's HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	dbClient     *database.Client
	orchestrator Orchestrator
	publisher    *events.EventPublisher // nil until SetEventPublisher
}

// NewServer creates a new API server with Echo v5, wired to orch for every
// agent lifecycle route.
func NewServer(dbClient *database.Client, orch Orchestrator) *Server {
	e := echo.New()

	s := &Server{
		echo:         e,
		dbClient:     dbClient,
		orchestrator: orch,
	}

	s.setupRoutes()
	return s
}

// SetEventPublisher wires the event publisher. ValidateWiring requires it,
// but no route registered by setupRoutes reads it.
func (s *Server) SetEventPublisher(pub *events.EventPublisher) {
	s.publisher = pub
}

// ValidateWiring checks that all required collaborators have been wired.
// Call this after every Set* call and before Start/StartWithListener.
func (s *Server) ValidateWiring() error {
	var missing []string
	if s.dbClient == nil {
		missing = append(missing, "dbClient")
	}
	if s.orchestrator == nil {
		missing = append(missing, "orchestrator")
	}
	if s.publisher == nil {
		missing = append(missing, "publisher (call SetEventPublisher)")
	}
	if len(missing) > 0 {
		return &wiringError{missing: missing}
	}
	return nil
}

type wiringError struct{ missing []string }

func (e *wiringError) Error() string {
	msg := "api server wiring incomplete, missing:"
	for _, m := range e.missing {
		msg += " " + m
	}
	return msg
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")

	// Agent list and create.
	v1.GET("/agents", s.listAgentsHandler)
	v1.POST("/agents", s.createAgentHandler)

	// Agent detail and actions.
	v1.GET("/agents/:id", s.getAgentHandler)
	v1.DELETE("/agents/:id", s.deleteAgentHandler)
	v1.GET("/agents/:id/health", s.agentHealthHandler)
	v1.POST("/agents/:id/prompts", s.submitPromptHandler)
	v1.POST("/agents/:id/interrupt", s.interruptHandler)
	v1.POST("/agents/:id/archive", s.archiveHandler)
	v1.POST("/agents/:id/fork", s.forkHandler)
	v1.POST("/agents/:id/reboot", s.rebootHandler)
}

// Start starts the HTTP server on the given address and blocks until it
// stops (ListenAndServe semantics); callers that need to keep running
// alongside it should call this from a goroutine.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health: the controller's own liveness, not any
// particular agent's (see agentHealthHandler for that).
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := database.Health(reqCtx, s.dbClient.DB()); err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.Full(),
		Checks:  checks,
	})
}
