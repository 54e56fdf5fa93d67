package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/orchestrator"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// createAgentHandler handles POST /api/v1/agents.
func (s *Server) createAgentHandler(c *echo.Context) error {
	var req CreateAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	agent, err := s.orchestrator.Create(c.Request().Context(), orchestrator.CreateRequest{
		UserID:         req.UserID,
		ProjectID:      req.ProjectID,
		Name:           req.Name,
		EnvironmentID:  req.EnvironmentID,
		BaseBranch:     req.BaseBranch,
		IP:             c.RealIP(),
		SetupMode:      req.SetupMode,
		GitCredentials: req.GitCredentials,
	})
	if err != nil {
		if agent != nil {
			// Partially admitted then failed bringing up — return 502 with
			// the row so the caller can see the ERROR state rather than a
			// bare error string.
			return c.JSON(http.StatusBadGateway, toAgentResponse(agent))
		}
		return mapOrchestratorError(err)
	}

	return c.JSON(http.StatusCreated, toAgentResponse(agent))
}

// listAgentsHandler handles GET /api/v1/agents.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	filters := repo.AgentFilters{
		UserID:    c.QueryParam("user_id"),
		ProjectID: c.QueryParam("project_id"),
		Limit:     50,
	}

	if v := c.QueryParam("state"); v != "" {
		filters.State = models.AgentState(v)
	}
	if v := c.QueryParam("include_deleted"); v == "true" {
		filters.IncludeDeleted = true
	}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			filters.Limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	agents, total, err := s.orchestrator.ListAgents(c.Request().Context(), filters)
	if err != nil {
		return mapOrchestratorError(err)
	}

	resp := &AgentListResponse{Agents: make([]*AgentResponse, 0, len(agents)), Total: total}
	for _, a := range agents {
		resp.Agents = append(resp.Agents, toAgentResponse(a))
	}
	return c.JSON(http.StatusOK, resp)
}

// getAgentHandler handles GET /api/v1/agents/:id.
func (s *Server) getAgentHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	agent, err := s.orchestrator.GetAgent(c.Request().Context(), agentID)
	if err != nil {
		return mapOrchestratorError(err)
	}
	return c.JSON(http.StatusOK, toAgentResponse(agent))
}

// deleteAgentHandler handles DELETE /api/v1/agents/:id.
func (s *Server) deleteAgentHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	if err := s.orchestrator.Delete(c.Request().Context(), agentID); err != nil {
		return mapOrchestratorError(err)
	}
	return c.JSON(http.StatusOK, &MessageResponse{Message: "agent deleted"})
}

// agentHealthHandler handles GET /api/v1/agents/:id/health.
func (s *Server) agentHealthHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	health, err := s.orchestrator.Health(c.Request().Context(), agentID)
	if err != nil {
		return mapOrchestratorError(err)
	}
	return c.JSON(http.StatusOK, &AgentHealthResponse{
		Reachable:             health.Reachable,
		IsReady:               health.IsReady,
		HasBlockingAutomation: health.HasBlockingAutomation,
		BlockingAutomationIDs: health.BlockingAutomationIDs,
		ContextUsage:          health.ContextUsage,
		Error:                 health.Error,
	})
}

// submitPromptHandler handles POST /api/v1/agents/:id/prompts.
func (s *Server) submitPromptHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	var req SubmitPromptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	if err := s.orchestrator.SubmitPrompt(c.Request().Context(), agentID, req.UserID, req.Text); err != nil {
		return mapOrchestratorError(err)
	}
	return c.JSON(http.StatusAccepted, &MessageResponse{Message: "prompt queued"})
}

// interruptHandler handles POST /api/v1/agents/:id/interrupt.
func (s *Server) interruptHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	if err := s.orchestrator.Interrupt(c.Request().Context(), agentID); err != nil {
		return mapOrchestratorError(err)
	}
	return c.JSON(http.StatusOK, &MessageResponse{Message: "interrupt requested"})
}

// archiveHandler handles POST /api/v1/agents/:id/archive.
func (s *Server) archiveHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	if err := s.orchestrator.Archive(c.Request().Context(), agentID); err != nil {
		return mapOrchestratorError(err)
	}
	return c.JSON(http.StatusOK, &MessageResponse{Message: "agent archived"})
}

// forkHandler handles POST /api/v1/agents/:id/fork.
func (s *Server) forkHandler(c *echo.Context) error {
	sourceID := c.Param("id")
	if sourceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	var req ForkAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.NewOwnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "new_owner_id is required")
	}

	agent, err := s.orchestrator.Fork(c.Request().Context(), sourceID, req.NewOwnerID, req.NewName)
	if err != nil {
		if agent != nil {
			return c.JSON(http.StatusBadGateway, toAgentResponse(agent))
		}
		return mapOrchestratorError(err)
	}
	return c.JSON(http.StatusCreated, toAgentResponse(agent))
}

// rebootHandler handles POST /api/v1/agents/:id/reboot.
func (s *Server) rebootHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	agent, err := s.orchestrator.Reboot(c.Request().Context(), agentID)
	if err != nil {
		if agent != nil {
			return c.JSON(http.StatusBadGateway, toAgentResponse(agent))
		}
		return mapOrchestratorError(err)
	}
	return c.JSON(http.StatusOK, toAgentResponse(agent))
}
