package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/orchestrator"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// fakeOrchestrator is an in-memory double for the Orchestrator interface
// (map state without locking, behavior controlled through its error and
// health fields) rather than re-exercising the real quota/pool/snapshot
// stack.
type fakeOrchestrator struct {
	agents map[string]*models.Agent

	createErr  error
	submitErr  error
	interrupt  error
	archiveErr error
	forkErr    error
	rebootErr  error
	deleteErr  error
	health     *orchestrator.HealthStatus
	healthErr  error
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{agents: make(map[string]*models.Agent)}
}

func (f *fakeOrchestrator) Create(_ context.Context, req orchestrator.CreateRequest) (*models.Agent, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	a := &models.Agent{
		ID:        "agent-1",
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		State:     models.AgentStateReady,
		IsReady:   true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.agents[a.ID] = a
	return a, nil
}

func (f *fakeOrchestrator) ListAgents(_ context.Context, filters repo.AgentFilters) ([]*models.Agent, int, error) {
	var out []*models.Agent
	for _, a := range f.agents {
		if filters.UserID != "" && a.UserID != filters.UserID {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (f *fakeOrchestrator) GetAgent(_ context.Context, agentID string) (*models.Agent, error) {
	a, ok := f.agents[agentID]
	if !ok {
		return nil, orchestrator.ErrAgentNotFound
	}
	return a, nil
}

func (f *fakeOrchestrator) SubmitPrompt(_ context.Context, _, _, _ string) error { return f.submitErr }
func (f *fakeOrchestrator) Interrupt(_ context.Context, _ string) error          { return f.interrupt }
func (f *fakeOrchestrator) Archive(_ context.Context, _ string) error            { return f.archiveErr }

func (f *fakeOrchestrator) Fork(_ context.Context, sourceAgentID, newOwnerID string, _ *string) (*models.Agent, error) {
	if f.forkErr != nil {
		return nil, f.forkErr
	}
	a := &models.Agent{ID: "agent-fork", UserID: newOwnerID, State: models.AgentStateReady, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.agents[a.ID] = a
	return a, nil
}

func (f *fakeOrchestrator) Reboot(_ context.Context, agentID string) (*models.Agent, error) {
	if f.rebootErr != nil {
		return nil, f.rebootErr
	}
	a, ok := f.agents[agentID]
	if !ok {
		return nil, orchestrator.ErrAgentNotFound
	}
	return a, nil
}

func (f *fakeOrchestrator) Delete(_ context.Context, agentID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.agents, agentID)
	return nil
}

func (f *fakeOrchestrator) Health(_ context.Context, _ string) (*orchestrator.HealthStatus, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	if f.health != nil {
		return f.health, nil
	}
	return &orchestrator.HealthStatus{Reachable: true, IsReady: true}, nil
}

func newTestServer(orch *fakeOrchestrator) *Server {
	s := &Server{orchestrator: orch}
	s.setupRoutes()
	return s
}

func TestCreateAgentHandler(t *testing.T) {
	orch := newFakeOrchestrator()
	s := newTestServer(orch)

	body := `{"user_id":"u1","project_id":"p1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp AgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, string(models.AgentStateReady), resp.State)
}

func TestCreateAgentHandlerRejectsMissingFields(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.createErr = &orchestrator.ValidationError{Field: "userId", Message: "required"}
	s := newTestServer(orch)

	body := `{"project_id":"p1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAgentHandlerNotFound(t *testing.T) {
	orch := newFakeOrchestrator()
	s := newTestServer(orch)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/missing", nil)
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAgentsHandlerFiltersByUser(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.agents["a1"] = &models.Agent{ID: "a1", UserID: "u1", State: models.AgentStateReady}
	orch.agents["a2"] = &models.Agent{ID: "a2", UserID: "u2", State: models.AgentStateReady}
	s := newTestServer(orch)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents?user_id=u1", nil)
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AgentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "a1", resp.Agents[0].ID)
}

func TestSubmitPromptHandlerRequiresText(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.agents["a1"] = &models.Agent{ID: "a1"}
	s := newTestServer(orch)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/a1/prompts", strings.NewReader(`{"user_id":"u1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitPromptHandlerAccepts(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.agents["a1"] = &models.Agent{ID: "a1"}
	s := newTestServer(orch)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/a1/prompts", strings.NewReader(`{"user_id":"u1","text":"do it"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestInterruptHandler(t *testing.T) {
	orch := newFakeOrchestrator()
	s := newTestServer(orch)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/a1/interrupt", nil)
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestArchiveHandler(t *testing.T) {
	orch := newFakeOrchestrator()
	s := newTestServer(orch)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/a1/archive", nil)
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForkHandlerRequiresNewOwner(t *testing.T) {
	orch := newFakeOrchestrator()
	s := newTestServer(orch)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/a1/fork", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForkHandlerCreatesAgent(t *testing.T) {
	orch := newFakeOrchestrator()
	s := newTestServer(orch)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/a1/fork", strings.NewReader(`{"new_owner_id":"u2"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp AgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "u2", resp.UserID)
}

func TestRebootHandlerNotFound(t *testing.T) {
	orch := newFakeOrchestrator()
	s := newTestServer(orch)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/missing/reboot", nil)
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAgentHandler(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.agents["a1"] = &models.Agent{ID: "a1"}
	s := newTestServer(orch)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/agents/a1", nil)
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	_, stillThere := orch.agents["a1"]
	assert.False(t, stillThere)
}

func TestAgentHealthHandler(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.health = &orchestrator.HealthStatus{Reachable: false, Error: "no machine attached"}
	s := newTestServer(orch)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/a1/health", nil)
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AgentHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Reachable)
	assert.Equal(t, "no machine attached", resp.Error)
}

func TestHealthHandlerRequiresDBClient(t *testing.T) {
	// The top-level /health endpoint needs a real *database.Client, since
	// database.Health requires a live *sql.DB. No test in this module
	// exercises that handler; this function asserts nothing.
	_ = echo.New()
}
