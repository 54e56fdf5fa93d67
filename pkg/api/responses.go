package api

import (
	"time"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck represents the status of a single health check component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// AgentResponse is the wire shape of an agent, trimming the worker secret
// and other fields that never belong on the API boundary.
type AgentResponse struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	ProjectID          string     `json:"project_id"`
	BranchName         string     `json:"branch_name"`
	BaseBranch         string     `json:"base_branch"`
	State              string     `json:"state"`
	EnvironmentID      *string    `json:"environment_id,omitempty"`
	IsRunning          bool       `json:"is_running"`
	IsReady            bool       `json:"is_ready"`
	IsTrashed          bool       `json:"is_trashed"`
	MachineType        string     `json:"machine_type"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	LastCommitSha      *string    `json:"last_commit_sha,omitempty"`
	LastCommitURL      *string    `json:"last_commit_url,omitempty"`
	TaskSummary        *string    `json:"task_summary,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastAutoRestoredAt *time.Time `json:"last_auto_restored_at,omitempty"`
}

// toAgentResponse converts an internal Agent row to its public wire shape.
func toAgentResponse(a *models.Agent) *AgentResponse {
	return &AgentResponse{
		ID:                 a.ID,
		UserID:             a.UserID,
		ProjectID:          a.ProjectID,
		BranchName:         a.BranchName,
		BaseBranch:         a.BaseBranch,
		State:              string(a.State),
		EnvironmentID:      a.EnvironmentID,
		IsRunning:          a.IsRunning,
		IsReady:            a.IsReady,
		IsTrashed:          a.IsTrashed,
		MachineType:        string(a.MachineType),
		ErrorMessage:       a.ErrorMessage,
		LastCommitSha:      a.LastCommitSha,
		LastCommitURL:      a.LastCommitURL,
		TaskSummary:        a.TaskSummary,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
		LastAutoRestoredAt: a.LastAutoRestoredAt,
	}
}

// AgentListResponse is returned by GET /api/v1/agents.
type AgentListResponse struct {
	Agents []*AgentResponse `json:"agents"`
	Total  int              `json:"total"`
}

// AgentHealthResponse is returned by GET /api/v1/agents/:id/health.
type AgentHealthResponse struct {
	Reachable             bool     `json:"reachable"`
	IsReady                bool     `json:"is_ready"`
	HasBlockingAutomation  bool     `json:"has_blocking_automation"`
	BlockingAutomationIDs  []string `json:"blocking_automation_ids,omitempty"`
	ContextUsage           *float64 `json:"context_usage,omitempty"`
	Error                  string   `json:"error,omitempty"`
}

// MessageResponse is a generic acknowledgement envelope for fire-and-forget
// actions (interrupt, archive) that don't return a resource.
type MessageResponse struct {
	Message string `json:"message"`
}
