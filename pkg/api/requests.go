package api

import "github.com/ariana-dot-dev/ariana-sub004/pkg/workerapi"

// CreateAgentRequest is the HTTP request body for POST /api/v1/agents.
type CreateAgentRequest struct {
	UserID         string                    `json:"user_id"`
	ProjectID      string                    `json:"project_id"`
	Name           string                    `json:"name,omitempty"`
	EnvironmentID  *string                   `json:"environment_id,omitempty"`
	BaseBranch     string                    `json:"base_branch,omitempty"`
	SetupMode      string                    `json:"setup_mode,omitempty"`
	GitCredentials *workerapi.GitCredentials `json:"git_credentials,omitempty"`
}

// SubmitPromptRequest is the HTTP request body for POST /api/v1/agents/:id/prompts.
type SubmitPromptRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// ForkAgentRequest is the HTTP request body for POST /api/v1/agents/:id/fork.
type ForkAgentRequest struct {
	NewOwnerID string  `json:"new_owner_id"`
	NewName    *string `json:"new_name,omitempty"`
}
