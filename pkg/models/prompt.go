package models

import "time"

// PromptStatus is the position of an AgentPrompt in its per-agent FIFO queue.
type PromptStatus string

// Prompt statuses.
const (
	PromptStatusQueued PromptStatus = "queued"
	PromptStatusActive PromptStatus = "active"
	PromptStatusDone   PromptStatus = "done"
	PromptStatusFailed PromptStatus = "failed"
)

// AgentPrompt is one entry in an agent's ordered prompt queue.
// Invariant: at most one prompt per agent has Status == PromptStatusActive.
type AgentPrompt struct {
	ID        string
	AgentID   string
	Text      string
	Status    PromptStatus
	CreatedAt time.Time
}

// MessageRole distinguishes user turns from assistant turns in the
// append-only per-agent message log.
type MessageRole string

// Message roles.
const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// AgentMessage is one entry in the append-only assistant+user message log,
// indexed by a stable API message id for dedup-on-update.
type AgentMessage struct {
	ID           string
	AgentID      string
	PromptID     *string
	APIMessageID string
	Role         MessageRole
	Content      string
	IsStreaming  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AgentCommit is a git commit recorded by the worker after `git commit`,
// later updated when push state changes.
type AgentCommit struct {
	AgentID    string
	Sha        string
	Message    string
	Timestamp  time.Time
	Additions  int
	Deletions  int
	Pushed     bool
	IsReverted bool
}
