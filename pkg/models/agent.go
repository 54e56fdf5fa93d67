// Package models holds the durable domain types shared by the controller's
// repositories, orchestrator, and HTTP API.
package models

import "time"

// AgentState is the state-machine position of an Agent.
type AgentState string

// Agent states, in rough lifecycle order.
const (
	AgentStateProvisioning AgentState = "PROVISIONING"
	AgentStateProvisioned  AgentState = "PROVISIONED"
	AgentStateCloning      AgentState = "CLONING"
	AgentStateReady        AgentState = "READY"
	AgentStateIdle         AgentState = "IDLE"
	AgentStateRunning      AgentState = "RUNNING"
	AgentStateArchived     AgentState = "ARCHIVED"
	AgentStateError        AgentState = "ERROR"
)

// IsTransitional reports whether the state is mid-provisioning, i.e. a
// concurrent resume/fork caller on the same agent must wait rather than
// start a second transition.
func (s AgentState) IsTransitional() bool {
	switch s {
	case AgentStateProvisioning, AgentStateProvisioned, AgentStateCloning:
		return true
	default:
		return false
	}
}

// IsTerminalForGC reports whether the state is eligible for resume/fork and
// for the auto-restore sweep.
func (s AgentState) IsTerminalForGC() bool {
	return s == AgentStateArchived || s == AgentStateError
}

// MachineType distinguishes pool-managed machines from user-supplied ones.
type MachineType string

// Machine types.
const (
	MachineTypeManaged MachineType = "managed"
	MachineTypeCustom  MachineType = "custom"
)

// Agent is a long-lived, per-user, per-project orchestrated worker with a
// dedicated VM and working tree.
type Agent struct {
	ID          string
	UserID      string
	ProjectID   string
	MachineID   *string
	LastMachineID *string

	BranchName string
	BaseBranch string

	StartCommitSha *string
	LastCommitSha  *string
	LastCommitURL  *string

	State AgentState

	EnvironmentID *string

	IsRunning  bool
	IsReady    bool
	IsTrashed  bool
	IsTemplate bool

	MachineType MachineType

	ErrorMessage       *string
	LastAutoRestoredAt *time.Time

	GitHistoryLastPushedCommitSha *string

	// TaskSummary is cleared on fork (never on resume); see the Open
	// Question decision recorded in DESIGN.md.
	TaskSummary *string

	// PodID names the controller replica currently driving this agent's
	// active transition; only that replica's in-process cancel-function
	// registry can service interrupt() for it.
	PodID *string

	// WorkerSecret is established at provisioning and never leaves the
	// controller; pkg/workerapi.DeriveKey turns it into the symmetric key
	// that seals every WorkerAPI request for this agent.
	WorkerSecret []byte

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Invariant (documented, enforced by repo+orchestrator, not by this struct):
// MachineID is set iff State is not ARCHIVED; IsRunning/IsReady cannot be
// true while State is PROVISIONING/CLONING/PROVISIONED/ERROR/ARCHIVED.

// CanAcceptPrompt reports whether the agent is far enough along its
// lifecycle to accept a new prompt from a non-owner caller.
func (a *Agent) CanAcceptPrompt() bool {
	switch a.State {
	case AgentStateReady, AgentStateIdle, AgentStateRunning:
		return true
	default:
		return false
	}
}
