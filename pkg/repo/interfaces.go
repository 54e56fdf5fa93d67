// Package repo defines the repository interfaces the orchestrator and
// services consume, abstracting the relational store. Concrete
// implementations live in pkg/repo/pg.
package repo

import (
	"context"
	"time"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// AgentFilters narrows AgentRepository.FindMany.
type AgentFilters struct {
	UserID         string
	ProjectID      string
	State          models.AgentState
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// AgentRepository is the durable store for Agent rows.
type AgentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Agent, error)
	FindMany(ctx context.Context, filters AgentFilters) ([]*models.Agent, int, error)
	Insert(ctx context.Context, a *models.Agent) error
	Update(ctx context.Context, a *models.Agent) error
	Delete(ctx context.Context, id string) error
	SetAutoRestoredNow(ctx context.Context, id string, at time.Time) error
	// FindErrorAgentsCreatedSince supports the auto-restore sweep.
	FindErrorAgentsCreatedSince(ctx context.Context, since time.Time) ([]*models.Agent, error)
}

// PromptRepository is the durable store for AgentPrompt rows.
type PromptRepository interface {
	Insert(ctx context.Context, p *models.AgentPrompt) error
	List(ctx context.Context, agentID string) ([]*models.AgentPrompt, error)
	FailActiveForAgent(ctx context.Context, agentID string) error
	// ClaimNext atomically promotes the oldest queued prompt to active,
	// returning nil if none are queued or one is already active.
	ClaimNext(ctx context.Context, agentID string) (*models.AgentPrompt, error)
	MarkDone(ctx context.Context, promptID string) error
}

// MessageRepository is the durable store for AgentMessage rows.
type MessageRepository interface {
	BulkInsert(ctx context.Context, msgs []*models.AgentMessage) error
	List(ctx context.Context, agentID string) ([]*models.AgentMessage, error)
	// CopyWithMapping duplicates every message of sourceAgentID onto
	// targetAgentID, rewriting prompt ids via promptIDMap.
	CopyWithMapping(ctx context.Context, sourceAgentID, targetAgentID string, promptIDMap map[string]string) error
}

// CommitRepository is the durable store for AgentCommit rows.
type CommitRepository interface {
	Insert(ctx context.Context, c *models.AgentCommit) error
	Update(ctx context.Context, c *models.AgentCommit) error
	List(ctx context.Context, agentID string) ([]*models.AgentCommit, error)
}

// MachineRepository is the durable store for Machine rows.
type MachineRepository interface {
	Reserve(ctx context.Context, m *models.Machine) error
	Release(ctx context.Context, id string) error
	ActiveCount(ctx context.Context) (int, error)
	List(ctx context.Context) ([]*models.Machine, error)
	FindByID(ctx context.Context, id string) (*models.Machine, error)
}

// SnapshotRepository is the durable store for MachineSnapshot rows.
type SnapshotRepository interface {
	InsertCaptured(ctx context.Context, s *models.MachineSnapshot) error
	InsertCarryover(ctx context.Context, s *models.MachineSnapshot) error
	FindLatestByMachineID(ctx context.Context, machineID string) (*models.MachineSnapshot, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.MachineSnapshot, error)
	// RefCount returns how many rows reference r2Key, used to delay blob
	// deletion until the last referencing row expires.
	RefCount(ctx context.Context, r2Key string) (int, error)
	Delete(ctx context.Context, id string) error
}

// UsageCheckResult is returned by UsageRepository.CheckAndIncrement.
type UsageCheckResult struct {
	Allowed      bool
	LimitType    models.LimitType
	Current      int
	Max          int
	ResourceType models.ResourceKind
	IsMonthlyLimit bool
}

// UsageRepository is the durable store for UsageRecord rows and implements
// the monthly counter half of QuotaGuard.
type UsageRepository interface {
	CheckAndIncrement(ctx context.Context, userID string, resource models.ResourceKind, max int) (*UsageCheckResult, error)
	Decrement(ctx context.Context, userID string, resource models.ResourceKind) error
}

// UsageIPRepository is the durable store for the per-IP sliding window
//.
type UsageIPRepository interface {
	Check(ctx context.Context, ip string, resource models.ResourceKind, window time.Duration, max int) (*UsageCheckResult, error)
	Record(ctx context.Context, ip string, resource models.ResourceKind, window time.Duration) error
}

// EventRepository is the durable store for AgentEvent rows, the backing
// store of the structured event bus.
type EventRepository interface {
	Insert(ctx context.Context, e *models.AgentEvent) error
	ListSince(ctx context.Context, agentID string, sinceID int64, limit int) ([]*models.AgentEvent, error)
}

// AutomationRepository is the durable store for Automation rows.
type AutomationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Automation, error)
	ListForProject(ctx context.Context, userID, projectID string) ([]*models.Automation, error)
	Insert(ctx context.Context, a *models.Automation) error
}

// EnvironmentRepository is the durable store for EnvironmentBundle rows.
type EnvironmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.EnvironmentBundle, error)
}
