package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// ListAgents lists agents by filter struct, with pagination and
// soft-delete exclusion baked into AgentFilters/FindMany.
func (o *Orchestrator) ListAgents(ctx context.Context, filters repo.AgentFilters) ([]*models.Agent, int, error) {
	agents, total, err := o.agents.FindMany(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("list agents: %w", err)
	}
	return agents, total, nil
}

// GetAgent fetches a single agent by id.
func (o *Orchestrator) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	agent, err := o.agents.FindByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("find agent: %w", err)
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	return agent, nil
}

// Delete soft-deletes the row via a deleted_at column and releases any
// attached machine, rather than issuing a hard row delete.
func (o *Orchestrator) Delete(ctx context.Context, agentID string) error {
	agent, err := o.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if agent.MachineID != nil {
		if err := o.pool.Release(ctx, *agent.MachineID); err != nil {
			slog.Warn("orchestrator: release machine on delete", "agent_id", agentID, "machine_id", *agent.MachineID, "error", err)
		}
	}
	if err := o.agents.Delete(ctx, agentID); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

// HealthStatus is the result of Health: it proxies the worker's /health
// and /claudeState.
type HealthStatus struct {
	Reachable             bool
	IsReady               bool
	HasBlockingAutomation bool
	BlockingAutomationIDs []string
	ContextUsage          *float64
	Error                 string
}

// Health reports an unreachable or errored worker through HealthStatus,
// not a returned error — querying health for a down agent is an expected,
// successful operation.
func (o *Orchestrator) Health(ctx context.Context, agentID string) (*HealthStatus, error) {
	agent, err := o.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.MachineID == nil {
		return &HealthStatus{Reachable: false, Error: "agent has no attached machine"}, nil
	}

	client, err := o.clientFor(agent)
	if err != nil {
		return &HealthStatus{Reachable: false, Error: err.Error()}, nil
	}
	if err := client.Health(ctx); err != nil {
		return &HealthStatus{Reachable: false, Error: err.Error()}, nil
	}

	state, err := client.ClaudeState(ctx)
	if err != nil {
		return &HealthStatus{Reachable: true, Error: err.Error()}, nil
	}

	return &HealthStatus{
		Reachable:             true,
		IsReady:               state.IsReady,
		HasBlockingAutomation: state.HasBlockingAutomation,
		BlockingAutomationIDs: state.BlockingAutomationIDs,
		ContextUsage:          state.ContextUsage,
	}, nil
}
