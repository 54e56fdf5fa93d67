package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/events"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// Archive captures a final snapshot best-effort, releases the machine,
// and moves the agent to ARCHIVED. Already archived agents (MachineID
// nil) are a no-op.
func (o *Orchestrator) Archive(ctx context.Context, agentID string) error {
	agent, err := o.agents.FindByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("find agent: %w", err)
	}
	if agent == nil {
		return ErrAgentNotFound
	}
	if agent.MachineID == nil {
		return nil
	}

	machineID := *agent.MachineID
	fromState := agent.State

	captureCtx, cancel := context.WithTimeout(ctx, o.cfg.ArchiveSnapshotTimeout)
	_, err = o.snap.Capture(captureCtx, machineID)
	cancel()
	if err != nil {
		slog.Warn("orchestrator: final snapshot capture failed, archiving anyway", "agent_id", agentID, "machine_id", machineID, "error", err)
	}

	if err := o.pool.Release(ctx, machineID); err != nil {
		return fmt.Errorf("release machine %s: %w", machineID, err)
	}

	agent.LastMachineID = &machineID
	agent.MachineID = nil
	agent.State = models.AgentStateArchived
	agent.IsRunning = false
	agent.IsReady = false
	agent.UpdatedAt = time.Now()
	if err := o.agents.Update(ctx, agent); err != nil {
		return fmt.Errorf("update agent to ARCHIVED: %w", err)
	}

	if o.publisher != nil {
		if pubErr := o.publisher.PublishStateChanged(ctx, agent.ID, events.StateChangedPayload{
			BasePayload: events.BasePayload{Type: events.KindStateChanged, AgentID: agent.ID, Timestamp: time.Now().Format(time.RFC3339Nano)},
			FromState:   string(fromState),
			ToState:     string(models.AgentStateArchived),
		}); pubErr != nil {
			slog.Warn("orchestrator: publish state changed event", "agent_id", agent.ID, "error", pubErr)
		}
	}
	return nil
}
