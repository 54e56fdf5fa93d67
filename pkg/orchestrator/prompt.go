package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// SubmitPrompt appends text to agentID's prompt queue. If the agent is
// archived/errored and callerUserID owns it, a resume is triggered first;
// a non-owner caller on a not-yet-ready agent is rejected.
func (o *Orchestrator) SubmitPrompt(ctx context.Context, agentID, callerUserID, text string) error {
	agent, err := o.agents.FindByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("find agent: %w", err)
	}
	if agent == nil {
		return ErrAgentNotFound
	}

	switch {
	case agent.State == models.AgentStateArchived || agent.State == models.AgentStateError:
		if agent.UserID != callerUserID {
			return ErrAgentNotReady
		}
		resumed, err := o.Reboot(ctx, agentID)
		if err != nil {
			return err
		}
		agent = resumed
	case agent.State.IsTransitional():
		agent, err = o.awaitTransition(ctx, agentID)
		if err != nil {
			return err
		}
	}

	if !agent.CanAcceptPrompt() {
		return ErrAgentNotReady
	}

	prompt := &models.AgentPrompt{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Text:      text,
		Status:    models.PromptStatusQueued,
		CreatedAt: time.Now(),
	}
	if err := o.prompts.Insert(ctx, prompt); err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}

	return o.dispatchNextPrompt(ctx, agent)
}

// dispatchNextPrompt claims the oldest queued prompt (at most one active
// per agent) and forwards it to the worker.
func (o *Orchestrator) dispatchNextPrompt(ctx context.Context, agent *models.Agent) error {
	claimed, err := o.prompts.ClaimNext(ctx, agent.ID)
	if err != nil {
		return fmt.Errorf("claim next prompt: %w", err)
	}
	if claimed == nil {
		return nil
	}

	client, err := o.clientFor(agent)
	if err != nil {
		return fmt.Errorf("worker client: %w", err)
	}
	if err := client.Prompt(ctx, claimed.Text); err != nil {
		_ = o.prompts.FailActiveForAgent(ctx, agent.ID)
		return fmt.Errorf("%w: %v", ErrAssistantFailure, err)
	}

	agent.State = models.AgentStateRunning
	agent.IsRunning = true
	return o.agents.Update(ctx, agent)
}

// Interrupt cancels the active prompt: it calls the worker's /interrupt,
// which interrupts the assistant session only (running automations,
// blocking or not, are not stopped), then marks the agent's active prompt
// failed and moves a RUNNING agent to IDLE. Conversation state is preserved.
func (o *Orchestrator) Interrupt(ctx context.Context, agentID string) error {
	agent, err := o.agents.FindByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("find agent: %w", err)
	}
	if agent == nil {
		return ErrAgentNotFound
	}

	client, err := o.clientFor(agent)
	if err != nil {
		return fmt.Errorf("worker client: %w", err)
	}
	if err := client.Interrupt(ctx); err != nil {
		return fmt.Errorf("interrupt worker: %w", err)
	}
	if err := o.prompts.FailActiveForAgent(ctx, agentID); err != nil {
		return fmt.Errorf("fail active prompt: %w", err)
	}

	agent.IsRunning = false
	if agent.State == models.AgentStateRunning {
		agent.State = models.AgentStateIdle
	}
	return o.agents.Update(ctx, agent)
}
