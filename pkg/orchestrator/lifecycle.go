package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// awaitTransition polls an agent until it leaves a transitional state: the
// later of two concurrent callers waits and returns the same result. The
// database is the single source of truth across replicas, so polling it
// is sufficient without an in-process registry.
func (o *Orchestrator) awaitTransition(ctx context.Context, agentID string) (*models.Agent, error) {
	deadline := time.Now().Add(o.cfg.RaceGuardMaxWait)
	for {
		agent, err := o.agents.FindByID(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("find agent: %w", err)
		}
		if agent == nil {
			return nil, ErrAgentNotFound
		}
		if !agent.State.IsTransitional() {
			return agent, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: agent %s still transitional after %s", ErrAgentNotReady, agentID, o.cfg.RaceGuardMaxWait)
		}
		if err := sleep(ctx, o.cfg.RaceGuardPollInterval); err != nil {
			return nil, err
		}
	}
}

// sleep waits for d or ctx cancellation, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
