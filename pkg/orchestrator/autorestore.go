package orchestrator

import (
	"context"
	"log/slog"
	"time"
)

// RunAutoRestoreSweep gives ERROR agents created within the lookback window
// one resume attempt per user per calendar day, never charged against the
// monthly quota.
func (o *Orchestrator) RunAutoRestoreSweep(ctx context.Context) (restored, failed int) {
	since := time.Now().Add(-o.cfg.AutoRestoreLookback)
	candidates, err := o.agents.FindErrorAgentsCreatedSince(ctx, since)
	if err != nil {
		slog.Error("orchestrator: list auto-restore candidates", "error", err)
		return 0, 0
	}

	restoredToday := make(map[string]bool)
	now := time.Now()
	for _, agent := range candidates {
		if agent.LastAutoRestoredAt != nil && isSameCalendarDay(*agent.LastAutoRestoredAt, now) {
			continue
		}
		if restoredToday[agent.UserID] {
			continue
		}

		_, err := o.resumeOrFork(ctx, agent.ID, ResumeOptions{
			ForceNewAgent: false,
			NewOwnerID:    agent.UserID,
			SkipQuota:     true,
		})
		if err != nil {
			slog.Warn("orchestrator: auto-restore failed", "agent_id", agent.ID, "error", err)
			failed++
			continue
		}

		if err := o.agents.SetAutoRestoredNow(ctx, agent.ID, now); err != nil {
			slog.Error("orchestrator: record auto-restore timestamp", "agent_id", agent.ID, "error", err)
		}
		restoredToday[agent.UserID] = true
		restored++
	}
	return restored, failed
}

// isSameCalendarDay reports whether a and b fall on the same Y-M-D in their
// respective locations, used to cap auto-restore at once per user per day.
func isSameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
