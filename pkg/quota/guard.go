package quota

import (
	"context"
	"fmt"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// Guard is QuotaGuard: the orchestrator's admission gate for
// new-agent requests, checked before a machine is reserved from the pool.
type Guard struct {
	cfg     Config
	usage   repo.UsageRepository
	usageIP repo.UsageIPRepository
}

// NewGuard constructs a Guard.
func NewGuard(cfg Config, usage repo.UsageRepository, usageIP repo.UsageIPRepository) *Guard {
	return &Guard{cfg: cfg, usage: usage, usageIP: usageIP}
}

// Admit checks every configured IP sliding window, then the monthly
// per-user counter, recording the IP hit and incrementing the monthly
// counter only if every check passes. skipMonthly is set by the
// auto-restore sweep, which must not charge the user's monthly quota
//.
func (g *Guard) Admit(ctx context.Context, userID, ip string, skipMonthly bool) error {
	for _, w := range g.cfg.IPWindows {
		result, err := g.usageIP.Check(ctx, ip, models.ResourceAgent, w.Window, w.Max)
		if err != nil {
			return fmt.Errorf("check ip window: %w", err)
		}
		if !result.Allowed {
			return &Error{
				LimitType:    result.LimitType,
				Current:      result.Current,
				Max:          result.Max,
				ResourceType: result.ResourceType,
			}
		}
	}

	if !skipMonthly {
		result, err := g.usage.CheckAndIncrement(ctx, userID, models.ResourceAgent, g.cfg.MonthlyAgentsPerUser)
		if err != nil {
			return fmt.Errorf("check monthly quota: %w", err)
		}
		if !result.Allowed {
			return &Error{
				LimitType:      result.LimitType,
				Current:        result.Current,
				Max:            result.Max,
				ResourceType:   result.ResourceType,
				IsMonthlyLimit: result.IsMonthlyLimit,
			}
		}
	}

	for _, w := range g.cfg.IPWindows {
		if err := g.usageIP.Record(ctx, ip, models.ResourceAgent, w.Window); err != nil {
			return fmt.Errorf("record ip window: %w", err)
		}
	}
	return nil
}

// Release reverts the monthly counter increment made by Admit, used when
// agent creation fails after admission succeeded.
func (g *Guard) Release(ctx context.Context, userID string) error {
	return g.usage.Decrement(ctx, userID, models.ResourceAgent)
}
