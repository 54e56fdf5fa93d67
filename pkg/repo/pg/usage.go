package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// UsageRepository is the pgx-backed implementation of repo.UsageRepository,
// the monthly-per-user half of QuotaGuard.
type UsageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository constructs a UsageRepository.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// CheckAndIncrement implements repo.UsageRepository. The row is created
// lazily on first use and the monthly counter rolls over once
// agents_month_reset_at has passed.
func (r *UsageRepository) CheckAndIncrement(ctx context.Context, userID string, resource models.ResourceKind, max int) (*repo.UsageCheckResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO usage_records (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("ensure usage row: %w", err)
	}

	var projectsTotal, agentsThisMonth int
	var resetAt time.Time
	if err := tx.QueryRow(ctx, `
		SELECT projects_total, agents_this_month, agents_month_reset_at
		FROM usage_records WHERE user_id = $1 FOR UPDATE`, userID).Scan(&projectsTotal, &agentsThisMonth, &resetAt); err != nil {
		return nil, fmt.Errorf("load usage row: %w", err)
	}

	now := time.Now()
	if now.After(resetAt.AddDate(0, 1, 0)) {
		agentsThisMonth = 0
		resetAt = now
	}

	result := &repo.UsageCheckResult{
		LimitType:      models.LimitTypeMonth,
		Current:        agentsThisMonth,
		Max:            max,
		ResourceType:   resource,
		IsMonthlyLimit: true,
	}

	if agentsThisMonth >= max {
		result.Allowed = false
		if _, err := tx.Exec(ctx, `
			UPDATE usage_records SET agents_this_month = $2, agents_month_reset_at = $3 WHERE user_id = $1`,
			userID, agentsThisMonth, resetAt); err != nil {
			return nil, fmt.Errorf("persist usage rollover: %w", err)
		}
		return result, tx.Commit(ctx)
	}

	agentsThisMonth++
	result.Allowed = true
	result.Current = agentsThisMonth
	if _, err := tx.Exec(ctx, `
		UPDATE usage_records SET agents_this_month = $2, agents_month_reset_at = $3 WHERE user_id = $1`,
		userID, agentsThisMonth, resetAt); err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}
	return result, tx.Commit(ctx)
}

// Decrement implements repo.UsageRepository, used to release a reservation
// when agent creation fails after the quota check succeeded.
func (r *UsageRepository) Decrement(ctx context.Context, userID string, resource models.ResourceKind) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE usage_records SET agents_this_month = GREATEST(agents_this_month - 1, 0) WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("decrement usage for %s: %w", userID, err)
	}
	return nil
}
