package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// UsageIPRepository is the pgx-backed implementation of repo.UsageIPRepository,
// the per-IP sliding-window half of QuotaGuard.
type UsageIPRepository struct {
	pool *pgxpool.Pool
}

// NewUsageIPRepository constructs a UsageIPRepository.
func NewUsageIPRepository(pool *pgxpool.Pool) *UsageIPRepository {
	return &UsageIPRepository{pool: pool}
}

// windowStart floors t to the start of the window boundary containing it, so
// repeated calls within the same window land on the same bucket row.
func windowStart(t time.Time, window time.Duration) time.Time {
	return t.Truncate(window)
}

// Check implements repo.UsageIPRepository: sums counts across every window
// bucket touching [now-window, now], without mutating state.
func (r *UsageIPRepository) Check(ctx context.Context, ip string, resource models.ResourceKind, window time.Duration, max int) (*repo.UsageCheckResult, error) {
	now := time.Now()
	cutoff := now.Add(-window)

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(sum(count), 0) FROM usage_ip_windows
		WHERE ip = $1 AND resource = $2 AND window_start >= $3`,
		ip, string(resource), cutoff).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("check ip window for %s: %w", ip, err)
	}

	return &repo.UsageCheckResult{
		Allowed:      total < max,
		LimitType:    windowLimitType(window),
		Current:      total,
		Max:          max,
		ResourceType: resource,
	}, nil
}

// Record implements repo.UsageIPRepository: increments the current window's
// bucket, creating it if this is the window's first hit.
func (r *UsageIPRepository) Record(ctx context.Context, ip string, resource models.ResourceKind, window time.Duration) error {
	start := windowStart(time.Now(), window)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO usage_ip_windows (ip, resource, window_start, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (ip, resource, window_start) DO UPDATE SET count = usage_ip_windows.count + 1`,
		ip, string(resource), start)
	if err != nil {
		return fmt.Errorf("record ip window for %s: %w", ip, err)
	}
	return nil
}

func windowLimitType(window time.Duration) models.LimitType {
	switch {
	case window <= time.Minute:
		return models.LimitTypeMinute
	case window <= time.Hour:
		return models.LimitTypeHour
	case window <= 24*time.Hour:
		return models.LimitTypeDay
	default:
		return models.LimitTypeMonth
	}
}
