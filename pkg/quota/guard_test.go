package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

type fakeUsageRepo struct {
	agentsThisMonth int
}

func (f *fakeUsageRepo) CheckAndIncrement(ctx context.Context, userID string, resource models.ResourceKind, max int) (*repo.UsageCheckResult, error) {
	if f.agentsThisMonth >= max {
		return &repo.UsageCheckResult{Allowed: false, LimitType: models.LimitTypeMonth, Current: f.agentsThisMonth, Max: max, ResourceType: resource, IsMonthlyLimit: true}, nil
	}
	f.agentsThisMonth++
	return &repo.UsageCheckResult{Allowed: true, LimitType: models.LimitTypeMonth, Current: f.agentsThisMonth, Max: max, ResourceType: resource, IsMonthlyLimit: true}, nil
}

func (f *fakeUsageRepo) Decrement(ctx context.Context, userID string, resource models.ResourceKind) error {
	if f.agentsThisMonth > 0 {
		f.agentsThisMonth--
	}
	return nil
}

type fakeUsageIPRepo struct {
	counts map[string]int
}

func newFakeUsageIPRepo() *fakeUsageIPRepo {
	return &fakeUsageIPRepo{counts: make(map[string]int)}
}

func (f *fakeUsageIPRepo) Check(ctx context.Context, ip string, resource models.ResourceKind, window time.Duration, max int) (*repo.UsageCheckResult, error) {
	key := ip + string(resource) + window.String()
	// Label the window the way pg.UsageIPRepository does.
	limitType := models.LimitTypeMonth
	switch {
	case window <= time.Minute:
		limitType = models.LimitTypeMinute
	case window <= time.Hour:
		limitType = models.LimitTypeHour
	case window <= 24*time.Hour:
		limitType = models.LimitTypeDay
	}
	return &repo.UsageCheckResult{Allowed: f.counts[key] < max, LimitType: limitType, Current: f.counts[key], Max: max, ResourceType: resource}, nil
}

func (f *fakeUsageIPRepo) Record(ctx context.Context, ip string, resource models.ResourceKind, window time.Duration) error {
	key := ip + string(resource) + window.String()
	f.counts[key]++
	return nil
}

func TestGuardAdmitAllowsWithinLimits(t *testing.T) {
	g := NewGuard(Config{
		IPWindows:            []WindowLimit{{Window: time.Minute, Max: 2}},
		MonthlyAgentsPerUser: 5,
	}, &fakeUsageRepo{}, newFakeUsageIPRepo())

	require.NoError(t, g.Admit(context.Background(), "user-1", "1.2.3.4", false))
	require.NoError(t, g.Admit(context.Background(), "user-1", "1.2.3.4", false))
}

func TestGuardAdmitRejectsOverIPWindow(t *testing.T) {
	g := NewGuard(Config{
		IPWindows:            []WindowLimit{{Window: time.Minute, Max: 1}},
		MonthlyAgentsPerUser: 5,
	}, &fakeUsageRepo{}, newFakeUsageIPRepo())

	require.NoError(t, g.Admit(context.Background(), "user-1", "1.2.3.4", false))

	err := g.Admit(context.Background(), "user-1", "1.2.3.4", false)
	require.Error(t, err)
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, models.LimitTypeMinute, qerr.LimitType)
	assert.False(t, qerr.IsMonthlyLimit)
}

func TestGuardAdmitRejectsOverMonthlyLimit(t *testing.T) {
	usage := &fakeUsageRepo{agentsThisMonth: 5}
	g := NewGuard(Config{
		IPWindows:            []WindowLimit{{Window: time.Minute, Max: 100}},
		MonthlyAgentsPerUser: 5,
	}, usage, newFakeUsageIPRepo())

	err := g.Admit(context.Background(), "user-1", "1.2.3.4", false)
	require.Error(t, err)
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	assert.True(t, qerr.IsMonthlyLimit)
}

func TestGuardAdmitSkipsMonthlyForAutoRestore(t *testing.T) {
	usage := &fakeUsageRepo{agentsThisMonth: 5}
	g := NewGuard(Config{
		IPWindows:            []WindowLimit{{Window: time.Minute, Max: 100}},
		MonthlyAgentsPerUser: 5,
	}, usage, newFakeUsageIPRepo())

	require.NoError(t, g.Admit(context.Background(), "user-1", "1.2.3.4", true))
	assert.Equal(t, 5, usage.agentsThisMonth)
}

func TestGuardReleaseDecrementsMonthlyCounter(t *testing.T) {
	usage := &fakeUsageRepo{agentsThisMonth: 3}
	g := NewGuard(Config{MonthlyAgentsPerUser: 5}, usage, newFakeUsageIPRepo())

	require.NoError(t, g.Release(context.Background(), "user-1"))
	assert.Equal(t, 2, usage.agentsThisMonth)
}
