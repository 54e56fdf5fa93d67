package models

import "time"

// UsageRecord tracks a single user's per-month resource counters.
type UsageRecord struct {
	UserID            string
	ProjectsTotal     int
	AgentsThisMonth   int
	AgentsMonthResetAt time.Time
}

// UsageIPWindow is one sliding-window bucket for a per-IP resource counter
//.
type UsageIPWindow struct {
	IP          string
	Resource    string
	WindowStart time.Time
	Count       int
}

// ResourceKind names a quota-tracked resource type.
type ResourceKind string

// Resource kinds tracked by QuotaGuard.
const (
	ResourceAgent ResourceKind = "agent"
)

// LimitType names which sliding window or counter a quota check failed on
//.
type LimitType string

// Limit types.
const (
	LimitTypeMinute  LimitType = "minute"
	LimitTypeHour    LimitType = "hour"
	LimitTypeDay     LimitType = "day"
	LimitTypeMonth   LimitType = "month"
)

// AgentEvent is an append-only row in the structured event bus: every
// transient/terminal agent failure and state transition is recorded here
// so subscribers (the UI and any other WebSocket client) can replay history even if they were
// not connected when the event fired.
type AgentEvent struct {
	ID        int64
	AgentID   string
	Kind      string
	Payload   map[string]any
	CreatedAt time.Time
}

// AutomationRun is one execution record for a triggered automation (spec
// §4.5 "lifecycle tracking"), durable across worker restarts.
type AutomationRun struct {
	ID           string
	AutomationID string
	AgentID      string
	TriggeredBy  string
	StartedAt    time.Time
	FinishedAt   *time.Time
	ExitCode     *int
	OutputRingSnapshot string
	IsStartTruncated   bool
	KilledByUser       bool
}
