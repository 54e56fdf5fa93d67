package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventPublisher publishes agent events for WebSocket delivery. Persistent
// kinds are stored in agent_events then broadcast via NOTIFY in the same
// transaction (pg_notify is transactional — held until COMMIT). Transient
// kinds are broadcast via NOTIFY only.
type EventPublisher struct {
	pool *pgxpool.Pool
}

// NewEventPublisher creates a new EventPublisher.
func NewEventPublisher(pool *pgxpool.Pool) *EventPublisher {
	return &EventPublisher{pool: pool}
}

// --- Typed public methods ---

// PublishStateChanged persists and broadcasts an agent.state_changed event.
func (p *EventPublisher) PublishStateChanged(ctx context.Context, agentID string, payload StateChangedPayload) error {
	return p.publishToAgentAndGlobal(ctx, agentID, KindStateChanged, payload)
}

// PublishMessageAppended persists and broadcasts an agent.message_appended event.
func (p *EventPublisher) PublishMessageAppended(ctx context.Context, agentID string, payload MessageAppendedPayload) error {
	return p.publish(ctx, agentID, KindMessageAppended, payload)
}

// PublishCommitRecorded persists and broadcasts an agent.commit_recorded event.
func (p *EventPublisher) PublishCommitRecorded(ctx context.Context, agentID string, payload CommitRecordedPayload) error {
	return p.publish(ctx, agentID, KindCommitRecorded, payload)
}

// PublishFailure persists and broadcasts one of the fatal-for-agent error
// kinds. payload.ErrorKind names which one (see FailurePayload).
func (p *EventPublisher) PublishFailure(ctx context.Context, agentID, kind string, payload FailurePayload) error {
	return p.publishToAgentAndGlobal(ctx, agentID, kind, payload)
}

// PublishAutomationEvent persists and broadcasts an automation lifecycle
// event (automation.started, automation.finished, agent.automation_failure).
func (p *EventPublisher) PublishAutomationEvent(ctx context.Context, agentID, kind string, payload AutomationEventPayload) error {
	return p.publish(ctx, agentID, kind, payload)
}

// PublishStreamDelta broadcasts an agent.stream_delta transient event (no DB
// persistence). Used for high-frequency assistant streaming tokens.
func (p *EventPublisher) PublishStreamDelta(ctx context.Context, agentID string, payload StreamDeltaPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal StreamDeltaPayload: %w", err)
	}
	return p.notifyOnly(ctx, AgentChannel(agentID), payloadJSON)
}

// --- Internal core methods ---

// publish persists payload under kind and broadcasts it on agentID's channel.
func (p *EventPublisher) publish(ctx context.Context, agentID, kind string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return p.persistAndNotify(ctx, agentID, kind, AgentChannel(agentID), payloadJSON)
}

// publishToAgentAndGlobal persists payload on agentID's channel and also
// broadcasts a transient copy to GlobalAgentsChannel (best-effort — if the
// persistent publish fails, the transient one is still attempted), so the
// fleet dashboard sees the update without subscribing to every agent.
func (p *EventPublisher) publishToAgentAndGlobal(ctx context.Context, agentID, kind string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	var firstErr error
	if err := p.persistAndNotify(ctx, agentID, kind, AgentChannel(agentID), payloadJSON); err != nil {
		firstErr = err
	}
	if err := p.notifyOnly(ctx, GlobalAgentsChannel, payloadJSON); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// persistAndNotify persists a pre-marshaled event to agent_events and
// broadcasts it via NOTIFY within a single transaction.
func (p *EventPublisher) persistAndNotify(ctx context.Context, agentID, kind, channel string, payloadJSON []byte) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var eventID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO agent_events (agent_id, kind, payload, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		agentID, kind, payloadJSON, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("persist event: %w", err)
	}

	notifyPayload, err := injectDBEventIDAndTruncate(payloadJSON, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit event transaction: %w", err)
	}
	return nil
}

// notifyOnly broadcasts a pre-marshaled event via NOTIFY without persisting it.
func (p *EventPublisher) notifyOnly(ctx context.Context, channel string, payloadJSON []byte) error {
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// --- Internal helpers ---

// injectDBEventIDAndTruncate adds db_event_id to the JSON payload for NOTIFY
// delivery and applies truncation if the result exceeds PostgreSQL's limit.
func injectDBEventIDAndTruncate(payloadJSON []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = dbEventID

	enriched, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal enriched NOTIFY payload: %w", err)
	}
	return truncateIfNeeded(string(enriched))
}

// truncateIfNeeded returns the payload string as-is if it fits within
// PostgreSQL's 8000-byte NOTIFY limit, otherwise returns a minimal
// truncation envelope with only routing fields.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

// buildTruncatedPayload creates a minimal truncation envelope from the full
// JSON payload bytes, extracting only the routing fields a client needs to
// fetch the complete event from the database.
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type      string `json:"type"`
		AgentID   string `json:"agent_id"`
		DBEventID *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":      routing.Type,
		"agent_id":  routing.AgentID,
		"truncated": true,
	}
	if routing.DBEventID != nil {
		truncated["db_event_id"] = *routing.DBEventID
	}

	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
