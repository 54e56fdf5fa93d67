package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// EventRepository is the pgx-backed implementation of repo.EventRepository,
// the durable backing store of the structured event bus.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func scanEvent(row pgx.Row) (*models.AgentEvent, error) {
	var e models.AgentEvent
	if err := row.Scan(&e.ID, &e.AgentID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// Insert implements repo.EventRepository. Payload is stored as JSONB; pgx
// marshals map[string]any transparently via its JSON codec.
func (r *EventRepository) Insert(ctx context.Context, e *models.AgentEvent) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO agent_events (agent_id, kind, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		e.AgentID, e.Kind, e.Payload).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event for %s: %w", e.AgentID, err)
	}
	return nil
}

// ListSince implements repo.EventRepository, giving subscribers that missed
// live delivery a replay cursor keyed on the monotonic BIGSERIAL id.
func (r *EventRepository) ListSince(ctx context.Context, agentID string, sinceID int64, limit int) ([]*models.AgentEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, agent_id, kind, payload, created_at FROM agent_events
		WHERE agent_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3`, agentID, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", agentID, err)
	}
	defer rows.Close()
	var out []*models.AgentEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
