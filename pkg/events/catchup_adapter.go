package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// EventRepositoryAdapter wraps a repo.EventRepository to implement
// CatchupQuerier. channel is expected to be an agent channel in the
// "agent:<agentID>" form produced by AgentChannel — catchup on
// GlobalAgentsChannel is not supported since that channel carries
// transient summaries only.
type EventRepositoryAdapter struct {
	events repo.EventRepository
}

// NewEventRepositoryAdapter creates a CatchupQuerier backed by events.
func NewEventRepositoryAdapter(events repo.EventRepository) *EventRepositoryAdapter {
	return &EventRepositoryAdapter{events: events}
}

// GetCatchupEvents queries AgentEvent rows since sinceID up to limit.
func (a *EventRepositoryAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error) {
	agentID := strings.TrimPrefix(channel, "agent:")
	if agentID == channel {
		return nil, fmt.Errorf("catchup: channel %q is not an agent channel", channel)
	}

	rows, err := a.events.ListSince(ctx, agentID, int64(sinceID), limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, len(rows))
	for i, row := range rows {
		payload := row.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		// re-marshal/unmarshal normalizes any non-JSON-native values (e.g. the
		// pgx JSONB codec may hand back time.Time for timestamp fields) so
		// handleCatchup's later json.Marshal of this map never fails.
		normalized, err := normalizePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("normalize payload for event %d: %w", row.ID, err)
		}
		result[i] = CatchupEvent{ID: int(row.ID), Payload: normalized}
	}
	return result, nil
}

func normalizePayload(payload map[string]any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
