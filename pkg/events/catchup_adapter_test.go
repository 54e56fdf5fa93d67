package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// fakeEventRepository implements repo.EventRepository for testing the adapter.
type fakeEventRepository struct {
	rows []*models.AgentEvent
	err  error
}

func (f *fakeEventRepository) Insert(ctx context.Context, e *models.AgentEvent) error {
	f.rows = append(f.rows, e)
	return nil
}

func (f *fakeEventRepository) ListSince(ctx context.Context, agentID string, sinceID int64, limit int) ([]*models.AgentEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.AgentEvent
	for _, r := range f.rows {
		if r.AgentID == agentID && r.ID > sinceID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestEventRepositoryAdapterGetCatchupEvents(t *testing.T) {
	repo := &fakeEventRepository{
		rows: []*models.AgentEvent{
			{ID: 10, AgentID: "agent-1", Payload: map[string]any{"type": KindStateChanged, "seq": float64(1)}},
			{ID: 20, AgentID: "agent-1", Payload: map[string]any{"type": KindStreamDelta, "seq": float64(2)}},
		},
	}

	adapter := NewEventRepositoryAdapter(repo)
	events, err := adapter.GetCatchupEvents(context.Background(), AgentChannel("agent-1"), 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, 10, events[0].ID)
	assert.Equal(t, 20, events[1].ID)
	assert.Equal(t, KindStateChanged, events[0].Payload["type"])
	assert.Equal(t, float64(1), events[0].Payload["seq"])
}

func TestEventRepositoryAdapterGetCatchupEventsWithLimit(t *testing.T) {
	repo := &fakeEventRepository{
		rows: []*models.AgentEvent{
			{ID: 1, AgentID: "agent-1", Payload: map[string]any{"seq": float64(1)}},
			{ID: 2, AgentID: "agent-1", Payload: map[string]any{"seq": float64(2)}},
			{ID: 3, AgentID: "agent-1", Payload: map[string]any{"seq": float64(3)}},
		},
	}

	adapter := NewEventRepositoryAdapter(repo)
	events, err := adapter.GetCatchupEvents(context.Background(), AgentChannel("agent-1"), 0, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 1, events[0].ID)
	assert.Equal(t, 2, events[1].ID)
}

func TestEventRepositoryAdapterGetCatchupEventsError(t *testing.T) {
	repo := &fakeEventRepository{err: errors.New("database connection lost")}

	adapter := NewEventRepositoryAdapter(repo)
	events, err := adapter.GetCatchupEvents(context.Background(), AgentChannel("agent-1"), 0, 10)
	assert.Error(t, err)
	assert.Nil(t, events)
	assert.Contains(t, err.Error(), "database connection lost")
}

func TestEventRepositoryAdapterGetCatchupEventsEmpty(t *testing.T) {
	adapter := NewEventRepositoryAdapter(&fakeEventRepository{})
	events, err := adapter.GetCatchupEvents(context.Background(), AgentChannel("agent-1"), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventRepositoryAdapterRejectsNonAgentChannel(t *testing.T) {
	adapter := NewEventRepositoryAdapter(&fakeEventRepository{})
	events, err := adapter.GetCatchupEvents(context.Background(), GlobalAgentsChannel, 0, 10)
	assert.Error(t, err)
	assert.Nil(t, events)
}
