package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// MessageRepository is the pgx-backed implementation of repo.MessageRepository.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository constructs a MessageRepository.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageColumns = `id, agent_id, prompt_id, api_message_id, role, content, is_streaming, created_at, updated_at`

func scanMessage(row pgx.Row) (*models.AgentMessage, error) {
	var m models.AgentMessage
	if err := row.Scan(&m.ID, &m.AgentID, &m.PromptID, &m.APIMessageID, &m.Role, &m.Content, &m.IsStreaming, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// BulkInsert implements repo.MessageRepository. Dedup-on-update for an
// existing (agent_id, api_message_id) pair is handled with an upsert,
// matching the AssistantSession dedup-by-API-id rule.
func (r *MessageRepository) BulkInsert(ctx context.Context, msgs []*models.AgentMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(`
			INSERT INTO agent_messages (`+messageColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (agent_id, api_message_id) DO UPDATE SET
				content = EXCLUDED.content,
				is_streaming = EXCLUDED.is_streaming,
				updated_at = EXCLUDED.updated_at`,
			m.ID, m.AgentID, m.PromptID, m.APIMessageID, m.Role, m.Content, m.IsStreaming, m.CreatedAt, m.UpdatedAt)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range msgs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("bulk insert messages: %w", err)
		}
	}
	return nil
}

// List implements repo.MessageRepository, append order.
func (r *MessageRepository) List(ctx context.Context, agentID string) ([]*models.AgentMessage, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+messageColumns+` FROM agent_messages WHERE agent_id = $1 ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", agentID, err)
	}
	defer rows.Close()
	var out []*models.AgentMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CopyWithMapping implements repo.MessageRepository: used
// by the fresh-agent fork path to duplicate the source conversation onto the
// target agent, rewriting prompt ids via promptIDMap.
func (r *MessageRepository) CopyWithMapping(ctx context.Context, sourceAgentID, targetAgentID string, promptIDMap map[string]string) error {
	source, err := r.List(ctx, sourceAgentID)
	if err != nil {
		return fmt.Errorf("load source messages: %w", err)
	}
	if len(source) == 0 {
		return nil
	}

	copies := make([]*models.AgentMessage, 0, len(source))
	for _, m := range source {
		cp := *m
		cp.ID = newMessageCopyID(m.ID, targetAgentID)
		cp.AgentID = targetAgentID
		if m.PromptID != nil {
			if mapped, ok := promptIDMap[*m.PromptID]; ok {
				cp.PromptID = &mapped
			}
		}
		copies = append(copies, &cp)
	}
	return r.BulkInsert(ctx, copies)
}

// newMessageCopyID derives a deterministic copy id so CopyWithMapping is
// idempotent under retry (same source+target always produces the same ids,
// so a re-run upserts in place instead of duplicating rows).
func newMessageCopyID(sourceID, targetAgentID string) string {
	return targetAgentID + ":" + sourceID
}
