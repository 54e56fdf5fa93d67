package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// PromptRepository is the pgx-backed implementation of repo.PromptRepository.
type PromptRepository struct {
	pool *pgxpool.Pool
}

// NewPromptRepository constructs a PromptRepository.
func NewPromptRepository(pool *pgxpool.Pool) *PromptRepository {
	return &PromptRepository{pool: pool}
}

const promptColumns = `id, agent_id, text, status, created_at`

func scanPrompt(row pgx.Row) (*models.AgentPrompt, error) {
	var p models.AgentPrompt
	if err := row.Scan(&p.ID, &p.AgentID, &p.Text, &p.Status, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Insert implements repo.PromptRepository.
func (r *PromptRepository) Insert(ctx context.Context, p *models.AgentPrompt) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO agent_prompts (`+promptColumns+`) VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.AgentID, p.Text, p.Status, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prompt %s: %w", p.ID, err)
	}
	return nil
}

// List implements repo.PromptRepository, FIFO ordered.
func (r *PromptRepository) List(ctx context.Context, agentID string) ([]*models.AgentPrompt, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+promptColumns+` FROM agent_prompts WHERE agent_id = $1 ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list prompts for %s: %w", agentID, err)
	}
	defer rows.Close()
	var out []*models.AgentPrompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FailActiveForAgent implements repo.PromptRepository: marks every
// queued/active prompt for agentID as failed, so the auto-restore loop does
// not loop forever on a dead agent.
func (r *PromptRepository) FailActiveForAgent(ctx context.Context, agentID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE agent_prompts SET status = $2
		WHERE agent_id = $1 AND status IN ($3, $4)`,
		agentID, models.PromptStatusFailed, models.PromptStatusQueued, models.PromptStatusActive)
	if err != nil {
		return fmt.Errorf("fail prompts for %s: %w", agentID, err)
	}
	return nil
}

// ClaimNext implements repo.PromptRepository using SELECT ... FOR UPDATE
// SKIP LOCKED, to atomically enforce at most one active prompt per
// agent.
func (r *PromptRepository) ClaimNext(ctx context.Context, agentID string) (*models.AgentPrompt, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var alreadyActive int
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM agent_prompts WHERE agent_id = $1 AND status = $2`,
		agentID, models.PromptStatusActive).Scan(&alreadyActive); err != nil {
		return nil, fmt.Errorf("check active prompt: %w", err)
	}
	if alreadyActive > 0 {
		return nil, nil
	}

	row := tx.QueryRow(ctx, `
		SELECT `+promptColumns+` FROM agent_prompts
		WHERE agent_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, agentID, models.PromptStatusQueued)
	p, err := scanPrompt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim next prompt: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE agent_prompts SET status = $2 WHERE id = $1`, p.ID, models.PromptStatusActive); err != nil {
		return nil, fmt.Errorf("mark prompt active: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	p.Status = models.PromptStatusActive
	return p, nil
}

// MarkDone implements repo.PromptRepository.
func (r *PromptRepository) MarkDone(ctx context.Context, promptID string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE agent_prompts SET status = $2 WHERE id = $1`, promptID, models.PromptStatusDone)
	if err != nil {
		return fmt.Errorf("mark prompt done %s: %w", promptID, err)
	}
	if ct.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
