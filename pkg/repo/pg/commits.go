package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// CommitRepository is the pgx-backed implementation of repo.CommitRepository.
type CommitRepository struct {
	pool *pgxpool.Pool
}

// NewCommitRepository constructs a CommitRepository.
func NewCommitRepository(pool *pgxpool.Pool) *CommitRepository {
	return &CommitRepository{pool: pool}
}

const commitColumns = `agent_id, sha, message, "timestamp", additions, deletions, pushed, is_reverted`

func scanCommit(row pgx.Row) (*models.AgentCommit, error) {
	var c models.AgentCommit
	if err := row.Scan(&c.AgentID, &c.Sha, &c.Message, &c.Timestamp, &c.Additions, &c.Deletions, &c.Pushed, &c.IsReverted); err != nil {
		return nil, err
	}
	return &c, nil
}

// Insert implements repo.CommitRepository.
func (r *CommitRepository) Insert(ctx context.Context, c *models.AgentCommit) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO agent_commits (`+commitColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (agent_id, sha) DO NOTHING`,
		c.AgentID, c.Sha, c.Message, c.Timestamp, c.Additions, c.Deletions, c.Pushed, c.IsReverted)
	if err != nil {
		return fmt.Errorf("insert commit %s/%s: %w", c.AgentID, c.Sha, err)
	}
	return nil
}

// Update implements repo.CommitRepository, used when push state or revert
// status changes after the commit row already exists.
func (r *CommitRepository) Update(ctx context.Context, c *models.AgentCommit) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE agent_commits SET message = $3, additions = $4, deletions = $5, pushed = $6, is_reverted = $7
		WHERE agent_id = $1 AND sha = $2`,
		c.AgentID, c.Sha, c.Message, c.Additions, c.Deletions, c.Pushed, c.IsReverted)
	if err != nil {
		return fmt.Errorf("update commit %s/%s: %w", c.AgentID, c.Sha, err)
	}
	return nil
}

// List implements repo.CommitRepository, newest first.
func (r *CommitRepository) List(ctx context.Context, agentID string) ([]*models.AgentCommit, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+commitColumns+` FROM agent_commits WHERE agent_id = $1 ORDER BY "timestamp" DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list commits for %s: %w", agentID, err)
	}
	defer rows.Close()
	var out []*models.AgentCommit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
