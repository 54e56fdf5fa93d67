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

// AutomationRepository is the pgx-backed implementation of repo.AutomationRepository.
type AutomationRepository struct {
	pool *pgxpool.Pool
}

// NewAutomationRepository constructs an AutomationRepository.
func NewAutomationRepository(pool *pgxpool.Pool) *AutomationRepository {
	return &AutomationRepository{pool: pool}
}

const automationColumns = `id, user_id, project_id, name, trigger_type, trigger_payload,
	script_language, script_content, blocking, feed_output, created_at`

func scanAutomation(row pgx.Row) (*models.Automation, error) {
	var a models.Automation
	if err := row.Scan(
		&a.ID, &a.UserID, &a.ProjectID, &a.Name, &a.Trigger.Type, &a.Trigger,
		&a.ScriptLanguage, &a.ScriptContent, &a.Blocking, &a.FeedOutput, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByID implements repo.AutomationRepository.
func (r *AutomationRepository) FindByID(ctx context.Context, id string) (*models.Automation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+automationColumns+` FROM automations WHERE id = $1`, id)
	a, err := scanAutomation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("find automation %s: %w", id, err)
	}
	return a, nil
}

// ListForProject implements repo.AutomationRepository.
func (r *AutomationRepository) ListForProject(ctx context.Context, userID, projectID string) ([]*models.Automation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+automationColumns+` FROM automations
		WHERE user_id = $1 AND project_id = $2
		ORDER BY created_at ASC`, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list automations for %s/%s: %w", userID, projectID, err)
	}
	defer rows.Close()
	var out []*models.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Insert implements repo.AutomationRepository. Validate is the caller's
// responsibility; this layer only persists.
func (r *AutomationRepository) Insert(ctx context.Context, a *models.Automation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO automations (`+automationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.UserID, a.ProjectID, a.Name, a.Trigger.Type, a.Trigger,
		a.ScriptLanguage, a.ScriptContent, a.Blocking, a.FeedOutput, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert automation %s: %w", a.ID, err)
	}
	return nil
}
