// Package pg implements pkg/repo's interfaces against PostgreSQL via
// pgx/v5, as hand-written SQL (see DESIGN.md for why no generated query
// builder is used here).
package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// AgentRepository is the pgx-backed implementation of repo.AgentRepository.
type AgentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository constructs an AgentRepository.
func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

const agentColumns = `id, user_id, project_id, machine_id, last_machine_id, branch_name,
	base_branch, start_commit_sha, last_commit_sha, last_commit_url, state,
	environment_id, is_running, is_ready, is_trashed, is_template, machine_type,
	error_message, last_auto_restored_at, git_history_last_pushed_commit_sha,
	task_summary, pod_id, created_at, updated_at, deleted_at`

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	if err := row.Scan(
		&a.ID, &a.UserID, &a.ProjectID, &a.MachineID, &a.LastMachineID, &a.BranchName,
		&a.BaseBranch, &a.StartCommitSha, &a.LastCommitSha, &a.LastCommitURL, &a.State,
		&a.EnvironmentID, &a.IsRunning, &a.IsReady, &a.IsTrashed, &a.IsTemplate, &a.MachineType,
		&a.ErrorMessage, &a.LastAutoRestoredAt, &a.GitHistoryLastPushedCommitSha,
		&a.TaskSummary, &a.PodID, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByID implements repo.AgentRepository.
func (r *AgentRepository) FindByID(ctx context.Context, id string) (*models.Agent, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("find agent %s: %w", id, err)
	}
	return a, nil
}

// FindMany implements repo.AgentRepository, building its WHERE clause
// incrementally from whichever filters are set.
func (r *AgentRepository) FindMany(ctx context.Context, f repo.AgentFilters) ([]*models.Agent, int, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != "" {
		where = append(where, "user_id = "+arg(f.UserID))
	}
	if f.ProjectID != "" {
		where = append(where, "project_id = "+arg(f.ProjectID))
	}
	if f.State != "" {
		where = append(where, "state = "+arg(f.State))
	}
	if !f.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT count(*) FROM agents " + whereClause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count agents: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + agentColumns + " FROM agents " + whereClause +
		" ORDER BY created_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// Insert implements repo.AgentRepository.
func (r *AgentRepository) Insert(ctx context.Context, a *models.Agent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
		a.ID, a.UserID, a.ProjectID, a.MachineID, a.LastMachineID, a.BranchName,
		a.BaseBranch, a.StartCommitSha, a.LastCommitSha, a.LastCommitURL, a.State,
		a.EnvironmentID, a.IsRunning, a.IsReady, a.IsTrashed, a.IsTemplate, a.MachineType,
		a.ErrorMessage, a.LastAutoRestoredAt, a.GitHistoryLastPushedCommitSha,
		a.TaskSummary, a.PodID, a.CreatedAt, a.UpdatedAt, a.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agent %s: %w", a.ID, err)
	}
	return nil
}

// Update implements repo.AgentRepository, rewriting every mutable column.
// It takes no row lock, so two callers doing read-modify-write on the same
// agent can overwrite each other's changes.
func (r *AgentRepository) Update(ctx context.Context, a *models.Agent) error {
	a.UpdatedAt = time.Now()
	ct, err := r.pool.Exec(ctx, `
		UPDATE agents SET
			machine_id = $2, last_machine_id = $3, branch_name = $4, base_branch = $5,
			start_commit_sha = $6, last_commit_sha = $7, last_commit_url = $8, state = $9,
			environment_id = $10, is_running = $11, is_ready = $12, is_trashed = $13,
			is_template = $14, machine_type = $15, error_message = $16,
			last_auto_restored_at = $17, git_history_last_pushed_commit_sha = $18,
			task_summary = $19, pod_id = $20, updated_at = $21, deleted_at = $22
		WHERE id = $1`,
		a.ID, a.MachineID, a.LastMachineID, a.BranchName, a.BaseBranch,
		a.StartCommitSha, a.LastCommitSha, a.LastCommitURL, a.State,
		a.EnvironmentID, a.IsRunning, a.IsReady, a.IsTrashed,
		a.IsTemplate, a.MachineType, a.ErrorMessage,
		a.LastAutoRestoredAt, a.GitHistoryLastPushedCommitSha,
		a.TaskSummary, a.PodID, a.UpdatedAt, a.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", a.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// Delete implements repo.AgentRepository as a soft delete, matching the
// teacher's retention-gated deleted_at pattern (ent/schema/alertsession.go).
func (r *AgentRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE agents SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// SetAutoRestoredNow implements repo.AgentRepository.
func (r *AgentRepository) SetAutoRestoredNow(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE agents SET last_auto_restored_at = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("set auto restored at %s: %w", id, err)
	}
	return nil
}

// FindErrorAgentsCreatedSince implements repo.AgentRepository, backing the
// auto-restore sweep: one candidate per user per calendar day,
// gated by LastAutoRestoredAt, is selected by the caller, not here.
func (r *AgentRepository) FindErrorAgentsCreatedSince(ctx context.Context, since time.Time) ([]*models.Agent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+agentColumns+` FROM agents
		WHERE state = $1 AND created_at >= $2 AND deleted_at IS NULL
		ORDER BY user_id, created_at`, models.AgentStateError, since)
	if err != nil {
		return nil, fmt.Errorf("find error agents: %w", err)
	}
	defer rows.Close()

	var out []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
