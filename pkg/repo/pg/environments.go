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

// EnvironmentRepository is the pgx-backed implementation of repo.EnvironmentRepository.
type EnvironmentRepository struct {
	pool *pgxpool.Pool
}

// NewEnvironmentRepository constructs an EnvironmentRepository.
func NewEnvironmentRepository(pool *pgxpool.Pool) *EnvironmentRepository {
	return &EnvironmentRepository{pool: pool}
}

const environmentColumns = `id, project_id, user_id, name, env_contents, secret_files, ssh_key_pair, automation_ids, created_at`

func scanEnvironment(row pgx.Row) (*models.EnvironmentBundle, error) {
	var e models.EnvironmentBundle
	if err := row.Scan(
		&e.ID, &e.ProjectID, &e.UserID, &e.Name, &e.EnvContents,
		&e.SecretFiles, &e.SSHKeyPair, &e.AutomationIDs, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

// FindByID implements repo.EnvironmentRepository.
func (r *EnvironmentRepository) FindByID(ctx context.Context, id string) (*models.EnvironmentBundle, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+environmentColumns+` FROM environment_bundles WHERE id = $1`, id)
	e, err := scanEnvironment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("find environment %s: %w", id, err)
	}
	return e, nil
}

// Insert persists a new environment bundle. Not part of repo.EnvironmentRepository
// (the interface is read-only from the orchestrator's perspective); no
// caller in this module uses it.
func (r *EnvironmentRepository) Insert(ctx context.Context, e *models.EnvironmentBundle) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO environment_bundles (`+environmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.ProjectID, e.UserID, e.Name, e.EnvContents,
		e.SecretFiles, e.SSHKeyPair, e.AutomationIDs, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert environment %s: %w", e.ID, err)
	}
	return nil
}
