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

// MachineRepository is the pgx-backed implementation of repo.MachineRepository.
type MachineRepository struct {
	pool *pgxpool.Pool
}

// NewMachineRepository constructs a MachineRepository.
func NewMachineRepository(pool *pgxpool.Pool) *MachineRepository {
	return &MachineRepository{pool: pool}
}

const machineColumns = `id, ipv4, url, owner_agent_id, status, provider, region, created_at, last_heartbeat_at`

func scanMachine(row pgx.Row) (*models.Machine, error) {
	var m models.Machine
	if err := row.Scan(&m.ID, &m.IPv4, &m.URL, &m.OwnerAgentID, &m.Status, &m.Provider, &m.Region, &m.CreatedAt, &m.LastHeartbeatAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// Reserve implements repo.MachineRepository: inserts a new reservation row.
func (r *MachineRepository) Reserve(ctx context.Context, m *models.Machine) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO machines (`+machineColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.IPv4, m.URL, m.OwnerAgentID, m.Status, m.Provider, m.Region, m.CreatedAt, m.LastHeartbeatAt)
	if err != nil {
		return fmt.Errorf("reserve machine %s: %w", m.ID, err)
	}
	return nil
}

// Release implements repo.MachineRepository. Idempotent: releasing an
// already-released machine is a no-op.
func (r *MachineRepository) Release(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE machines SET status = $2, owner_agent_id = NULL WHERE id = $1`, id, models.MachineStatusReleased)
	if err != nil {
		return fmt.Errorf("release machine %s: %w", id, err)
	}
	return nil
}

// ActiveCount implements repo.MachineRepository: the pool admission check
//.
func (r *MachineRepository) ActiveCount(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM machines WHERE status IN ($1, $2, $3)`,
		models.MachineStatusReserved, models.MachineStatusActive, models.MachineStatusReleasing).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active machines: %w", err)
	}
	return n, nil
}

// List implements repo.MachineRepository.
func (r *MachineRepository) List(ctx context.Context) ([]*models.Machine, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+machineColumns+` FROM machines ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()
	var out []*models.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan machine: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FindByID implements repo.MachineRepository.
func (r *MachineRepository) FindByID(ctx context.Context, id string) (*models.Machine, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+machineColumns+` FROM machines WHERE id = $1`, id)
	m, err := scanMachine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("find machine %s: %w", id, err)
	}
	return m, nil
}
