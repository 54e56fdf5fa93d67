package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// SnapshotRepository is the pgx-backed implementation of repo.SnapshotRepository.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository constructs a SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

const snapshotColumns = `id, machine_id, r2_key, size_bytes, created_at, expires_at, source`

func scanSnapshot(row pgx.Row) (*models.MachineSnapshot, error) {
	var s models.MachineSnapshot
	if err := row.Scan(&s.ID, &s.MachineID, &s.R2Key, &s.SizeBytes, &s.CreatedAt, &s.ExpiresAt, &s.Source); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SnapshotRepository) insert(ctx context.Context, s *models.MachineSnapshot) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO machine_snapshots (`+snapshotColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.MachineID, s.R2Key, s.SizeBytes, s.CreatedAt, s.ExpiresAt, s.Source)
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", s.ID, err)
	}
	return nil
}

// InsertCaptured implements repo.SnapshotRepository for a freshly captured
// image.
func (r *SnapshotRepository) InsertCaptured(ctx context.Context, s *models.MachineSnapshot) error {
	s.Source = models.SnapshotSourceCaptured
	return r.insert(ctx, s)
}

// InsertCarryover implements repo.SnapshotRepository: a new row referencing
// an existing blob, created when a forked agent needs a snapshot row of its
// own without re-uploading bytes.
func (r *SnapshotRepository) InsertCarryover(ctx context.Context, s *models.MachineSnapshot) error {
	s.Source = models.SnapshotSourceCarriedOver
	return r.insert(ctx, s)
}

// FindLatestByMachineID implements repo.SnapshotRepository.
func (r *SnapshotRepository) FindLatestByMachineID(ctx context.Context, machineID string) (*models.MachineSnapshot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+snapshotColumns+` FROM machine_snapshots
		WHERE machine_id = $1 ORDER BY created_at DESC LIMIT 1`, machineID)
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("find latest snapshot for %s: %w", machineID, err)
	}
	return s, nil
}

// ListExpired implements repo.SnapshotRepository, backing the retention GC
// sweep.
func (r *SnapshotRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.MachineSnapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+snapshotColumns+` FROM machine_snapshots WHERE expires_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired snapshots: %w", err)
	}
	defer rows.Close()
	var out []*models.MachineSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RefCount implements repo.SnapshotRepository: counts rows pointing at the
// same blob so the GC sweep only deletes the object once the last
// referencing row itself expires.
func (r *SnapshotRepository) RefCount(ctx context.Context, r2Key string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM machine_snapshots WHERE r2_key = $1`, r2Key).Scan(&n); err != nil {
		return 0, fmt.Errorf("ref count for %s: %w", r2Key, err)
	}
	return n, nil
}

// Delete implements repo.SnapshotRepository.
func (r *SnapshotRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM machine_snapshots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
