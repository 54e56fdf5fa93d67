// Package cleanup provides data retention and garbage-collection services
// for the controller: hard-deleting long-archived agent rows and removing
// machine snapshots past their TTL.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/blobstore"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/config"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// Service periodically enforces retention policies:
//   - Hard-deletes Agent rows that have been archived past the retention
//     window.
//   - Deletes expired MachineSnapshot rows, and their backing blob once no
//     other row still references it.
//
// All operations are idempotent and safe to run from multiple controller
// replicas.
type Service struct {
	config    config.RetentionConfig
	agents    repo.AgentRepository
	snapshots repo.SnapshotRepository
	blobs     blobstore.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg config.RetentionConfig, agents repo.AgentRepository, snapshots repo.SnapshotRepository, blobs blobstore.Store) *Service {
	return &Service{
		config:    cfg,
		agents:    agents,
		snapshots: snapshots,
		blobs:     blobs,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"agent_retention_days", s.config.AgentRetentionDays,
		"snapshot_ttl", s.config.SnapshotTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.hardDeleteOldArchivedAgents(ctx)
	s.cleanupExpiredSnapshots(ctx)
}

func (s *Service) hardDeleteOldArchivedAgents(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.config.AgentRetentionDays)

	agents, _, err := s.agents.FindMany(ctx, repo.AgentFilters{
		State:          models.AgentStateArchived,
		IncludeDeleted: true,
		Limit:          500,
	})
	if err != nil {
		slog.Error("retention: list archived agents failed", "error", err)
		return
	}

	deleted := 0
	for _, a := range agents {
		if a.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.agents.Delete(ctx, a.ID); err != nil {
			slog.Error("retention: delete agent failed", "agent_id", a.ID, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		slog.Info("retention: hard-deleted archived agents", "count", deleted)
	}
}

func (s *Service) cleanupExpiredSnapshots(ctx context.Context) {
	expired, err := s.snapshots.ListExpired(ctx, time.Now())
	if err != nil {
		slog.Error("retention: list expired snapshots failed", "error", err)
		return
	}

	deleted := 0
	for _, snap := range expired {
		if err := s.snapshots.Delete(ctx, snap.ID); err != nil {
			slog.Error("retention: delete snapshot row failed", "snapshot_id", snap.ID, "error", err)
			continue
		}

		refs, err := s.snapshots.RefCount(ctx, snap.R2Key)
		if err != nil {
			slog.Error("retention: refcount blob failed", "r2_key", snap.R2Key, "error", err)
			continue
		}
		if refs == 0 {
			if err := s.blobs.Delete(snap.R2Key); err != nil {
				slog.Error("retention: delete blob failed", "r2_key", snap.R2Key, "error", err)
			}
		}
		deleted++
	}
	if deleted > 0 {
		slog.Info("retention: deleted expired snapshots", "count", deleted)
	}
}
