// Package snapshot implements SnapshotService: capture, restore
// manifest resolution, retention GC, and carryover rows for machine
// filesystem images stored in BlobStore.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/blobstore"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/machineprovider"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// DefaultRetention is the default expiresAt window for a captured snapshot
//.
const DefaultRetention = 14 * 24 * time.Hour

// presignTTL bounds how long a restore manifest's URLs stay valid, matching
// the orchestrator's default 10-minute SnapshotRestoreTimeout for
// /restore-snapshot.
const presignTTL = 10 * time.Minute

// Service is SnapshotService.
type Service struct {
	snapshots repo.SnapshotRepository
	blobs     blobstore.Store
	provider  machineprovider.Provider
	retention time.Duration
}

// NewService constructs a Service.
func NewService(snapshots repo.SnapshotRepository, blobs blobstore.Store, provider machineprovider.Provider) *Service {
	return &Service{snapshots: snapshots, blobs: blobs, provider: provider, retention: DefaultRetention}
}

// Capture triggers MachineProvider to image machineID and records the
// resulting MachineSnapshot row.
func (s *Service) Capture(ctx context.Context, machineID string) (*models.MachineSnapshot, error) {
	result, err := s.provider.CaptureImage(ctx, machineID)
	if err != nil {
		return nil, fmt.Errorf("capture image for %s: %w", machineID, err)
	}

	now := time.Now()
	snap := &models.MachineSnapshot{
		ID:        uuid.NewString(),
		MachineID: machineID,
		R2Key:     result.Key,
		SizeBytes: result.SizeBytes,
		CreatedAt: now,
		ExpiresAt: now.Add(s.retention),
	}
	if err := s.snapshots.InsertCaptured(ctx, snap); err != nil {
		return nil, fmt.Errorf("record captured snapshot: %w", err)
	}
	return snap, nil
}

// RestoreManifest is what the orchestrator POSTs to a target worker's
// /restore-snapshot: one presigned URL for a single-object snapshot, or
// one URL per chunk in restore order for a chunked snapshot
// (lexicographic listing order equals restore order).
type RestoreManifest struct {
	PresignedDownloadURL  string
	PresignedDownloadURLs []string
}

// BuildRestoreManifest resolves machineID's latest snapshot into a
// RestoreManifest the worker can fetch from directly.
func (s *Service) BuildRestoreManifest(ctx context.Context, machineID string) (*models.MachineSnapshot, *RestoreManifest, error) {
	snap, err := s.snapshots.FindLatestByMachineID(ctx, machineID)
	if err != nil {
		return nil, nil, fmt.Errorf("find latest snapshot for %s: %w", machineID, err)
	}

	if !snap.IsChunked() {
		url, err := s.blobs.PresignDownload(snap.R2Key, presignTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("presign download: %w", err)
		}
		return snap, &RestoreManifest{PresignedDownloadURL: url}, nil
	}

	chunks, err := s.blobs.List(snap.R2Key)
	if err != nil {
		return nil, nil, fmt.Errorf("list chunks for %s: %w", snap.R2Key, err)
	}
	urls := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		url, err := s.blobs.PresignDownload(chunk, presignTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("presign chunk %s: %w", chunk, err)
		}
		urls = append(urls, url)
	}
	return snap, &RestoreManifest{PresignedDownloadURLs: urls}, nil
}

// CreateCarriedOverSnapshot creates a new row on targetMachineID pointing
// at an existing blob, never re-uploading bytes.
func (s *Service) CreateCarriedOverSnapshot(ctx context.Context, targetMachineID, r2Key string, sizeBytes int64) (*models.MachineSnapshot, error) {
	now := time.Now()
	snap := &models.MachineSnapshot{
		ID:        uuid.NewString(),
		MachineID: targetMachineID,
		R2Key:     r2Key,
		SizeBytes: sizeBytes,
		CreatedAt: now,
		ExpiresAt: now.Add(s.retention),
	}
	if err := s.snapshots.InsertCarryover(ctx, snap); err != nil {
		return nil, fmt.Errorf("record carryover snapshot: %w", err)
	}
	return snap, nil
}

// RunRetentionSweep deletes every expired snapshot row, and the underlying
// blob only once no row (including carryover rows sharing the key)
// references it.
func (s *Service) RunRetentionSweep(ctx context.Context) (deletedRows, deletedBlobs int, err error) {
	expired, err := s.snapshots.ListExpired(ctx, time.Now())
	if err != nil {
		return 0, 0, fmt.Errorf("list expired snapshots: %w", err)
	}

	for _, snap := range expired {
		if err := s.snapshots.Delete(ctx, snap.ID); err != nil {
			return deletedRows, deletedBlobs, fmt.Errorf("delete snapshot row %s: %w", snap.ID, err)
		}
		deletedRows++

		refs, err := s.snapshots.RefCount(ctx, snap.R2Key)
		if err != nil {
			return deletedRows, deletedBlobs, fmt.Errorf("ref count %s: %w", snap.R2Key, err)
		}
		if refs > 0 {
			continue
		}

		if snap.IsChunked() {
			chunks, err := s.blobs.List(snap.R2Key)
			if err != nil {
				return deletedRows, deletedBlobs, fmt.Errorf("list chunks %s: %w", snap.R2Key, err)
			}
			for _, chunk := range chunks {
				if err := s.blobs.Delete(chunk); err != nil {
					return deletedRows, deletedBlobs, fmt.Errorf("delete chunk %s: %w", chunk, err)
				}
				deletedBlobs++
			}
			continue
		}

		if err := s.blobs.Delete(snap.R2Key); err != nil {
			return deletedRows, deletedBlobs, fmt.Errorf("delete blob %s: %w", snap.R2Key, err)
		}
		deletedBlobs++
	}
	return deletedRows, deletedBlobs, nil
}
