package snapshot

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/machineprovider"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

type fakeSnapshotRepo struct {
	mu   sync.Mutex
	rows map[string]*models.MachineSnapshot
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{rows: make(map[string]*models.MachineSnapshot)}
}

func (r *fakeSnapshotRepo) InsertCaptured(ctx context.Context, s *models.MachineSnapshot) error {
	s.Source = models.SnapshotSourceCaptured
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.ID] = s
	return nil
}

func (r *fakeSnapshotRepo) InsertCarryover(ctx context.Context, s *models.MachineSnapshot) error {
	s.Source = models.SnapshotSourceCarriedOver
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.ID] = s
	return nil
}

func (r *fakeSnapshotRepo) FindLatestByMachineID(ctx context.Context, machineID string) (*models.MachineSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.MachineSnapshot
	for _, s := range r.rows {
		if s.MachineID != machineID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	return latest, nil
}

func (r *fakeSnapshotRepo) ListExpired(ctx context.Context, now time.Time) ([]*models.MachineSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.MachineSnapshot
	for _, s := range r.rows {
		if !s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSnapshotRepo) RefCount(ctx context.Context, r2Key string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.rows {
		if s.R2Key == r2Key {
			n++
		}
	}
	return n, nil
}

func (r *fakeSnapshotRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string]bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string]bool)}
}

func (b *fakeBlobStore) PresignUpload(key string, ttl time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = true
	return "http://upload/" + key, nil
}

func (b *fakeBlobStore) PresignDownload(key string, ttl time.Duration) (string, error) {
	return "http://download/" + key, nil
}

func (b *fakeBlobStore) List(prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *fakeBlobStore) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func TestServiceCaptureRecordsSingleObjectSnapshot(t *testing.T) {
	snapshots := newFakeSnapshotRepo()
	svc := NewService(snapshots, newFakeBlobStore(), machineprovider.NewFake())

	snap, err := svc.Capture(context.Background(), "m1")
	require.NoError(t, err)
	require.False(t, snap.IsChunked())
	require.Equal(t, models.SnapshotSourceCaptured, snap.Source)
}

func TestBuildRestoreManifestSingleObject(t *testing.T) {
	snapshots := newFakeSnapshotRepo()
	blobs := newFakeBlobStore()
	svc := NewService(snapshots, blobs, machineprovider.NewFake())

	_, err := svc.Capture(context.Background(), "m1")
	require.NoError(t, err)

	_, manifest, err := svc.BuildRestoreManifest(context.Background(), "m1")
	require.NoError(t, err)
	require.NotEmpty(t, manifest.PresignedDownloadURL)
	require.Empty(t, manifest.PresignedDownloadURLs)
}

func TestBuildRestoreManifestChunkedOrdersLexicographically(t *testing.T) {
	snapshots := newFakeSnapshotRepo()
	blobs := newFakeBlobStore()
	svc := NewService(snapshots, blobs, machineprovider.NewFake())

	for _, name := range []string{"000001.part", "000000.part", "000002.part"} {
		_, err := blobs.PresignUpload("snapshots/m1/s1/"+name, time.Minute)
		require.NoError(t, err)
	}
	require.NoError(t, snapshots.InsertCaptured(context.Background(), &models.MachineSnapshot{
		ID: "s1", MachineID: "m1", R2Key: "snapshots/m1/s1/", SizeBytes: 99, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}))

	_, manifest, err := svc.BuildRestoreManifest(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, manifest.PresignedDownloadURLs, 3)
	require.Contains(t, manifest.PresignedDownloadURLs[0], "000000.part")
	require.Contains(t, manifest.PresignedDownloadURLs[2], "000002.part")
}

func TestCreateCarriedOverSnapshotDoesNotDuplicateBlob(t *testing.T) {
	snapshots := newFakeSnapshotRepo()
	blobs := newFakeBlobStore()
	svc := NewService(snapshots, blobs, machineprovider.NewFake())

	source, err := svc.Capture(context.Background(), "m1")
	require.NoError(t, err)

	carryover, err := svc.CreateCarriedOverSnapshot(context.Background(), "m2", source.R2Key, source.SizeBytes)
	require.NoError(t, err)
	require.Equal(t, models.SnapshotSourceCarriedOver, carryover.Source)
	require.Equal(t, source.R2Key, carryover.R2Key)

	refs, err := snapshots.RefCount(context.Background(), source.R2Key)
	require.NoError(t, err)
	require.Equal(t, 2, refs)
}

func TestRunRetentionSweepKeepsBlobWhileAnyRowReferencesIt(t *testing.T) {
	snapshots := newFakeSnapshotRepo()
	blobs := newFakeBlobStore()
	svc := NewService(snapshots, blobs, machineprovider.NewFake())

	source, err := svc.Capture(context.Background(), "m1")
	require.NoError(t, err)
	_, err = blobs.PresignUpload(source.R2Key, time.Minute)
	require.NoError(t, err)

	carryover, err := svc.CreateCarriedOverSnapshot(context.Background(), "m2", source.R2Key, source.SizeBytes)
	require.NoError(t, err)

	snapshots.mu.Lock()
	snapshots.rows[source.ID].ExpiresAt = time.Now().Add(-time.Hour)
	snapshots.mu.Unlock()

	deletedRows, deletedBlobs, err := svc.RunRetentionSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, deletedRows)
	require.Equal(t, 0, deletedBlobs)

	objects, err := blobs.List(source.R2Key)
	require.NoError(t, err)
	require.NotEmpty(t, objects)

	snapshots.mu.Lock()
	snapshots.rows[carryover.ID].ExpiresAt = time.Now().Add(-time.Hour)
	snapshots.mu.Unlock()

	deletedRows, deletedBlobs, err = svc.RunRetentionSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, deletedRows)
	require.Equal(t, 1, deletedBlobs)
}
