package machineprovider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is an in-memory Provider used by orchestrator and machinepool
// tests in place of a real cloud VM provider.
type Fake struct {
	mu      sync.Mutex
	created map[string]*CreateResult
	images  map[string]string // machineID -> last captured key

	// FailCreate, when set, is returned by Create instead of succeeding.
	FailCreate error
}

// NewFake constructs a Fake.
func NewFake() *Fake {
	return &Fake{created: make(map[string]*CreateResult), images: make(map[string]string)}
}

// Create implements Provider.
func (f *Fake) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate != nil {
		return nil, f.FailCreate
	}
	result := &CreateResult{
		MachineID: req.MachineID,
		IPv4:      "10.0.0.1",
		URL:       "http://" + req.MachineID + ".internal",
		CreatedAt: time.Now(),
	}
	f.created[req.MachineID] = result
	return result, nil
}

// Destroy implements Provider.
func (f *Fake) Destroy(ctx context.Context, machineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.created, machineID)
	return nil
}

// CaptureImage implements Provider, returning a deterministic single-object
// key so tests can assert on it.
func (f *Fake) CaptureImage(ctx context.Context, machineID string) (*ImageCaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("snapshots/%s/fake.img", machineID)
	f.images[machineID] = key
	return &ImageCaptureResult{Key: key, SizeBytes: 1024}, nil
}

// RestoreImage implements Provider.
func (f *Fake) RestoreImage(ctx context.Context, machineID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[machineID] = key
	return nil
}
