// Package machineprovider abstracts the cloud VM API MachinePool
// provisions against, grounded on the request/result/interface shape of a
// Kubernetes-backed agent-node provisioner.
package machineprovider

import (
	"context"
	"time"
)

// CreateRequest describes a VM MachinePool wants reserved.
type CreateRequest struct {
	MachineID string
	Region    string
	Image     string
	Labels    map[string]string
}

// CreateResult is the outcome of a successful Create call.
type CreateResult struct {
	MachineID string
	IPv4      string
	URL       string
	CreatedAt time.Time
}

// ImageCaptureResult is the outcome of CaptureImage: either a single blob
// key or, for large filesystems, a chunk-prefix key.
type ImageCaptureResult struct {
	// Key is the blob key. A trailing slash means ChunkCount chunks were
	// uploaded under this prefix; otherwise it names a single object.
	Key        string
	SizeBytes  int64
	ChunkCount int
}

// Provider is the MachineProvider contract. Implementations talk to a real
// cloud API (EC2, GCP, DigitalOcean, Proxmox, ...); the controller depends
// only on this interface.
type Provider interface {
	// Create provisions a new VM and returns once it is reachable.
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	// Destroy tears down a VM. Idempotent: destroying an unknown machine id
	// is not an error.
	Destroy(ctx context.Context, machineID string) error
	// CaptureImage asks the VM to produce a filesystem image of itself,
	// uploading it (chunked if large) to the blob store and returning the
	// resulting key.
	CaptureImage(ctx context.Context, machineID string) (*ImageCaptureResult, error)
	// RestoreImage asks machineID to fetch and apply the image at key.
	RestoreImage(ctx context.Context, machineID, key string) error
}
