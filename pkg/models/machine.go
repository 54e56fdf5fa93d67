package models

import "time"

// MachineStatus is the lifecycle position of a pool-reserved VM.
type MachineStatus string

// Machine statuses.
const (
	MachineStatusReserved  MachineStatus = "reserved"
	MachineStatusActive    MachineStatus = "active"
	MachineStatusReleasing MachineStatus = "releasing"
	MachineStatusReleased  MachineStatus = "released"
)

// MachineProviderKind distinguishes the pool's own cloud provisioning from
// a user-supplied ("custom") machine that is never returned to the pool.
type MachineProviderKind string

// Machine provider kinds.
const (
	MachineProviderManagedCloud MachineProviderKind = "managed-cloud"
	MachineProviderCustom       MachineProviderKind = "custom"
)

// Machine is a VM reservation. The MachinePool is the sole mutator.
type Machine struct {
	ID            string
	IPv4          string
	URL           *string
	OwnerAgentID  *string
	Status        MachineStatus
	Provider      MachineProviderKind
	Region        string
	CreatedAt     time.Time
	LastHeartbeatAt *time.Time
}

// SnapshotSource distinguishes a freshly captured snapshot from one that
// merely references another machine's blob.
type SnapshotSource string

// Snapshot sources.
const (
	SnapshotSourceCaptured    SnapshotSource = "captured"
	SnapshotSourceCarriedOver SnapshotSource = "carried-over"
)

// MachineSnapshot is an object-store-backed filesystem image of a worker VM
//. Immutable once created.
type MachineSnapshot struct {
	ID        string
	MachineID string
	R2Key     string // trailing slash => chunked upload
	SizeBytes int64
	CreatedAt time.Time
	ExpiresAt time.Time
	Source    SnapshotSource
}

// IsChunked reports whether R2Key names a chunk prefix rather than a single
// object.
func (s *MachineSnapshot) IsChunked() bool {
	return len(s.R2Key) > 0 && s.R2Key[len(s.R2Key)-1] == '/'
}
