// Package config loads the controller's and worker's startup configuration
// from a YAML file plus environment overrides: one umbrella struct
// assembled once at process start and handed by value to the components
// it configures.
package config

import (
	"time"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/database"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/eventpoller"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/machinepool"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/quota"
)

// Config is the controller's full startup configuration, assembled by
// Initialize from agentctl.yaml plus environment variables.
type Config struct {
	configDir string

	ListenAddr string
	Database   database.Config
	Quota      quota.Config
	MachinePool machinepool.Config
	EventPoller eventpoller.Config
	Retention   RetentionConfig
	BlobStore   BlobStoreConfig
	PortDomain  PortDomainConfig
	Machine     MachineProviderConfig
}

// RetentionConfig controls the cleanup service's GC sweeps.
type RetentionConfig struct {
	// AgentRetentionDays is how long an archived agent's row survives
	// before the cleanup service hard-deletes it.
	AgentRetentionDays int
	// SnapshotTTL is read from agentctl.yaml and reported in the cleanup
	// service's startup log; nothing else uses it. Each snapshot's expiry
	// comes from its own ExpiresAt, which pkg/snapshot sets from
	// snapshot.DefaultRetention.
	SnapshotTTL time.Duration
	// CleanupInterval is how often the retention sweep runs.
	CleanupInterval time.Duration
}

// BlobStoreConfig configures the snapshot/artifact blob store.
type BlobStoreConfig struct {
	BaseDir string
	BaseURL string
	// SecretEnv names the environment variable holding the HMAC secret
	// used to sign presigned URLs.
	SecretEnv string
}

// PortDomainConfig configures the per-agent subdomain gateway registry.
type PortDomainConfig struct {
	BaseDomain string
	GatewayURL string
}

// MachineProviderConfig configures the VM provisioning backend.
type MachineProviderConfig struct {
	// Provider selects the backend: "http" talks to a real provisioning
	// API, "fake" is the in-memory provider used for local development
	// and tests.
	Provider string
	BaseURL  string
}

// ConfigDir returns the directory Initialize loaded agentctl.yaml from.
func (c *Config) ConfigDir() string {
	return c.configDir
}
