package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/database"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/eventpoller"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/machinepool"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/quota"
)

// yamlConfig mirrors agentctl.yaml's on-disk shape. Durations are plain
// strings here (parsed with time.ParseDuration below) since YAML has no
// native duration type.
type yamlConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	MachinePool *struct {
		MaxActiveMachines          int    `yaml:"max_active_machines"`
		ReservationQueueMaxPerUser int    `yaml:"reservation_queue_max_per_user"`
		DefaultRegion              string `yaml:"default_region"`
		DefaultImage               string `yaml:"default_image"`
	} `yaml:"machine_pool"`

	EventPoller *struct {
		IntervalMS     int `yaml:"interval_ms"`
		MaxConcurrency int `yaml:"max_concurrency"`
	} `yaml:"event_poller"`

	Retention *struct {
		AgentRetentionDays int    `yaml:"agent_retention_days"`
		SnapshotTTL        string `yaml:"snapshot_ttl"`
		CleanupInterval    string `yaml:"cleanup_interval"`
	} `yaml:"retention"`

	BlobStore *struct {
		BaseDir   string `yaml:"base_dir"`
		BaseURL   string `yaml:"base_url"`
		SecretEnv string `yaml:"secret_env"`
	} `yaml:"blob_store"`

	PortDomain *struct {
		BaseDomain string `yaml:"base_domain"`
		GatewayURL string `yaml:"gateway_url"`
	} `yaml:"port_domain"`

	Machine *struct {
		Provider string `yaml:"provider"`
		BaseURL  string `yaml:"base_url"`
	} `yaml:"machine"`
}

// Initialize layers in a .env file from configDir (if present) via
// godotenv, loads agentctl.yaml from the same directory, then reads the
// database settings and a LISTEN_ADDR override from the environment.
// Quota settings are not read from the environment: Config.Quota is
// quota.DefaultConfig().
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	_ = ctx

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	raw, err := os.ReadFile(filepath.Join(configDir, "agentctl.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read agentctl.yaml: %w", err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(raw, &y); err != nil {
		return nil, fmt.Errorf("parse agentctl.yaml: %w", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}

	cfg := &Config{
		configDir:   configDir,
		ListenAddr:  firstNonEmpty(y.ListenAddr, ":8080"),
		Database:    dbCfg,
		Quota:       quota.DefaultConfig(),
		MachinePool: machinepool.Config{MaxActiveMachines: 50, DefaultRegion: "us-east-1", DefaultImage: "ariana-worker-base"},
		EventPoller: eventpoller.DefaultConfig(),
		Retention: RetentionConfig{
			AgentRetentionDays: 30,
			SnapshotTTL:        7 * 24 * time.Hour,
			CleanupInterval:    time.Hour,
		},
		BlobStore: BlobStoreConfig{
			BaseDir:   "/var/lib/agentctl/blobs",
			SecretEnv: "BLOBSTORE_SECRET",
		},
		PortDomain: PortDomainConfig{BaseDomain: "agents.local"},
		Machine:    MachineProviderConfig{Provider: "fake"},
	}

	if y.MachinePool != nil {
		if y.MachinePool.MaxActiveMachines > 0 {
			cfg.MachinePool.MaxActiveMachines = y.MachinePool.MaxActiveMachines
		}
		if y.MachinePool.ReservationQueueMaxPerUser > 0 {
			cfg.MachinePool.ReservationQueueMaxPerUser = y.MachinePool.ReservationQueueMaxPerUser
		}
		cfg.MachinePool.DefaultRegion = firstNonEmpty(y.MachinePool.DefaultRegion, cfg.MachinePool.DefaultRegion)
		cfg.MachinePool.DefaultImage = firstNonEmpty(y.MachinePool.DefaultImage, cfg.MachinePool.DefaultImage)
	}

	if y.EventPoller != nil {
		if y.EventPoller.IntervalMS > 0 {
			cfg.EventPoller.Interval = time.Duration(y.EventPoller.IntervalMS) * time.Millisecond
		}
		if y.EventPoller.MaxConcurrency > 0 {
			cfg.EventPoller.MaxConcurrency = y.EventPoller.MaxConcurrency
		}
	}

	if y.Retention != nil {
		if y.Retention.AgentRetentionDays > 0 {
			cfg.Retention.AgentRetentionDays = y.Retention.AgentRetentionDays
		}
		if d, err := time.ParseDuration(y.Retention.SnapshotTTL); err == nil {
			cfg.Retention.SnapshotTTL = d
		}
		if d, err := time.ParseDuration(y.Retention.CleanupInterval); err == nil {
			cfg.Retention.CleanupInterval = d
		}
	}

	if y.BlobStore != nil {
		cfg.BlobStore.BaseDir = firstNonEmpty(y.BlobStore.BaseDir, cfg.BlobStore.BaseDir)
		cfg.BlobStore.BaseURL = firstNonEmpty(y.BlobStore.BaseURL, cfg.BlobStore.BaseURL)
		cfg.BlobStore.SecretEnv = firstNonEmpty(y.BlobStore.SecretEnv, cfg.BlobStore.SecretEnv)
	}

	if y.PortDomain != nil {
		cfg.PortDomain.BaseDomain = firstNonEmpty(y.PortDomain.BaseDomain, cfg.PortDomain.BaseDomain)
		cfg.PortDomain.GatewayURL = firstNonEmpty(y.PortDomain.GatewayURL, cfg.PortDomain.GatewayURL)
	}

	if y.Machine != nil {
		cfg.Machine.Provider = firstNonEmpty(y.Machine.Provider, cfg.Machine.Provider)
		cfg.Machine.BaseURL = firstNonEmpty(y.Machine.BaseURL, cfg.Machine.BaseURL)
	}

	if override := os.Getenv("LISTEN_ADDR"); override != "" {
		cfg.ListenAddr = override
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
