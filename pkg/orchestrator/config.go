package orchestrator

import "time"

// Config tunes the timing constants governing health probing, start
// retries, snapshot timeouts, and the race guard between concurrent
// fork/resume callers.
type Config struct {
	// HealthProbeAttempts/HealthProbeInterval: poll /health this many
	// times, this far apart.
	HealthProbeAttempts int
	HealthProbeInterval time.Duration

	// StartRetryAttempts/StartRetryBackoff bound retries of the worker's
	// /start call.
	StartRetryAttempts int
	StartRetryBackoff  time.Duration

	// ArchiveSnapshotTimeout bounds the final capture on archive.
	ArchiveSnapshotTimeout time.Duration

	// SnapshotRestoreTimeout bounds /restore-snapshot.
	SnapshotRestoreTimeout time.Duration

	// RaceGuardPollInterval/RaceGuardMaxWait bound how long a concurrent
	// caller waits for a transitional agent to settle.
	RaceGuardPollInterval time.Duration
	RaceGuardMaxWait      time.Duration

	// AutoRestoreLookback bounds the auto-restore sweep to ERROR agents
	// created within this window.
	AutoRestoreLookback time.Duration

	// DefaultRegion is the region every machine reservation requests;
	// CreateRequest carries no region of its own.
	DefaultRegion string
}

// DefaultConfig returns the orchestrator's default timing constants.
func DefaultConfig() Config {
	return Config{
		HealthProbeAttempts:    15,
		HealthProbeInterval:    2 * time.Second,
		StartRetryAttempts:     10,
		StartRetryBackoff:      3 * time.Second,
		ArchiveSnapshotTimeout: 10 * time.Minute,
		SnapshotRestoreTimeout: 10 * time.Minute,
		RaceGuardPollInterval:  500 * time.Millisecond,
		RaceGuardMaxWait:       5 * time.Minute,
		AutoRestoreLookback:    48 * time.Hour,
	}
}
