// Package orchestrator implements the controller's agent state machine:
// admission, the PROVISIONING → READY/IDLE/RUNNING → ARCHIVED/ERROR
// lifecycle, fork/resume, and the auto-restore sweep. Grounded on the
// teacher's pkg/services.SessionService (the analogous long-lived-work-item
// lifecycle owner) for structure, and on pkg/services/errors.go for the
// sentinel+typed-error idiom.
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/quota"
)

// Sentinel errors not already modeled by a collaborator package
// (POOL_EXHAUSTED is machinepool.ExhaustedError; QUOTA is QuotaError
// below).
var (
	ErrAgentNotFound         = errors.New("agent not found")
	ErrAgentNotReady         = errors.New("agent not ready")
	ErrNotForkable           = errors.New("agent is not forkable")
	ErrSnapshotMissing       = errors.New("no snapshot available for agent")
	ErrProvisioningFailed    = errors.New("machine provisioning failed")
	ErrSnapshotRestoreFailed = errors.New("snapshot restore failed health probe")
	ErrStartFailed           = errors.New("worker /start failed its retry budget")
	ErrGitFailure            = errors.New("git operation failed")
	ErrAssistantFailure      = errors.New("assistant failure")
	ErrCancelled             = errors.New("cancelled by user")
)

// QuotaError carries the structured detail the UI needs ({limitType, current, max, resourceType,
// isMonthlyLimit}). It is exactly pkg/quota's admission-check error type —
// aliased here so callers needing the orchestrator's documented error
// surface don't also need to import pkg/quota directly.
type QuotaError = quota.Error

// ValidationError reports a bad request shape, unknown trigger, or name
// conflict.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
}

// AuthError reports a missing/invalid credential or wrong agent
// ownership.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }
