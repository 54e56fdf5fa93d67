package orchestrator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/events"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/machinepool"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/workerapi"
)

// ResumeOptions parameterizes resumeOrFork over its two public callers:
// Fork always allocates a fresh agent row; Reboot always reuses the
// source's own row.
type ResumeOptions struct {
	// ForceNewAgent selects fork semantics: a new Agent row owned by
	// NewOwnerID, with history copied from the source.
	ForceNewAgent bool
	NewOwnerID    string
	NewName       *string
	// SkipQuota is set by the auto-restore sweep, which must not charge
	// the user's monthly quota for a resume it initiated.
	SkipQuota bool
	IP        string
}

// Fork creates a new agent, owned by newOwnerID, whose working tree
// starts from sourceAgentID's latest snapshot.
func (o *Orchestrator) Fork(ctx context.Context, sourceAgentID, newOwnerID string, newName *string) (*models.Agent, error) {
	return o.resumeOrFork(ctx, sourceAgentID, ResumeOptions{
		ForceNewAgent: true,
		NewOwnerID:    newOwnerID,
		NewName:       newName,
	})
}

// Reboot restores agentID's own row from its latest snapshot onto a
// freshly reserved machine.
func (o *Orchestrator) Reboot(ctx context.Context, agentID string) (*models.Agent, error) {
	source, err := o.agents.FindByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("find agent: %w", err)
	}
	if source == nil {
		return nil, ErrAgentNotFound
	}
	return o.resumeOrFork(ctx, agentID, ResumeOptions{
		ForceNewAgent: false,
		NewOwnerID:    source.UserID,
	})
}

// resumeOrFork runs the shared fork/resume algorithm: eligibility,
// admission, choosing the target row, provisioning a machine for it, then
// completeResume for the snapshot restore and worker /start dance.
func (o *Orchestrator) resumeOrFork(ctx context.Context, sourceAgentID string, opts ResumeOptions) (*models.Agent, error) {
	source, err := o.agents.FindByID(ctx, sourceAgentID)
	if err != nil {
		return nil, fmt.Errorf("find source agent: %w", err)
	}
	if source == nil {
		return nil, ErrAgentNotFound
	}

	sourceMachineID := source.MachineID
	if sourceMachineID == nil {
		sourceMachineID = source.LastMachineID
	}
	if sourceMachineID == nil {
		return nil, ErrSnapshotMissing
	}

	if source.State.IsTransitional() {
		source, err = o.awaitTransition(ctx, sourceAgentID)
		if err != nil {
			return nil, err
		}
	}

	fresh := opts.ForceNewAgent
	quotaCharged := false
	if fresh && !opts.SkipQuota {
		if err := o.quota.Admit(ctx, opts.NewOwnerID, opts.IP, false); err != nil {
			return nil, err
		}
		quotaCharged = true
	}

	machine, err := o.pool.Reserve(ctx, opts.NewOwnerID, o.cfg.DefaultRegion)
	if err != nil {
		if quotaCharged {
			_ = o.quota.Release(ctx, opts.NewOwnerID)
		}
		var exhausted *machinepool.ExhaustedError
		if errors.As(err, &exhausted) {
			return nil, exhausted
		}
		return nil, fmt.Errorf("reserve machine: %w", err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		_ = o.pool.Release(ctx, machine.ID)
		if quotaCharged {
			_ = o.quota.Release(ctx, opts.NewOwnerID)
		}
		return nil, fmt.Errorf("generate worker secret: %w", err)
	}

	now := time.Now()
	var target *models.Agent
	if fresh {
		target = &models.Agent{
			ID:            uuid.NewString(),
			UserID:        opts.NewOwnerID,
			ProjectID:     source.ProjectID,
			MachineID:     &machine.ID,
			BranchName:    fmt.Sprintf("agent/%s", uuid.NewString()),
			BaseBranch:    source.BaseBranch,
			State:         models.AgentStateProvisioning,
			EnvironmentID: source.EnvironmentID,
			MachineType:   models.MachineTypeManaged,
			WorkerSecret:  secret,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := o.agents.Insert(ctx, target); err != nil {
			_ = o.pool.Release(ctx, machine.ID)
			if quotaCharged {
				_ = o.quota.Release(ctx, opts.NewOwnerID)
			}
			return nil, fmt.Errorf("insert forked agent: %w", err)
		}
	} else {
		target = source
		target.MachineID = &machine.ID
		target.State = models.AgentStateProvisioning
		target.ErrorMessage = nil
		target.WorkerSecret = secret
		target.UpdatedAt = now
		if err := o.agents.Update(ctx, target); err != nil {
			_ = o.pool.Release(ctx, machine.ID)
			return nil, fmt.Errorf("update agent to PROVISIONING: %w", err)
		}
	}

	if err := o.completeResume(ctx, source, target, *sourceMachineID, fresh); err != nil {
		o.failAgent(ctx, target, events.KindSnapshotRestoreFailed, err)
		if quotaCharged {
			_ = o.quota.Release(ctx, opts.NewOwnerID)
		}
		return target, err
	}
	return target, nil
}

// completeResume copies history (fork only), restores the snapshot onto
// the target's machine, health-probes it, records a carryover snapshot
// row, and retries the worker's /start.
func (o *Orchestrator) completeResume(ctx context.Context, source, target *models.Agent, sourceMachineID string, fresh bool) error {
	if fresh {
		if err := o.copyHistory(ctx, source, target); err != nil {
			return fmt.Errorf("copy history: %w", err)
		}
	}

	snap, manifest, err := o.snap.BuildRestoreManifest(ctx, sourceMachineID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotMissing, err)
	}

	client, err := o.clientFor(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	urls := manifest.PresignedDownloadURLs
	if manifest.PresignedDownloadURL != "" {
		urls = []string{manifest.PresignedDownloadURL}
	}

	restoreCtx, cancel := context.WithTimeout(ctx, o.cfg.SnapshotRestoreTimeout)
	err = client.RestoreSnapshot(restoreCtx, urls)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotRestoreFailed, err)
	}

	if !o.probeHealth(ctx, client) {
		return ErrSnapshotRestoreFailed
	}

	if target.MachineID != nil && *target.MachineID != snap.MachineID {
		if _, err := o.snap.CreateCarriedOverSnapshot(ctx, *target.MachineID, snap.R2Key, snap.SizeBytes); err != nil {
			slog.Warn("orchestrator: record carryover snapshot", "agent_id", target.ID, "error", err)
		}
	}

	target.State = models.AgentStateCloning
	if err := o.agents.Update(ctx, target); err != nil {
		return fmt.Errorf("update agent to CLONING: %w", err)
	}

	automations, err := o.resolveAutomations(ctx, target.EnvironmentID)
	if err != nil {
		slog.Warn("orchestrator: resolve automations", "agent_id", target.ID, "error", err)
	}

	attempts := o.cfg.StartRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var resp *workerapi.StartResponse
	for i := 0; i < attempts; i++ {
		if o.probeHealth(ctx, client) {
			resp, err = client.Start(ctx, workerapi.StartRequest{
				SetupMode:              "existing",
				Branch:                 target.BranchName,
				Automations:            automations,
				DontSendInitialMessage: true,
			})
			if err == nil && resp.Status == "ready" {
				break
			}
			resp = nil
		}
		if i < attempts-1 {
			if err := sleep(ctx, o.cfg.StartRetryBackoff); err != nil {
				return err
			}
		}
	}
	if resp == nil {
		return ErrStartFailed
	}

	target.StartCommitSha = source.StartCommitSha
	target.GitHistoryLastPushedCommitSha = resp.GitHistoryLastPushedCommitSha
	target.LastCommitSha = resp.StartCommitSha
	target.State = models.AgentStateReady
	target.IsReady = true
	target.IsRunning = false
	return o.agents.Update(ctx, target)
}

// copyHistory clones source's prompt and message log onto target under
// fresh ids, preserving order but never the source's
// task summary, which is fork-only scoped to the agent it was written for.
func (o *Orchestrator) copyHistory(ctx context.Context, source, target *models.Agent) error {
	prompts, err := o.prompts.List(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("list source prompts: %w", err)
	}

	promptIDMap := make(map[string]string, len(prompts))
	for _, p := range prompts {
		newID := uuid.NewString()
		promptIDMap[p.ID] = newID
		copied := &models.AgentPrompt{
			ID:        newID,
			AgentID:   target.ID,
			Text:      p.Text,
			Status:    p.Status,
			CreatedAt: p.CreatedAt,
		}
		if err := o.prompts.Insert(ctx, copied); err != nil {
			return fmt.Errorf("insert copied prompt: %w", err)
		}
	}

	if err := o.messages.CopyWithMapping(ctx, source.ID, target.ID, promptIDMap); err != nil {
		return fmt.Errorf("copy messages: %w", err)
	}

	target.LastCommitSha = source.LastCommitSha
	target.LastCommitURL = source.LastCommitURL
	target.GitHistoryLastPushedCommitSha = source.GitHistoryLastPushedCommitSha
	target.TaskSummary = nil
	return nil
}
