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
	"github.com/ariana-dot-dev/ariana-sub004/pkg/quota"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/snapshot"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/workerapi"
)

// Publisher is the subset of events.EventPublisher the orchestrator needs
// to report state transitions and fatal-for-agent failures.
type Publisher interface {
	PublishStateChanged(ctx context.Context, agentID string, payload events.StateChangedPayload) error
	PublishFailure(ctx context.Context, agentID, kind string, payload events.FailurePayload) error
}

// Orchestrator owns the agent lifecycle: admission, provisioning,
// fork/resume, and the transitions driving an agent from PROVISIONING
// through READY/IDLE/RUNNING to ARCHIVED or ERROR.
type Orchestrator struct {
	agents       repo.AgentRepository
	prompts      repo.PromptRepository
	messages     repo.MessageRepository
	commits      repo.CommitRepository
	machines     repo.MachineRepository
	snapshots    repo.SnapshotRepository
	environments repo.EnvironmentRepository
	automations  repo.AutomationRepository

	quota   *quota.Guard
	pool    *machinepool.Pool
	snap    *snapshot.Service
	clients WorkerClientFactory

	publisher Publisher
	cfg       Config
}

// Deps bundles every collaborator Orchestrator needs, so the constructor
// signature doesn't grow one parameter per dependency as the component
// set fills in.
type Deps struct {
	Agents       repo.AgentRepository
	Prompts      repo.PromptRepository
	Messages     repo.MessageRepository
	Commits      repo.CommitRepository
	Machines     repo.MachineRepository
	Snapshots    repo.SnapshotRepository
	Environments repo.EnvironmentRepository
	Automations  repo.AutomationRepository

	Quota     *quota.Guard
	Pool      *machinepool.Pool
	Snapshot  *snapshot.Service
	Clients   WorkerClientFactory
	Publisher Publisher
}

// New constructs an Orchestrator. A nil Clients factory defaults to
// DefaultWorkerClientFactory.
func New(deps Deps, cfg Config) *Orchestrator {
	clients := deps.Clients
	if clients == nil {
		clients = DefaultWorkerClientFactory
	}
	return &Orchestrator{
		agents:       deps.Agents,
		prompts:      deps.Prompts,
		messages:     deps.Messages,
		commits:      deps.Commits,
		machines:     deps.Machines,
		snapshots:    deps.Snapshots,
		environments: deps.Environments,
		automations:  deps.Automations,
		quota:        deps.Quota,
		pool:         deps.Pool,
		snap:         deps.Snapshot,
		clients:      clients,
		publisher:    deps.Publisher,
		cfg:          cfg,
	}
}

// CreateRequest is the input to Create: the caller's identity, the
// project and optional environment bundle to provision into, and any git
// credentials needed for the initial checkout.
type CreateRequest struct {
	UserID        string
	ProjectID     string
	Name          string
	EnvironmentID *string
	BaseBranch    string
	IP            string
	SetupMode     string
	GitCredentials *workerapi.GitCredentials
}

// Create admits a new agent: QuotaGuard, then a machine reservation, then
// drives the agent from PROVISIONING through to READY.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*models.Agent, error) {
	if req.UserID == "" {
		return nil, &ValidationError{Field: "userId", Message: "required"}
	}
	if req.ProjectID == "" {
		return nil, &ValidationError{Field: "projectId", Message: "required"}
	}

	if err := o.quota.Admit(ctx, req.UserID, req.IP, false); err != nil {
		return nil, err
	}

	machine, err := o.pool.Reserve(ctx, req.UserID, o.cfg.DefaultRegion)
	if err != nil {
		_ = o.quota.Release(ctx, req.UserID)
		var exhausted *machinepool.ExhaustedError
		if errors.As(err, &exhausted) {
			return nil, exhausted
		}
		return nil, fmt.Errorf("reserve machine: %w", err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		_ = o.pool.Release(ctx, machine.ID)
		_ = o.quota.Release(ctx, req.UserID)
		return nil, fmt.Errorf("generate worker secret: %w", err)
	}

	now := time.Now()
	agent := &models.Agent{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		ProjectID:     req.ProjectID,
		MachineID:     &machine.ID,
		BranchName:    fmt.Sprintf("agent/%s", uuid.NewString()),
		BaseBranch:    req.BaseBranch,
		State:         models.AgentStateProvisioned,
		EnvironmentID: req.EnvironmentID,
		MachineType:   models.MachineTypeManaged,
		WorkerSecret:  secret,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.agents.Insert(ctx, agent); err != nil {
		_ = o.pool.Release(ctx, machine.ID)
		_ = o.quota.Release(ctx, req.UserID)
		return nil, fmt.Errorf("insert agent: %w", err)
	}

	if err := o.bringUp(ctx, agent, req.SetupMode, req.GitCredentials); err != nil {
		o.failAgent(ctx, agent, events.KindProvisioningFailed, err)
		return agent, err
	}
	return agent, nil
}

// bringUp drives agent from PROVISIONED through CLONING to READY: wait for
// the worker to answer health checks, then call /start.
func (o *Orchestrator) bringUp(ctx context.Context, agent *models.Agent, setupMode string, creds *workerapi.GitCredentials) error {
	client, err := o.clientFor(agent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	if !o.probeHealth(ctx, client) {
		return ErrProvisioningFailed
	}

	agent.State = models.AgentStateCloning
	if err := o.agents.Update(ctx, agent); err != nil {
		return fmt.Errorf("update agent to CLONING: %w", err)
	}

	automations, err := o.resolveAutomations(ctx, agent.EnvironmentID)
	if err != nil {
		slog.Warn("orchestrator: resolve automations", "agent_id", agent.ID, "error", err)
	}

	if setupMode == "" {
		setupMode = "git-clone-public"
	}
	resp, err := client.Start(ctx, workerapi.StartRequest{
		SetupMode:      setupMode,
		Branch:         agent.BranchName,
		GitCredentials: creds,
		Automations:    automations,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	if resp.Status != "ready" {
		msg := "start failed"
		if resp.GitInfoError != nil {
			msg = *resp.GitInfoError
		}
		return fmt.Errorf("%w: %s", ErrStartFailed, msg)
	}

	agent.StartCommitSha = resp.StartCommitSha
	agent.GitHistoryLastPushedCommitSha = resp.GitHistoryLastPushedCommitSha
	agent.LastCommitSha = resp.StartCommitSha
	agent.State = models.AgentStateReady
	agent.IsReady = true
	agent.IsRunning = false
	return o.agents.Update(ctx, agent)
}

// probeHealth polls the worker's /health up to cfg.HealthProbeAttempts
// times, cfg.HealthProbeInterval apart.
func (o *Orchestrator) probeHealth(ctx context.Context, client WorkerClient) bool {
	attempts := o.cfg.HealthProbeAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err := client.Health(ctx); err == nil {
			return true
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(o.cfg.HealthProbeInterval):
			}
		}
	}
	return false
}

// failAgent marks agent ERROR, fails its queued prompts, and publishes the
// fatal-for-agent failure so subscribers see every queued prompt resolve
// at once.
func (o *Orchestrator) failAgent(ctx context.Context, agent *models.Agent, kind string, cause error) {
	msg := cause.Error()
	agent.State = models.AgentStateError
	agent.ErrorMessage = &msg
	agent.IsReady = false
	agent.IsRunning = false
	if err := o.agents.Update(ctx, agent); err != nil {
		slog.Error("orchestrator: mark agent ERROR", "agent_id", agent.ID, "error", err)
	}
	if err := o.prompts.FailActiveForAgent(ctx, agent.ID); err != nil {
		slog.Error("orchestrator: fail queued prompts", "agent_id", agent.ID, "error", err)
	}
	if o.publisher != nil {
		if err := o.publisher.PublishFailure(ctx, agent.ID, kind, events.FailurePayload{
			BasePayload: events.BasePayload{Type: kind, AgentID: agent.ID, Timestamp: time.Now().Format(time.RFC3339Nano)},
			ErrorKind:   kind,
			Message:     msg,
		}); err != nil {
			slog.Warn("orchestrator: publish failure event", "agent_id", agent.ID, "error", err)
		}
	}
}

// resolveAutomations loads the automations installed in an environment
// bundle and converts them to the wire shape /start expects.
func (o *Orchestrator) resolveAutomations(ctx context.Context, environmentID *string) ([]workerapi.AutomationSpec, error) {
	if environmentID == nil {
		return nil, nil
	}
	env, err := o.environments.FindByID(ctx, *environmentID)
	if err != nil {
		return nil, fmt.Errorf("find environment %s: %w", *environmentID, err)
	}
	specs := make([]workerapi.AutomationSpec, 0, len(env.AutomationIDs))
	for _, id := range env.AutomationIDs {
		a, err := o.automations.FindByID(ctx, id)
		if err != nil {
			return specs, fmt.Errorf("find automation %s: %w", id, err)
		}
		specs = append(specs, toAutomationSpec(a))
	}
	return specs, nil
}

func toAutomationSpec(a *models.Automation) workerapi.AutomationSpec {
	return workerapi.AutomationSpec{
		ID:                  a.ID,
		Name:                a.Name,
		TriggerType:         string(a.Trigger.Type),
		TriggerGlob:         a.Trigger.Glob,
		TriggerRegex:        a.Trigger.Regex,
		TriggerAutomationID: a.Trigger.AutomationID,
		ScriptLanguage:      string(a.ScriptLanguage),
		ScriptContent:       a.ScriptContent,
		Blocking:            a.Blocking,
		FeedOutput:          a.FeedOutput,
	}
}
