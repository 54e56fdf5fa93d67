package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/blobstore"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/machinepool"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/machineprovider"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/quota"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/snapshot"
)

// testHarness wires a real Orchestrator against in-memory fakes for every
// repository plus a fake WorkerClient, following the repo-wide convention
// of exercising production collaborator code (quota.Guard, machinepool.Pool,
// snapshot.Service) against fake-repo leaves rather than re-mocking them.
type testHarness struct {
	o         *Orchestrator
	agents    *fakeAgents
	prompts   *fakePrompts
	messages  *fakeMessages
	machines  *fakeMachines
	snapshots *fakeSnapshots
	pool      *machinepool.Pool
	provider  *machineprovider.Fake
	client    *fakeWorkerClient
	publisher *fakePublisher
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	agents := newFakeAgents()
	prompts := newFakePrompts()
	messages := newFakeMessages()
	commits := newFakeCommits()
	machines := newFakeMachines()
	snapshots := newFakeSnapshots()
	environments := newFakeEnvironments()
	automations := newFakeAutomations()

	provider := machineprovider.NewFake()
	pool := machinepool.New(machinepool.Config{MaxActiveMachines: 10, ReservationQueueMaxPerUser: 2, DefaultRegion: "local"}, provider, machines)

	blobs := blobstore.NewFileStore(t.TempDir(), "http://blobs.local", []byte("blob-secret"))
	snap := snapshot.NewService(snapshots, blobs, provider)

	guard := quota.NewGuard(quota.Config{MonthlyAgentsPerUser: 50}, newFakeUsage(), fakeUsageIP{})

	client := newFakeWorkerClient()
	publisher := &fakePublisher{}

	cfg := DefaultConfig()
	cfg.HealthProbeAttempts = 1
	cfg.StartRetryAttempts = 1
	cfg.RaceGuardMaxWait = 0

	o := New(Deps{
		Agents:       agents,
		Prompts:      prompts,
		Messages:     messages,
		Commits:      commits,
		Machines:     machines,
		Snapshots:    snapshots,
		Environments: environments,
		Automations:  automations,
		Quota:        guard,
		Pool:         pool,
		Snapshot:     snap,
		Clients:      func(baseURL string, key []byte) WorkerClient { return client },
		Publisher:    publisher,
	}, cfg)

	return &testHarness{
		o: o, agents: agents, prompts: prompts, messages: messages,
		machines: machines, snapshots: snapshots, pool: pool, provider: provider,
		client: client, publisher: publisher,
	}
}

func TestCreateBringsAgentToReady(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1", IP: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, models.AgentStateReady, agent.State)
	assert.True(t, agent.IsReady)
	assert.NotNil(t, agent.MachineID)
	assert.NotEmpty(t, agent.WorkerSecret)
}

func TestCreateRequiresUserAndProject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.o.Create(ctx, CreateRequest{ProjectID: "proj-1"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = h.o.Create(ctx, CreateRequest{UserID: "user-1"})
	require.ErrorAs(t, err, &ve)
}

func TestCreateMarksAgentErrorOnStartFailure(t *testing.T) {
	h := newHarness(t)
	h.client.startStatus = "failed"
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.Error(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, models.AgentStateError, agent.State)

	stored, err := h.agents.FindByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStateError, stored.State)
	assert.NotNil(t, stored.ErrorMessage)
	require.Len(t, h.publisher.failures, 1)
}

func TestCreateFailsPoolExhausted(t *testing.T) {
	h := newHarness(t)
	h.pool = machinepool.New(machinepool.Config{MaxActiveMachines: 0, ReservationQueueMaxPerUser: 1, DefaultRegion: "local"}, h.provider, h.machines)
	h.o = New(Deps{
		Agents: h.agents, Prompts: h.prompts, Messages: h.messages, Commits: newFakeCommits(),
		Machines: h.machines, Snapshots: h.snapshots, Environments: newFakeEnvironments(), Automations: newFakeAutomations(),
		Quota:     quota.NewGuard(quota.Config{MonthlyAgentsPerUser: 50}, newFakeUsage(), fakeUsageIP{}),
		Pool:      h.pool,
		Snapshot:  snapshot.NewService(h.snapshots, blobstore.NewFileStore(t.TempDir(), "http://blobs.local", []byte("s")), h.provider),
		Clients:   func(baseURL string, key []byte) WorkerClient { return h.client },
		Publisher: h.publisher,
	}, DefaultConfig())

	_, err := h.o.Create(context.Background(), CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	var exhausted *machinepool.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestSubmitPromptDispatchesImmediatelyWhenIdle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.NoError(t, err)

	err = h.o.SubmitPrompt(ctx, agent.ID, "user-1", "do the thing")
	require.NoError(t, err)

	stored, err := h.agents.FindByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStateRunning, stored.State)
	assert.True(t, stored.IsRunning)
	assert.Equal(t, []string{"do the thing"}, h.client.promptCalls)
}

func TestSubmitPromptRejectsNonOwnerOnArchivedAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.NoError(t, err)
	require.NoError(t, h.o.Archive(ctx, agent.ID))

	err = h.o.SubmitPrompt(ctx, agent.ID, "someone-else", "hi")
	assert.ErrorIs(t, err, ErrAgentNotReady)
}

func TestSubmitPromptResumesOwnedArchivedAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.NoError(t, err)
	require.NoError(t, h.o.Archive(ctx, agent.ID))

	err = h.o.SubmitPrompt(ctx, agent.ID, "user-1", "resume and go")
	require.NoError(t, err)

	stored, err := h.agents.FindByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStateRunning, stored.State)
}

func TestInterruptClearsRunningStateAndFailsActivePrompt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.NoError(t, err)
	require.NoError(t, h.o.SubmitPrompt(ctx, agent.ID, "user-1", "task"))

	require.NoError(t, h.o.Interrupt(ctx, agent.ID))

	stored, err := h.agents.FindByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStateIdle, stored.State)
	assert.False(t, stored.IsRunning)

	ps, err := h.prompts.List(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, models.PromptStatusFailed, ps[0].Status)
}

func TestArchiveReleasesMachineAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.NoError(t, err)

	require.NoError(t, h.o.Archive(ctx, agent.ID))
	stored, err := h.agents.FindByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStateArchived, stored.State)
	assert.Nil(t, stored.MachineID)
	assert.NotNil(t, stored.LastMachineID)

	count, err := h.machines.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Archiving again is a no-op, not an error.
	require.NoError(t, h.o.Archive(ctx, agent.ID))
}

func TestRebootRestoresArchivedAgentToReady(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.NoError(t, err)
	require.NoError(t, h.o.Archive(ctx, agent.ID))

	resumed, err := h.o.Reboot(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, resumed.ID)
	assert.Equal(t, models.AgentStateReady, resumed.State)
	assert.NotNil(t, resumed.MachineID)
}

func TestRebootFailsWithoutAnySnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.NoError(t, err)

	// Force ERROR without ever capturing a snapshot by clearing both
	// machine pointers directly in the fake store.
	stored, _ := h.agents.FindByID(ctx, agent.ID)
	stored.MachineID = nil
	stored.LastMachineID = nil
	stored.State = models.AgentStateError
	require.NoError(t, h.agents.Update(ctx, stored))

	_, err = h.o.Reboot(ctx, agent.ID)
	assert.ErrorIs(t, err, ErrSnapshotMissing)
}

func TestForkCopiesHistoryOntoNewOwnedAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	source, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.NoError(t, err)
	require.NoError(t, h.o.SubmitPrompt(ctx, source.ID, "user-1", "first task"))

	// Fork restores from the source machine's latest snapshot; seed one as
	// a periodic background capture would have by the time a fork happens.
	require.NoError(t, h.snapshots.InsertCaptured(ctx, &models.MachineSnapshot{
		ID: "snap-1", MachineID: *source.MachineID, R2Key: "snapshots/seed.img", SizeBytes: 10,
		CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}))

	forked, err := h.o.Fork(ctx, source.ID, "user-2", nil)
	require.NoError(t, err)
	assert.NotEqual(t, source.ID, forked.ID)
	assert.Equal(t, "user-2", forked.UserID)
	assert.Equal(t, models.AgentStateReady, forked.State)
	assert.Nil(t, forked.TaskSummary)

	ps, err := h.prompts.List(ctx, forked.ID)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "first task", ps[0].Text)
}

func TestHealthReportsUnreachableWithoutError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.NoError(t, err)

	h.client.healthy = false
	status, err := h.o.Health(ctx, agent.ID)
	require.NoError(t, err)
	assert.False(t, status.Reachable)
	assert.NotEmpty(t, status.Error)
}

func TestDeleteSoftDeletesAndReleasesMachine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.NoError(t, err)

	require.NoError(t, h.o.Delete(ctx, agent.ID))

	_, err = h.o.GetAgent(ctx, agent.ID)
	assert.ErrorIs(t, err, ErrAgentNotFound)

	count, err := h.machines.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunAutoRestoreSweepRestoresOncePerUserPerDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	agent, err := h.o.Create(ctx, CreateRequest{UserID: "user-1", ProjectID: "proj-1"})
	require.NoError(t, err)
	require.NoError(t, h.o.Archive(ctx, agent.ID))
	stored, _ := h.agents.FindByID(ctx, agent.ID)
	stored.State = models.AgentStateError
	require.NoError(t, h.agents.Update(ctx, stored))

	restored, failed := h.o.RunAutoRestoreSweep(ctx)
	assert.Equal(t, 1, restored)
	assert.Equal(t, 0, failed)

	after, err := h.agents.FindByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStateReady, after.State)
	assert.NotNil(t, after.LastAutoRestoredAt)

	// A second failure on the same day is not restored again.
	after.State = models.AgentStateError
	require.NoError(t, h.agents.Update(ctx, after))
	restored, failed = h.o.RunAutoRestoreSweep(ctx)
	assert.Equal(t, 0, restored)
	assert.Equal(t, 0, failed)
}

func TestToAutomationSpecConvertsTriggerFields(t *testing.T) {
	spec := toAutomationSpec(&models.Automation{
		ID: "a1", Name: "lint",
		Trigger:        models.TriggerPayload{Type: models.TriggerOnAfterEditFiles, Glob: "*.go"},
		ScriptLanguage: models.ScriptLanguageBash,
		ScriptContent:  "echo hi",
		Blocking:       true,
	})
	assert.Equal(t, "a1", spec.ID)
	assert.Equal(t, "*.go", spec.TriggerGlob)
	assert.True(t, spec.Blocking)
}
