package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/events"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/workerapi"
)

// fakeAgents is an in-memory repo.AgentRepository, mirroring the
// map-plus-mutex fake doubles pkg/automation and pkg/assistant use in their
// own tests in place of a real database.
type fakeAgents struct {
	mu   sync.Mutex
	rows map[string]*models.Agent
}

func newFakeAgents() *fakeAgents { return &fakeAgents{rows: make(map[string]*models.Agent)} }

func (f *fakeAgents) FindByID(ctx context.Context, id string) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok || a.DeletedAt != nil {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAgents) FindMany(ctx context.Context, filters repo.AgentFilters) ([]*models.Agent, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Agent
	for _, a := range f.rows {
		if filters.UserID != "" && a.UserID != filters.UserID {
			continue
		}
		if !filters.IncludeDeleted && a.DeletedAt != nil {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (f *fakeAgents) Insert(ctx context.Context, a *models.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.rows[a.ID] = &cp
	return nil
}

func (f *fakeAgents) Update(ctx context.Context, a *models.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[a.ID]; !ok {
		return nil
	}
	cp := *a
	f.rows[a.ID] = &cp
	return nil
}

func (f *fakeAgents) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.rows[id]; ok {
		now := time.Now()
		a.DeletedAt = &now
	}
	return nil
}

func (f *fakeAgents) SetAutoRestoredNow(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.rows[id]; ok {
		a.LastAutoRestoredAt = &at
	}
	return nil
}

func (f *fakeAgents) FindErrorAgentsCreatedSince(ctx context.Context, since time.Time) ([]*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Agent
	for _, a := range f.rows {
		if a.State == models.AgentStateError && a.CreatedAt.After(since) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakePrompts is an in-memory repo.PromptRepository.
type fakePrompts struct {
	mu   sync.Mutex
	rows map[string]*models.AgentPrompt
}

func newFakePrompts() *fakePrompts { return &fakePrompts{rows: make(map[string]*models.AgentPrompt)} }

func (f *fakePrompts) Insert(ctx context.Context, p *models.AgentPrompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.rows[p.ID] = &cp
	return nil
}

func (f *fakePrompts) List(ctx context.Context, agentID string) ([]*models.AgentPrompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AgentPrompt
	for _, p := range f.rows {
		if p.AgentID == agentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakePrompts) FailActiveForAgent(ctx context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.rows {
		if p.AgentID == agentID && p.Status == models.PromptStatusActive {
			p.Status = models.PromptStatusFailed
		}
	}
	return nil
}

func (f *fakePrompts) ClaimNext(ctx context.Context, agentID string) (*models.AgentPrompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.rows {
		if p.AgentID == agentID && p.Status == models.PromptStatusActive {
			return nil, nil
		}
	}
	var oldest *models.AgentPrompt
	for _, p := range f.rows {
		if p.AgentID != agentID || p.Status != models.PromptStatusQueued {
			continue
		}
		if oldest == nil || p.CreatedAt.Before(oldest.CreatedAt) {
			oldest = p
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = models.PromptStatusActive
	cp := *oldest
	return &cp, nil
}

func (f *fakePrompts) MarkDone(ctx context.Context, promptID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.rows[promptID]; ok {
		p.Status = models.PromptStatusDone
	}
	return nil
}

// fakeMessages is an in-memory repo.MessageRepository.
type fakeMessages struct {
	mu   sync.Mutex
	rows map[string][]*models.AgentMessage
}

func newFakeMessages() *fakeMessages { return &fakeMessages{rows: make(map[string][]*models.AgentMessage)} }

func (f *fakeMessages) BulkInsert(ctx context.Context, msgs []*models.AgentMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.rows[m.AgentID] = append(f.rows[m.AgentID], m)
	}
	return nil
}

func (f *fakeMessages) List(ctx context.Context, agentID string) ([]*models.AgentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[agentID], nil
}

func (f *fakeMessages) CopyWithMapping(ctx context.Context, sourceAgentID, targetAgentID string, promptIDMap map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.rows[sourceAgentID] {
		cp := *m
		if cp.PromptID != nil {
			if mapped, ok := promptIDMap[*cp.PromptID]; ok {
				cp.PromptID = &mapped
			}
		}
		cp.AgentID = targetAgentID
		f.rows[targetAgentID] = append(f.rows[targetAgentID], &cp)
	}
	return nil
}

// fakeCommits is an in-memory repo.CommitRepository (unused by most tests,
// present to satisfy Deps).
type fakeCommits struct {
	mu   sync.Mutex
	rows map[string][]*models.AgentCommit
}

func newFakeCommits() *fakeCommits { return &fakeCommits{rows: make(map[string][]*models.AgentCommit)} }

func (f *fakeCommits) Insert(ctx context.Context, c *models.AgentCommit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[c.AgentID] = append(f.rows[c.AgentID], c)
	return nil
}

func (f *fakeCommits) Update(ctx context.Context, c *models.AgentCommit) error { return nil }

func (f *fakeCommits) List(ctx context.Context, agentID string) ([]*models.AgentCommit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[agentID], nil
}

// fakeMachines is an in-memory repo.MachineRepository, shared by the real
// machinepool.Pool and snapshot.Service under test.
type fakeMachines struct {
	mu   sync.Mutex
	rows map[string]*models.Machine
}

func newFakeMachines() *fakeMachines { return &fakeMachines{rows: make(map[string]*models.Machine)} }

func (f *fakeMachines) Reserve(ctx context.Context, m *models.Machine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[m.ID] = m
	return nil
}

func (f *fakeMachines) Release(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeMachines) ActiveCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows), nil
}

func (f *fakeMachines) List(ctx context.Context) ([]*models.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Machine
	for _, m := range f.rows {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMachines) FindByID(ctx context.Context, id string) (*models.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// fakeSnapshots is an in-memory repo.SnapshotRepository.
type fakeSnapshots struct {
	mu   sync.Mutex
	rows map[string]*models.MachineSnapshot
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{rows: make(map[string]*models.MachineSnapshot)}
}

func (f *fakeSnapshots) InsertCaptured(ctx context.Context, s *models.MachineSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.Source = models.SnapshotSourceCaptured
	f.rows[s.ID] = s
	return nil
}

func (f *fakeSnapshots) InsertCarryover(ctx context.Context, s *models.MachineSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.Source = models.SnapshotSourceCarriedOver
	f.rows[s.ID] = s
	return nil
}

func (f *fakeSnapshots) FindLatestByMachineID(ctx context.Context, machineID string) (*models.MachineSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.MachineSnapshot
	for _, s := range f.rows {
		if s.MachineID != machineID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeSnapshots) ListExpired(ctx context.Context, now time.Time) ([]*models.MachineSnapshot, error) {
	return nil, nil
}

func (f *fakeSnapshots) RefCount(ctx context.Context, r2Key string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.rows {
		if s.R2Key == r2Key {
			count++
		}
	}
	return count, nil
}

func (f *fakeSnapshots) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

// fakeUsage is an in-memory repo.UsageRepository, allowing until a user's
// count passes max.
type fakeUsage struct {
	mu    sync.Mutex
	count map[string]int
}

func newFakeUsage() *fakeUsage { return &fakeUsage{count: make(map[string]int)} }

func (f *fakeUsage) CheckAndIncrement(ctx context.Context, userID string, resource models.ResourceKind, max int) (*repo.UsageCheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count[userID]++
	if f.count[userID] > max {
		return &repo.UsageCheckResult{Allowed: false, LimitType: models.LimitTypeMonth, Current: f.count[userID], Max: max, ResourceType: resource, IsMonthlyLimit: true}, nil
	}
	return &repo.UsageCheckResult{Allowed: true, Current: f.count[userID], Max: max, ResourceType: resource, IsMonthlyLimit: true}, nil
}

func (f *fakeUsage) Decrement(ctx context.Context, userID string, resource models.ResourceKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count[userID] > 0 {
		f.count[userID]--
	}
	return nil
}

// fakeUsageIP is an in-memory repo.UsageIPRepository, always allowing.
type fakeUsageIP struct{}

func (fakeUsageIP) Check(ctx context.Context, ip string, resource models.ResourceKind, window time.Duration, max int) (*repo.UsageCheckResult, error) {
	return &repo.UsageCheckResult{Allowed: true, ResourceType: resource}, nil
}

func (fakeUsageIP) Record(ctx context.Context, ip string, resource models.ResourceKind, window time.Duration) error {
	return nil
}

// fakeEnvironments is an in-memory repo.EnvironmentRepository.
type fakeEnvironments struct {
	rows map[string]*models.EnvironmentBundle
}

func newFakeEnvironments() *fakeEnvironments {
	return &fakeEnvironments{rows: make(map[string]*models.EnvironmentBundle)}
}

func (f *fakeEnvironments) FindByID(ctx context.Context, id string) (*models.EnvironmentBundle, error) {
	return f.rows[id], nil
}

// fakeAutomations is an in-memory repo.AutomationRepository.
type fakeAutomations struct {
	rows map[string]*models.Automation
}

func newFakeAutomations() *fakeAutomations {
	return &fakeAutomations{rows: make(map[string]*models.Automation)}
}

func (f *fakeAutomations) FindByID(ctx context.Context, id string) (*models.Automation, error) {
	return f.rows[id], nil
}

func (f *fakeAutomations) ListForProject(ctx context.Context, userID, projectID string) ([]*models.Automation, error) {
	var out []*models.Automation
	for _, a := range f.rows {
		if a.UserID == userID && a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAutomations) Insert(ctx context.Context, a *models.Automation) error {
	f.rows[a.ID] = a
	return nil
}

// fakeWorkerClient is a controllable WorkerClient double.
type fakeWorkerClient struct {
	mu sync.Mutex

	healthy      bool
	startStatus  string
	startErr     error
	promptErr    error
	interruptErr error
	restoreErr   error
	claudeState  *workerapi.ClaudeStateResponse

	promptCalls []string
}

func newFakeWorkerClient() *fakeWorkerClient {
	return &fakeWorkerClient{healthy: true, startStatus: "ready"}
}

func (c *fakeWorkerClient) Health(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.healthy {
		return context.DeadlineExceeded
	}
	return nil
}

func (c *fakeWorkerClient) Start(ctx context.Context, req workerapi.StartRequest) (*workerapi.StartResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return nil, c.startErr
	}
	sha := "deadbeef"
	return &workerapi.StartResponse{Status: c.startStatus, StartCommitSha: &sha, GitHistoryLastPushedCommitSha: &sha}, nil
}

func (c *fakeWorkerClient) Prompt(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promptCalls = append(c.promptCalls, text)
	return c.promptErr
}

func (c *fakeWorkerClient) Interrupt(ctx context.Context) error {
	return c.interruptErr
}

func (c *fakeWorkerClient) ClaudeState(ctx context.Context) (*workerapi.ClaudeStateResponse, error) {
	if c.claudeState != nil {
		return c.claudeState, nil
	}
	return &workerapi.ClaudeStateResponse{IsReady: true}, nil
}

func (c *fakeWorkerClient) RestoreSnapshot(ctx context.Context, presignedURLs []string) error {
	return c.restoreErr
}

// fakePublisher records every published event.
type fakePublisher struct {
	mu       sync.Mutex
	states   []events.StateChangedPayload
	failures []events.FailurePayload
}

func (p *fakePublisher) PublishStateChanged(ctx context.Context, agentID string, payload events.StateChangedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, payload)
	return nil
}

func (p *fakePublisher) PublishFailure(ctx context.Context, agentID, kind string, payload events.FailurePayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, payload)
	return nil
}
