// Package eventpoller implements EventPoller: the controller scrapes the
// worker of each RUNNING or READY agent on a timer and emits deltas (new messages, new
// commits, automation lifecycle transitions, readiness/error changes) to
// the structured event bus in pkg/events.
//
// The background loop is context-cancellable and safe to call Start
// twice; polling fans out across agents with bounded concurrency.
package eventpoller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/events"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
)

// WorkerSnapshot is the state scraped from one worker at a point in time.
type WorkerSnapshot struct {
	IsReady        bool
	IsRunning      bool
	ErrorMessage   *string
	Messages       []models.AgentMessage
	Commits        []models.AgentCommit
	AutomationRuns []models.AutomationRun
}

// WorkerClient scrapes a single agent's worker for its current state.
// Implemented by pkg/workerapi's controller-side HTTP client.
type WorkerClient interface {
	FetchSnapshot(ctx context.Context, agent *models.Agent) (*WorkerSnapshot, error)
}

// Publisher is the subset of *events.EventPublisher the poller needs.
// Declared here, at the consumer, so tests can substitute a fake instead of
// a live database connection.
type Publisher interface {
	PublishStateChanged(ctx context.Context, agentID string, payload events.StateChangedPayload) error
	PublishMessageAppended(ctx context.Context, agentID string, payload events.MessageAppendedPayload) error
	PublishCommitRecorded(ctx context.Context, agentID string, payload events.CommitRecordedPayload) error
	PublishAutomationEvent(ctx context.Context, agentID, kind string, payload events.AutomationEventPayload) error
}

// Config tunes the poller's cadence and parallelism.
type Config struct {
	Interval       time.Duration
	MaxConcurrency int
}

// DefaultConfig polls every 2 seconds, scraping up to 16 workers at once.
func DefaultConfig() Config {
	return Config{Interval: 2 * time.Second, MaxConcurrency: 16}
}

// Poller is EventPoller.
type Poller struct {
	cfg       Config
	agents    repo.AgentRepository
	messages  repo.MessageRepository
	commits   repo.CommitRepository
	publisher Publisher
	client    WorkerClient

	mu     sync.Mutex
	cursor map[string]*agentCursor // agentID -> last-seen state, for dedup

	cancel context.CancelFunc
	done   chan struct{}
}

// agentCursor is what the poller remembers about an agent between polls, so
// a poll cycle only emits events for what actually changed.
type agentCursor struct {
	isReady        bool
	isRunning      bool
	errorMessage   string
	seenMessageIDs map[string]bool
	seenCommitShas map[string]bool
	seenRunIDs     map[string]bool
}

func newAgentCursor() *agentCursor {
	return &agentCursor{
		seenMessageIDs: make(map[string]bool),
		seenCommitShas: make(map[string]bool),
		seenRunIDs:     make(map[string]bool),
	}
}

// New constructs a Poller.
func New(cfg Config, agents repo.AgentRepository, messages repo.MessageRepository, commits repo.CommitRepository, publisher Publisher, client WorkerClient) *Poller {
	return &Poller{
		cfg:       cfg,
		agents:    agents,
		messages:  messages,
		commits:   commits,
		publisher: publisher,
		client:    client,
		cursor:    make(map[string]*agentCursor),
	}
}

// Start launches the background polling loop. Safe to call multiple times;
// subsequent calls are no-ops.
func (p *Poller) Start(ctx context.Context) {
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx)
	slog.Info("event poller started", "interval", p.cfg.Interval)
}

// Stop signals the polling loop to exit and waits for it to finish.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	slog.Info("event poller stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	p.pollOnce(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce scrapes the worker of every RUNNING or READY agent, bounded to
// cfg.MaxConcurrency concurrent scrapes.
func (p *Poller) pollOnce(ctx context.Context) {
	agents, _, err := p.agents.FindMany(ctx, repo.AgentFilters{State: models.AgentStateRunning, Limit: 0})
	if err != nil {
		slog.Error("event poller: list running agents", "error", err)
		return
	}
	readyAgents, _, err := p.agents.FindMany(ctx, repo.AgentFilters{State: models.AgentStateReady, Limit: 0})
	if err != nil {
		slog.Error("event poller: list ready agents", "error", err)
		return
	}
	agents = append(agents, readyAgents...)

	sem := make(chan struct{}, p.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	for _, agent := range agents {
		agent := agent
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.pollAgent(ctx, agent)
		}()
	}
	wg.Wait()
}

func (p *Poller) pollAgent(ctx context.Context, agent *models.Agent) {
	snapshot, err := p.client.FetchSnapshot(ctx, agent)
	if err != nil {
		slog.Warn("event poller: fetch snapshot failed", "agent_id", agent.ID, "error", err)
		return
	}

	cursor := p.cursorFor(agent.ID)

	p.emitStateDelta(ctx, agent, snapshot, cursor)
	p.emitNewMessages(ctx, agent.ID, snapshot.Messages, cursor)
	p.emitNewCommits(ctx, agent.ID, snapshot.Commits, cursor)
	p.emitAutomationDeltas(ctx, agent.ID, snapshot.AutomationRuns, cursor)
}

func (p *Poller) cursorFor(agentID string) *agentCursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cursor[agentID]
	if !ok {
		c = newAgentCursor()
		p.cursor[agentID] = c
	}
	return c
}

func (p *Poller) emitStateDelta(ctx context.Context, agent *models.Agent, snap *WorkerSnapshot, cursor *agentCursor) {
	errMsg := ""
	if snap.ErrorMessage != nil {
		errMsg = *snap.ErrorMessage
	}

	if snap.IsReady == cursor.isReady && snap.IsRunning == cursor.isRunning && errMsg == cursor.errorMessage {
		return
	}

	fromState := "RUNNING"
	if cursor.isReady {
		fromState = "READY"
	}
	toState := "RUNNING"
	if snap.IsReady {
		toState = "READY"
	}
	if errMsg != "" {
		toState = "ERROR"
	}

	if err := p.publisher.PublishStateChanged(ctx, agent.ID, events.StateChangedPayload{
		BasePayload:  events.BasePayload{Type: events.KindStateChanged, AgentID: agent.ID, Timestamp: time.Now().Format(time.RFC3339Nano)},
		FromState:    fromState,
		ToState:      toState,
		ErrorMessage: errMsg,
	}); err != nil {
		slog.Warn("event poller: publish state change", "agent_id", agent.ID, "error", err)
	}

	cursor.isReady = snap.IsReady
	cursor.isRunning = snap.IsRunning
	cursor.errorMessage = errMsg
}

func (p *Poller) emitNewMessages(ctx context.Context, agentID string, msgs []models.AgentMessage, cursor *agentCursor) {
	var fresh []*models.AgentMessage
	for i := range msgs {
		m := msgs[i]
		if cursor.seenMessageIDs[m.APIMessageID] {
			continue
		}
		cursor.seenMessageIDs[m.APIMessageID] = true
		fresh = append(fresh, &m)
	}
	if len(fresh) == 0 {
		return
	}

	if err := p.messages.BulkInsert(ctx, fresh); err != nil {
		slog.Error("event poller: persist messages", "agent_id", agentID, "error", err)
		return
	}

	for _, m := range fresh {
		if err := p.publisher.PublishMessageAppended(ctx, agentID, events.MessageAppendedPayload{
			BasePayload: events.BasePayload{Type: events.KindMessageAppended, AgentID: agentID, Timestamp: time.Now().Format(time.RFC3339Nano)},
			MessageID:   m.APIMessageID,
			Role:        string(m.Role),
			Content:     m.Content,
			IsStreaming: m.IsStreaming,
		}); err != nil {
			slog.Warn("event poller: publish message", "agent_id", agentID, "error", err)
		}
	}
}

func (p *Poller) emitNewCommits(ctx context.Context, agentID string, commits []models.AgentCommit, cursor *agentCursor) {
	for i := range commits {
		c := commits[i]
		if cursor.seenCommitShas[c.Sha] {
			continue
		}
		cursor.seenCommitShas[c.Sha] = true

		if err := p.commits.Insert(ctx, &c); err != nil {
			slog.Error("event poller: persist commit", "agent_id", agentID, "sha", c.Sha, "error", err)
			continue
		}

		if err := p.publisher.PublishCommitRecorded(ctx, agentID, events.CommitRecordedPayload{
			BasePayload: events.BasePayload{Type: events.KindCommitRecorded, AgentID: agentID, Timestamp: time.Now().Format(time.RFC3339Nano)},
			SHA:         c.Sha,
			Message:     c.Message,
			Additions:   c.Additions,
			Deletions:   c.Deletions,
			Pushed:      c.Pushed,
		}); err != nil {
			slog.Warn("event poller: publish commit", "agent_id", agentID, "error", err)
		}
	}
}

func (p *Poller) emitAutomationDeltas(ctx context.Context, agentID string, runs []models.AutomationRun, cursor *agentCursor) {
	for _, run := range runs {
		if cursor.seenRunIDs[run.ID] {
			continue
		}
		if run.FinishedAt == nil {
			// Still running: not yet a terminal delta. Don't mark seen so the
			// next poll can pick up its completion.
			continue
		}
		cursor.seenRunIDs[run.ID] = true

		kind := events.KindAutomationRunFinished
		if run.ExitCode != nil && *run.ExitCode != 0 {
			kind = events.KindAutomationFailure
		}
		if err := p.publisher.PublishAutomationEvent(ctx, agentID, kind, events.AutomationEventPayload{
			BasePayload:  events.BasePayload{Type: kind, AgentID: agentID, Timestamp: time.Now().Format(time.RFC3339Nano)},
			AutomationID: run.AutomationID,
			RunID:        run.ID,
			TriggeredBy:  run.TriggeredBy,
			ExitCode:     run.ExitCode,
		}); err != nil {
			slog.Warn("event poller: publish automation event", "agent_id", agentID, "run_id", run.ID, "error", err)
		}
	}
}
