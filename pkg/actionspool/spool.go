// Package actionspool implements the worker's ActionSpool: a polled
// filesystem queue of JSON files written by user automation scripts
// (helpers `stopAgent` / `queuePrompt`) and consumed by the worker's
// prompt/interrupt machinery.
//
// Its lifecycle follows the same ticker+cancel+done background-service
// idiom used elsewhere in this codebase, applied here to directory
// polling instead of database retention sweeps.
package actionspool

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Action types recognized in a spool file.
const (
	ActionStopAgent   = "stop_agent"
	ActionQueuePrompt = "queue_prompt"
)

// Action is the on-disk JSON shape of one spool file.
type Action struct {
	Type           string   `json:"type"`
	AutomationID   string   `json:"automationId"`
	AutomationName string   `json:"automationName"`
	Payload        *Payload `json:"payload,omitempty"`
}

// Payload carries the queue_prompt action's prompt text.
type Payload struct {
	PromptText string `json:"promptText"`
}

// Handler is the worker-side sink for validated actions.
type Handler interface {
	StopAgent(ctx context.Context) error
	QueuePrompt(ctx context.Context, text string) error
}

// Spool polls dir on an interval, forwarding each valid file it finds to
// handler and deleting it afterward. Malformed files are deleted with a
// logged warning rather than left to be retried forever.
type Spool struct {
	dir      string
	handler  Handler
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSpool builds a Spool rooted at dir, polling every interval once
// started.
func NewSpool(dir string, handler Handler, interval time.Duration) *Spool {
	return &Spool{dir: dir, handler: handler, interval: interval}
}

// Start launches the background poll loop. Safe to call once; a second call
// before Stop is a no-op.
func (s *Spool) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop signals the poll loop to exit and waits for it to finish.
func (s *Spool) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Spool) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce scans dir for *.json files, forwarding and deleting each. It is
// exported so tests (and a caller wanting synchronous draining) can trigger
// a scan without waiting for the ticker.
func (s *Spool) PollOnce(ctx context.Context) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("actionspool: read dir failed", "dir", s.dir, "error", err)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		s.processFile(ctx, path)
	}
}

func (s *Spool) processFile(ctx context.Context, path string) {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Error("actionspool: remove file failed", "path", path, "error", err)
		}
	}()

	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("actionspool: read file failed, dropping", "path", path, "error", err)
		return
	}

	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		slog.Warn("actionspool: malformed action file, dropping", "path", path, "error", err)
		return
	}

	switch a.Type {
	case ActionStopAgent:
		if err := s.handler.StopAgent(ctx); err != nil {
			slog.Error("actionspool: stop_agent forward failed", "path", path, "error", err)
		}
	case ActionQueuePrompt:
		text := ""
		if a.Payload != nil {
			text = a.Payload.PromptText
		}
		if err := s.handler.QueuePrompt(ctx, text); err != nil {
			slog.Error("actionspool: queue_prompt forward failed", "path", path, "error", err)
		}
	default:
		slog.Warn("actionspool: unrecognized action type, dropping", "path", path, "type", a.Type)
	}
}
