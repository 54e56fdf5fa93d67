package assistant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session wraps one streaming conversation with an abstract assistant.
// It satisfies pkg/workerapi.AssistantSession.
type Session struct {
	client Client
	model  string

	// submitMu serializes Submit calls: a call blocks on the mutex until
	// the previous call's stream goroutine releases it, so
	// interrupt-and-retry never races with a freshly submitted prompt.
	submitMu sync.Mutex

	mu                sync.RWMutex
	sessionID         string
	messages          []Message
	idIndex           map[string]int // APIMessageID -> index in messages
	streaming         bool
	currentPendingIdx int // index of the message currently being streamed, or -1
	cancelFunc        context.CancelFunc
	pastConversations [][]Message
	compactions       []CompactionEvent
	lastUsage         *ContextUsageSummary
}

// NewSession builds a Session against client, using model for every
// Generate call. Submit takes no model argument, so the model is fixed for
// the session's lifetime.
func NewSession(client Client, model string) *Session {
	return &Session{
		client:            client,
		model:             model,
		idIndex:           make(map[string]int),
		currentPendingIdx: -1,
	}
}

// Submit enqueues a user message and starts the assistant's response. If a
// previous submit's stream is still draining, Submit blocks until that
// stream finishes. It returns as soon as the new turn's stream has been
// started, not when it completes.
func (s *Session) Submit(ctx context.Context, text string) error {
	s.submitMu.Lock()

	s.mu.Lock()
	if s.sessionID == "" {
		s.sessionID = uuid.NewString()
	}
	s.messages = append(s.messages, Message{
		ID:        uuid.NewString(),
		Role:      "user",
		Text:      text,
		CreatedAt: time.Now(),
	})
	snapshot := append([]Message(nil), s.messages...)
	sessionID := s.sessionID
	model := s.model

	genCtx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	s.streaming = true
	s.currentPendingIdx = -1
	s.mu.Unlock()

	go s.runStream(genCtx, sessionID, model, snapshot)
	return nil
}

// Interrupt cancels the in-flight stream ASAP. The session id is kept so
// the next Submit resumes the same conversation.
func (s *Session) Interrupt(ctx context.Context) error {
	s.mu.RLock()
	cancel := s.cancelFunc
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// IsReady reports whether the session can accept a new Submit right now.
func (s *Session) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.streaming
}

// ContextUsage satisfies pkg/workerapi.AssistantSession, returning the
// single used-percent figure the claudeState endpoint surfaces.
func (s *Session) ContextUsage() *float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastUsage == nil {
		return nil
	}
	v := s.lastUsage.UsedPercent
	return &v
}

// GetContextUsage returns the full usage breakdown.
func (s *Session) GetContextUsage() *ContextUsageSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastUsage == nil {
		return nil
	}
	cp := *s.lastUsage
	return &cp
}

// GetMessages returns the acknowledged conversation plus, if a response is
// currently streaming, a synthetic trailing assistant message with
// Pending=true.
func (s *Session) GetMessages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Pending {
			continue
		}
		out = append(out, m)
	}
	if s.streaming && s.currentPendingIdx >= 0 && s.currentPendingIdx < len(s.messages) {
		out = append(out, s.messages[s.currentPendingIdx])
	}
	return out
}

// Reset archives the current conversation into pastConversations and clears
// the session id, so the next Submit starts a fresh conversation (spec
// §4.6 "reset").
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) > 0 {
		s.pastConversations = append(s.pastConversations, s.messages)
	}
	s.messages = nil
	s.idIndex = make(map[string]int)
	s.sessionID = ""
	s.currentPendingIdx = -1
	s.compactions = nil
	s.lastUsage = nil
}

func (s *Session) runStream(ctx context.Context, sessionID, model string, msgs []Message) {
	defer s.submitMu.Unlock()
	defer func() {
		s.mu.Lock()
		s.streaming = false
		s.cancelFunc = nil
		s.mu.Unlock()
	}()

	ch, err := s.client.Generate(ctx, sessionID, msgs, model)
	if err != nil {
		slog.Error("assistant: generate failed", "session_id", sessionID, "error", err)
		return
	}

	for chunk := range ch {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch c := chunk.(type) {
		case *MessageUpdate:
			s.applyMessageUpdate(c)
		case *UsageUpdate:
			s.applyUsageUpdate(c)
		case *CompactionUpdate:
			s.mu.Lock()
			s.compactions = append(s.compactions, CompactionEvent{
				Trigger:             c.Trigger,
				PreCompactionTokens: c.PreCompactionTokens,
				CreatedAt:           time.Now(),
			})
			s.mu.Unlock()
		case *ErrorUpdate:
			slog.Error("assistant: stream error", "session_id", sessionID, "error", c.Err)
			return
		}
	}
}

// applyMessageUpdate implements dedup-on-update: the same APIMessageID
// updates its row in place; a new id allocates a new row.
func (s *Session) applyMessageUpdate(c *MessageUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if idx, ok := s.idIndex[c.APIMessageID]; ok {
		s.messages[idx].Text = c.Text
		s.messages[idx].Pending = !c.Done
		s.messages[idx].UpdatedAt = now
		if !c.Done {
			s.currentPendingIdx = idx
		} else if s.currentPendingIdx == idx {
			s.currentPendingIdx = -1
		}
		return
	}

	s.messages = append(s.messages, Message{
		ID:           uuid.NewString(),
		APIMessageID: c.APIMessageID,
		Role:         "assistant",
		Text:         c.Text,
		Pending:      !c.Done,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	idx := len(s.messages) - 1
	s.idIndex[c.APIMessageID] = idx
	if !c.Done {
		s.currentPendingIdx = idx
	}
}

func (s *Session) applyUsageUpdate(c *UsageUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ContextWindow <= 0 {
		return
	}
	used := c.InputTokens + c.CacheTokens
	total := c.InputTokens + c.CacheTokens + c.OutputTokens
	usedPercent := 100 * float64(used) / float64(c.ContextWindow)
	s.lastUsage = &ContextUsageSummary{
		UsedPercent:      usedPercent,
		RemainingPercent: 100 - usedPercent,
		TotalTokens:      total,
		ContextWindow:    c.ContextWindow,
	}
}
