package assistant

import "time"

// timeLayout is the wire format for every timestamp in ExportedState (spec
// §4.6: "Timestamps are converted to/from strings transparently").
const timeLayout = time.RFC3339Nano

// ExportedMessage is Message with timestamps as strings, for JSON transport
// across a fork/resume boundary.
type ExportedMessage struct {
	ID           string `json:"id"`
	APIMessageID string `json:"apiMessageId,omitempty"`
	Role         string `json:"role"`
	Text         string `json:"text"`
	Pending      bool   `json:"pending"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

// ExportedCompaction is CompactionEvent with a string timestamp.
type ExportedCompaction struct {
	Trigger             string `json:"trigger"`
	PreCompactionTokens int    `json:"preCompactionTokens"`
	CreatedAt           string `json:"createdAt"`
}

// ExportedState is the full serializable snapshot of a Session, used by
// fork (copy into a new worker) and reboot/resume (restore into the same
// worker after a restart or snapshot restore).
type ExportedState struct {
	SessionID         string                `json:"sessionId"`
	Messages          []ExportedMessage     `json:"messages"`
	PastConversations [][]ExportedMessage   `json:"pastConversations,omitempty"`
	Compactions       []ExportedCompaction  `json:"compactions,omitempty"`
	LastUsage         *ContextUsageSummary  `json:"lastUsage,omitempty"`
}

// ExportState snapshots the session for fork/resume.
func (s *Session) ExportState() ExportedState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := ExportedState{
		SessionID: s.sessionID,
		Messages:  exportMessages(s.messages),
		LastUsage: s.lastUsage,
	}
	for _, past := range s.pastConversations {
		state.PastConversations = append(state.PastConversations, exportMessages(past))
	}
	for _, c := range s.compactions {
		state.Compactions = append(state.Compactions, ExportedCompaction{
			Trigger:             c.Trigger,
			PreCompactionTokens: c.PreCompactionTokens,
			CreatedAt:           c.CreatedAt.Format(timeLayout),
		})
	}
	return state
}

// RestoreState replaces the session's in-memory state with a previously
// exported snapshot. Malformed timestamps fall back to the zero time
// rather than failing the whole restore.
func (s *Session) RestoreState(state ExportedState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionID = state.SessionID
	s.messages = importMessages(state.Messages)
	s.idIndex = make(map[string]int, len(s.messages))
	s.currentPendingIdx = -1
	for i, m := range s.messages {
		if m.APIMessageID != "" {
			s.idIndex[m.APIMessageID] = i
		}
		if m.Pending {
			s.currentPendingIdx = i
		}
	}

	s.pastConversations = nil
	for _, past := range state.PastConversations {
		s.pastConversations = append(s.pastConversations, importMessages(past))
	}

	s.compactions = nil
	for _, c := range state.Compactions {
		s.compactions = append(s.compactions, CompactionEvent{
			Trigger:             c.Trigger,
			PreCompactionTokens: c.PreCompactionTokens,
			CreatedAt:           parseTime(c.CreatedAt),
		})
	}
	s.lastUsage = state.LastUsage
	s.streaming = false
	s.cancelFunc = nil
}

func exportMessages(msgs []Message) []ExportedMessage {
	out := make([]ExportedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ExportedMessage{
			ID:           m.ID,
			APIMessageID: m.APIMessageID,
			Role:         m.Role,
			Text:         m.Text,
			Pending:      m.Pending,
			CreatedAt:    m.CreatedAt.Format(timeLayout),
			UpdatedAt:    m.UpdatedAt.Format(timeLayout),
		}
	}
	return out
}

func importMessages(msgs []ExportedMessage) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{
			ID:           m.ID,
			APIMessageID: m.APIMessageID,
			Role:         m.Role,
			Text:         m.Text,
			Pending:      m.Pending,
			CreatedAt:    parseTime(m.CreatedAt),
			UpdatedAt:    parseTime(m.UpdatedAt),
		}
	}
	return out
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
