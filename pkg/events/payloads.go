package events

// BasePayload is embedded by every payload struct. It guarantees agent_id is
// always present in the JSON so a subscriber can route an event to the right
// agent without unmarshaling the rest of the payload.
type BasePayload struct {
	Type      string `json:"type"`
	AgentID   string `json:"agent_id"`
	Timestamp string `json:"timestamp"` // RFC3339Nano
}

// StateChangedPayload is the payload for agent.state_changed events.
type StateChangedPayload struct {
	BasePayload
	FromState    string `json:"from_state"`
	ToState      string `json:"to_state"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// MessageAppendedPayload is the payload for agent.message_appended events.
type MessageAppendedPayload struct {
	BasePayload
	MessageID   string `json:"message_id"`
	Role        string `json:"role"`
	Content     string `json:"content"`
	IsStreaming bool   `json:"is_streaming"`
}

// CommitRecordedPayload is the payload for agent.commit_recorded events.
type CommitRecordedPayload struct {
	BasePayload
	SHA       string `json:"sha"`
	Message   string `json:"message"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Pushed    bool   `json:"pushed"`
}

// FailurePayload is the payload shared by every fatal-for-agent error kind
// (agent.provisioning_failed, agent.snapshot_restore_failed,
// agent.start_failed, agent.git_failure, agent.assistant_failure,
// agent.cancelled). ErrorKind distinguishes which one fired.
type FailurePayload struct {
	BasePayload
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// AutomationEventPayload is the payload for automation.started,
// automation.finished, and agent.automation_failure events.
type AutomationEventPayload struct {
	BasePayload
	AutomationID string `json:"automation_id"`
	RunID        string `json:"run_id"`
	TriggeredBy  string `json:"triggered_by"`
	ExitCode     *int   `json:"exit_code,omitempty"`
}

// StreamDeltaPayload is the payload for agent.stream_delta transient events
// — one incremental token from the assistant's streaming response.
type StreamDeltaPayload struct {
	BasePayload
	MessageID string `json:"message_id"`
	Delta     string `json:"delta"`
}
