// Package assistant implements the worker-side AssistantSession: a
// mutex-guarded wrapper around one streaming LLM conversation.
//
// Uses an in-memory, mutex-guarded message-list idiom, with a
// chunk-channel streaming contract (Generate returning <-chan Chunk) and
// a delta-collection pattern for assembling a message out of its chunks,
// applied here to a single long-lived conversation rather than one-shot
// tool calls.
package assistant

import (
	"context"
	"time"
)

// Message is one acknowledged turn in the conversation.
type Message struct {
	ID           string // session-owned uuid, stable across dedup-on-update
	APIMessageID string // upstream assistant's message id
	Role         string // "user" | "assistant"
	Text         string
	Pending      bool // true while the assistant is still streaming this message
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CompactionEvent records a `compact_boundary` system event emitted by
// the underlying assistant.
type CompactionEvent struct {
	Trigger             string
	PreCompactionTokens int
	CreatedAt           time.Time
}

// ContextUsageSummary is computed from the last assistant message's token
// usage.
type ContextUsageSummary struct {
	UsedPercent      float64
	RemainingPercent float64
	TotalTokens      int
	ContextWindow    int
}

// Chunk is the sum type yielded by a Client's Generate stream.
type Chunk interface{ isChunk() }

// MessageUpdate carries the assistant's current view of one message,
// possibly re-yielded several times as its content grows; callers dedup
// on update by APIMessageID.
type MessageUpdate struct {
	APIMessageID string
	Text         string
	Done         bool
}

// UsageUpdate carries token accounting for the in-flight assistant message.
type UsageUpdate struct {
	InputTokens   int
	CacheTokens   int
	OutputTokens  int
	ContextWindow int
}

// CompactionUpdate signals a `compact_boundary` system event.
type CompactionUpdate struct {
	Trigger             string
	PreCompactionTokens int
}

// ErrorUpdate terminates the stream with an error.
type ErrorUpdate struct{ Err error }

func (*MessageUpdate) isChunk()    {}
func (*UsageUpdate) isChunk()      {}
func (*CompactionUpdate) isChunk() {}
func (*ErrorUpdate) isChunk()      {}

// Client is the transport to the underlying streaming assistant. Generate
// starts one turn and returns a channel of Chunks, closed when the turn
// ends.
type Client interface {
	Generate(ctx context.Context, sessionID string, messages []Message, model string) (<-chan Chunk, error)
}
