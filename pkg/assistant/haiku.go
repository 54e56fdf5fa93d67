package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Haiku generates the small LLM-assisted strings the worker's
// /generate-commit-name and /generate-task-summary routes produce. It
// issues a single one-shot Generate call against the same Client a
// Session drives, rather than opening a second transport, since both are
// the same "ask the assistant for a short string" shape.
type Haiku struct {
	client Client
	model  string
}

// NewHaiku builds a Haiku helper against client, using model for every
// generation call.
func NewHaiku(client Client, model string) *Haiku {
	return &Haiku{client: client, model: model}
}

// GenerateCommitName asks for a short git-branch-safe commit summary given
// a diff.
func (h *Haiku) GenerateCommitName(ctx context.Context, diff string) (string, error) {
	prompt := fmt.Sprintf("Summarize this diff as a short, imperative git commit message (one line, no quotes):\n\n%s", diff)
	return h.oneShot(ctx, prompt)
}

// GenerateTaskSummary asks for a short human-readable summary of the
// conversation so far, used as the agent's TaskSummary.
func (h *Haiku) GenerateTaskSummary(ctx context.Context, transcript string) (string, error) {
	prompt := fmt.Sprintf("Summarize what this coding session accomplished in one short sentence:\n\n%s", transcript)
	return h.oneShot(ctx, prompt)
}

// oneShot drives a single-turn Generate call and collects the streamed
// text into one string.
func (h *Haiku) oneShot(ctx context.Context, prompt string) (string, error) {
	msgs := []Message{{ID: uuid.NewString(), Role: "user", Text: prompt}}
	chunks, err := h.client.Generate(ctx, uuid.NewString(), msgs, h.model)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	var sb strings.Builder
	for chunk := range chunks {
		switch c := chunk.(type) {
		case *MessageUpdate:
			sb.Reset()
			sb.WriteString(c.Text)
		case *ErrorUpdate:
			return "", fmt.Errorf("generate: %w", c.Err)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
