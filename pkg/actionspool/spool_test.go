package actionspool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	stopped bool
	prompts []string
}

func (h *fakeHandler) StopAgent(ctx context.Context) error {
	h.stopped = true
	return nil
}

func (h *fakeHandler) QueuePrompt(ctx context.Context, text string) error {
	h.prompts = append(h.prompts, text)
	return nil
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestPollOnceForwardsStopAgent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"type":"stop_agent","automationId":"a1","automationName":"x"}`)

	h := &fakeHandler{}
	s := NewSpool(dir, h, time.Second)
	s.PollOnce(context.Background())

	assert.True(t, h.stopped)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestPollOnceForwardsQueuePrompt(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"type":"queue_prompt","automationId":"a1","automationName":"x","payload":{"promptText":"hello"}}`)

	h := &fakeHandler{}
	s := NewSpool(dir, h, time.Second)
	s.PollOnce(context.Background())

	assert.Equal(t, []string{"hello"}, h.prompts)
}

func TestPollOnceDropsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `{not json`)

	h := &fakeHandler{}
	s := NewSpool(dir, h, time.Second)
	s.PollOnce(context.Background())

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
	assert.False(t, h.stopped)
}

func TestPollOnceIgnoresNonJSONFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.txt", "not an action")

	h := &fakeHandler{}
	s := NewSpool(dir, h, time.Second)
	s.PollOnce(context.Background())

	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1)
}

func TestStartStopIsIdempotent(t *testing.T) {
	s := NewSpool(t.TempDir(), &fakeHandler{}, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx)
	s.Stop()
	s.Stop()
}
