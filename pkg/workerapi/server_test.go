package workerapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssistant struct {
	ready   bool
	usage   *float64
	prompts []string
	interrupted int
}

func (f *fakeAssistant) Submit(ctx context.Context, text string) error {
	f.prompts = append(f.prompts, text)
	return nil
}
func (f *fakeAssistant) Interrupt(ctx context.Context) error { f.interrupted++; return nil }
func (f *fakeAssistant) IsReady() bool                       { return f.ready }
func (f *fakeAssistant) ContextUsage() *float64              { return f.usage }

type fakeAutomationRunner struct {
	blocking    bool
	blockingIDs []string
	executed    []string
	stopped     []string
	triggered   []string
}

func (f *fakeAutomationRunner) BlockingState() (bool, []string) { return f.blocking, f.blockingIDs }
func (f *fakeAutomationRunner) Execute(ctx context.Context, trigger string, vars map[string]any) error {
	f.executed = append(f.executed, trigger)
	return nil
}
func (f *fakeAutomationRunner) Stop(ctx context.Context, automationID string) error {
	f.stopped = append(f.stopped, automationID)
	return nil
}
func (f *fakeAutomationRunner) TriggerManual(ctx context.Context, automationID string) error {
	f.triggered = append(f.triggered, automationID)
	return nil
}

type fakeGitOps struct {
	commitSha string
	last      *GitCommitInfo
	history   []GitCommitInfo
}

func (f *fakeGitOps) Commit(ctx context.Context, message string) (string, int, int, error) {
	return f.commitSha, 3, 1, nil
}
func (f *fakeGitOps) Push(ctx context.Context) (bool, string, error) { return true, "https://example.invalid/repo", nil }
func (f *fakeGitOps) LastCommit(ctx context.Context) (*GitCommitInfo, error) { return f.last, nil }
func (f *fakeGitOps) History(ctx context.Context) ([]GitCommitInfo, error)  { return f.history, nil }

type fakeProjectSetup struct {
	resp *StartResponse
}

func (f *fakeProjectSetup) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	return f.resp, nil
}

type fakeSnapshotRestorer struct {
	restoredURLs []string
}

func (f *fakeSnapshotRestorer) Restore(ctx context.Context, urls []string) error {
	f.restoredURLs = urls
	return nil
}

type fakeHaiku struct{}

func (fakeHaiku) GenerateCommitName(ctx context.Context, diff string) (string, error) {
	return "fix-thing", nil
}
func (fakeHaiku) GenerateTaskSummary(ctx context.Context, transcript string) (string, error) {
	return "did the thing", nil
}

func newTestServer(t *testing.T) (*Server, []byte, *fakeAssistant, *fakeAutomationRunner, *fakeGitOps, *fakeProjectSetup, *fakeSnapshotRestorer) {
	t.Helper()
	key, err := DeriveKey([]byte("test-agent-secret"))
	require.NoError(t, err)

	assistant := &fakeAssistant{ready: true}
	automation := &fakeAutomationRunner{}
	git := &fakeGitOps{commitSha: "abc123", last: &GitCommitInfo{Sha: "abc123"}}
	projectSetup := &fakeProjectSetup{resp: &StartResponse{Status: "ok", GitInfoStatus: "ok"}}
	snapshots := &fakeSnapshotRestorer{}

	s := NewServer(key, assistant, automation, git, projectSetup, snapshots, fakeHaiku{})
	return s, key, assistant, automation, git, projectSetup, snapshots
}

func TestValidateWiringFailsWhenDependencyMissing(t *testing.T) {
	key, err := DeriveKey([]byte("secret"))
	require.NoError(t, err)
	s := NewServer(key, nil, &fakeAutomationRunner{}, &fakeGitOps{}, &fakeProjectSetup{}, &fakeSnapshotRestorer{}, fakeHaiku{})
	assert.Error(t, s.ValidateWiring())
}

func TestValidateWiringSucceedsWhenComplete(t *testing.T) {
	s, _, _, _, _, _, _ := newTestServer(t)
	assert.NoError(t, s.ValidateWiring())
}

func TestHealthHandlerRespondsOK(t *testing.T) {
	s, _, _, _, _, _, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestPromptHandlerRoundTripsThroughEnvelope(t *testing.T) {
	s, key, assistant, _, _, _, _ := newTestServer(t)

	env, err := SealJSON(key, PromptRequest{Text: "hello agent"})
	require.NoError(t, err)
	body, err := marshalEnvelope(env)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/prompt", body)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, 202, rec.Code)
	assert.Equal(t, []string{"hello agent"}, assistant.prompts)
}

func TestClaudeStateHandlerReflectsBlockingAutomation(t *testing.T) {
	s, key, assistant, automation, _, _, _ := newTestServer(t)
	assistant.ready = true
	automation.blocking = true
	automation.blockingIDs = []string{"auto-1"}

	req := httptest.NewRequest("POST", "/claudeState", emptyEnvelopeBody(t, key))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var env Envelope
	decodeBody(t, rec, &env)
	var resp ClaudeStateResponse
	require.NoError(t, OpenJSON(key, &env, &resp))
	assert.False(t, resp.IsReady, "blocking automation must force not-ready")
	assert.Equal(t, []string{"auto-1"}, resp.BlockingAutomationIDs)
}

func TestBindSealedRejectsWrongKey(t *testing.T) {
	s, _, _, _, _, _, _ := newTestServer(t)
	otherKey, err := DeriveKey([]byte("a-different-secret"))
	require.NoError(t, err)

	env, err := SealJSON(otherKey, PromptRequest{Text: "hi"})
	require.NoError(t, err)
	body, err := marshalEnvelope(env)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/prompt", body)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestRestoreSnapshotHandlerPrefersPluralURLsField(t *testing.T) {
	s, key, _, _, _, _, snapshots := newTestServer(t)
	env, err := SealJSON(key, RestoreSnapshotRequest{
		PresignedDownloadURL:  "https://example.invalid/single",
		PresignedDownloadURLs: []string{"https://example.invalid/a", "https://example.invalid/b"},
	})
	require.NoError(t, err)
	body, err := marshalEnvelope(env)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/restore-snapshot", body)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, []string{"https://example.invalid/a", "https://example.invalid/b"}, snapshots.restoredURLs)
}
