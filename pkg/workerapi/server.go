package workerapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// AssistantSession is the subset of pkg/assistant's session object the
// worker boundary needs to drive: submit a prompt, interrupt the current
// one, and report whether the underlying LLM loop is idle.
type AssistantSession interface {
	Submit(ctx context.Context, text string) error
	Interrupt(ctx context.Context) error
	IsReady() bool
	ContextUsage() *float64
}

// AutomationRunner is the subset of pkg/automation's engine the worker
// boundary needs: current blocking state, fire-and-forget execution and
// cancellation.
type AutomationRunner interface {
	BlockingState() (hasBlocking bool, blockingIDs []string)
	Execute(ctx context.Context, trigger string, vars map[string]any) error
	Stop(ctx context.Context, automationID string) error
	TriggerManual(ctx context.Context, automationID string) error
}

// GitOps is the subset of pkg/projectsetup's git helper the worker
// boundary needs for the `/git-*` endpoints.
type GitOps interface {
	Commit(ctx context.Context, message string) (sha string, additions, deletions int, err error)
	Push(ctx context.Context) (pushed bool, url string, err error)
	LastCommit(ctx context.Context) (*GitCommitInfo, error)
	History(ctx context.Context) ([]GitCommitInfo, error)
}

// ProjectSetup is the subset of pkg/projectsetup the worker boundary needs
// to service `/start`.
type ProjectSetup interface {
	Start(ctx context.Context, req StartRequest) (*StartResponse, error)
}

// SnapshotRestorer is the subset of the worker's local filesystem-restore
// logic the boundary needs for `/restore-snapshot`.
type SnapshotRestorer interface {
	Restore(ctx context.Context, urls []string) error
}

// HaikuHelper generates the small LLM-assisted strings used by
// `/generate-commit-name` and `/generate-task-summary`.
type HaikuHelper interface {
	GenerateCommitName(ctx context.Context, diff string) (string, error)
	GenerateTaskSummary(ctx context.Context, transcript string) (string, error)
}

// Server is the worker's encrypted HTTP boundary. Every dependency passed
// to NewServer is required; ValidateWiring catches a missing one at startup rather than
// a nil-pointer panic at request time.
type Server struct {
	echo *echo.Echo
	key  []byte

	assistant    AssistantSession
	automation   AutomationRunner
	git          GitOps
	projectSetup ProjectSetup
	snapshots    SnapshotRestorer
	haiku        HaikuHelper
}

// NewServer builds the worker's HTTP boundary. key is the per-agent
// symmetric key derived via DeriveKey at provisioning.
func NewServer(key []byte, assistant AssistantSession, automation AutomationRunner, git GitOps, projectSetup ProjectSetup, snapshots SnapshotRestorer, haiku HaikuHelper) *Server {
	e := echo.New()
	s := &Server{
		echo:         e,
		key:          key,
		assistant:    assistant,
		automation:   automation,
		git:          git,
		projectSetup: projectSetup,
		snapshots:    snapshots,
		haiku:        haiku,
	}
	s.setupRoutes()
	return s
}

// ValidateWiring checks that every dependency was supplied.
func (s *Server) ValidateWiring() error {
	var missing []string
	if s.assistant == nil {
		missing = append(missing, "assistant")
	}
	if s.automation == nil {
		missing = append(missing, "automation")
	}
	if s.git == nil {
		missing = append(missing, "git")
	}
	if s.projectSetup == nil {
		missing = append(missing, "projectSetup")
	}
	if s.snapshots == nil {
		missing = append(missing, "snapshots")
	}
	if s.haiku == nil {
		missing = append(missing, "haiku")
	}
	if len(missing) > 0 {
		return &wiringError{missing: missing}
	}
	return nil
}

type wiringError struct{ missing []string }

func (e *wiringError) Error() string {
	msg := "workerapi server wiring incomplete, missing:"
	for _, m := range e.missing {
		msg += " " + m
	}
	return msg
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)

	s.echo.POST("/start", s.startHandler)
	s.echo.POST("/prompt", s.promptHandler)
	s.echo.POST("/interrupt", s.interruptHandler)
	s.echo.POST("/claudeState", s.claudeStateHandler)

	s.echo.POST("/git-commit", s.gitCommitHandler)
	s.echo.POST("/git-push", s.gitPushHandler)
	s.echo.POST("/git-last-commit", s.gitLastCommitHandler)
	s.echo.POST("/git-history", s.gitHistoryHandler)

	s.echo.POST("/generate-commit-name", s.generateCommitNameHandler)
	s.echo.POST("/generate-task-summary", s.generateTaskSummaryHandler)

	s.echo.POST("/execute-automations", s.executeAutomationsHandler)
	s.echo.POST("/stop-automation", s.stopAutomationHandler)
	s.echo.POST("/trigger-manual-automation", s.triggerManualAutomationHandler)

	s.echo.POST("/restore-snapshot", s.restoreSnapshotHandler)
}

// ServeHTTP lets Server be plugged straight into net/http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// bindSealed decodes the JSON request envelope (whatever the request's
// Content-Type) and opens it into dst. On failure it writes a plaintext
// {error} 400 and returns the error (callers should `return` it straight
// from the handler).
func (s *Server) bindSealed(c *echo.Context, dst any) error {
	var env Envelope
	if err := json.NewDecoder(c.Request().Body).Decode(&env); err != nil {
		_ = c.JSON(http.StatusBadRequest, ErrorBody{Error: "invalid envelope: " + err.Error()})
		return err
	}
	if err := OpenJSON(s.key, &env, dst); err != nil {
		_ = c.JSON(http.StatusBadRequest, ErrorBody{Error: "cannot decrypt envelope"})
		return err
	}
	return nil
}

// replySealed seals v and writes it with status, or a plaintext 500 on a
// sealing failure (which should never happen with a valid key).
func (s *Server) replySealed(c *echo.Context, status int, v any) error {
	env, err := SealJSON(s.key, v)
	if err != nil {
		slog.Error("workerapi: seal response failed", "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorBody{Error: "failed to seal response"})
	}
	return c.JSON(status, env)
}

func (s *Server) startHandler(c *echo.Context) error {
	var req StartRequest
	if err := s.bindSealed(c, &req); err != nil {
		return err
	}

	resp, err := s.projectSetup.Start(c.Request().Context(), req)
	if err != nil {
		slog.Error("workerapi: start failed", "error", err)
		return s.replySealed(c, http.StatusInternalServerError, &StartResponse{
			Status:        "error",
			GitInfoStatus: "error",
			GitInfoError:  strPtr(err.Error()),
		})
	}
	return s.replySealed(c, http.StatusOK, resp)
}

func (s *Server) promptHandler(c *echo.Context) error {
	var req PromptRequest
	if err := s.bindSealed(c, &req); err != nil {
		return err
	}
	if err := s.assistant.Submit(c.Request().Context(), req.Text); err != nil {
		return s.replySealed(c, http.StatusInternalServerError, AckResponse{Status: "error: " + err.Error()})
	}
	return s.replySealed(c, http.StatusAccepted, AckResponse{Status: "accepted"})
}

func (s *Server) interruptHandler(c *echo.Context) error {
	if err := s.assistant.Interrupt(c.Request().Context()); err != nil {
		return s.replySealed(c, http.StatusInternalServerError, AckResponse{Status: "error: " + err.Error()})
	}
	return s.replySealed(c, http.StatusOK, AckResponse{Status: "interrupted"})
}

func (s *Server) claudeStateHandler(c *echo.Context) error {
	hasBlocking, blockingIDs := s.automation.BlockingState()
	return s.replySealed(c, http.StatusOK, &ClaudeStateResponse{
		IsReady:               s.assistant.IsReady() && !hasBlocking,
		HasBlockingAutomation: hasBlocking,
		BlockingAutomationIDs: blockingIDs,
		ContextUsage:          s.assistant.ContextUsage(),
	})
}

func (s *Server) gitCommitHandler(c *echo.Context) error {
	var req GitCommitRequest
	if err := s.bindSealed(c, &req); err != nil {
		return err
	}
	sha, additions, deletions, err := s.git.Commit(c.Request().Context(), req.Message)
	if err != nil {
		return s.replySealed(c, http.StatusInternalServerError, ErrorBody{Error: err.Error()})
	}
	return s.replySealed(c, http.StatusOK, &GitCommitResponse{Sha: sha, Additions: additions, Deletions: deletions})
}

func (s *Server) gitPushHandler(c *echo.Context) error {
	pushed, url, err := s.git.Push(c.Request().Context())
	if err != nil {
		return s.replySealed(c, http.StatusInternalServerError, ErrorBody{Error: err.Error()})
	}
	return s.replySealed(c, http.StatusOK, &GitPushResponse{Pushed: pushed, URL: url})
}

func (s *Server) gitLastCommitHandler(c *echo.Context) error {
	info, err := s.git.LastCommit(c.Request().Context())
	if err != nil {
		return s.replySealed(c, http.StatusInternalServerError, ErrorBody{Error: err.Error()})
	}
	return s.replySealed(c, http.StatusOK, info)
}

func (s *Server) gitHistoryHandler(c *echo.Context) error {
	commits, err := s.git.History(c.Request().Context())
	if err != nil {
		return s.replySealed(c, http.StatusInternalServerError, ErrorBody{Error: err.Error()})
	}
	return s.replySealed(c, http.StatusOK, &GitHistoryResponse{Commits: commits})
}

func (s *Server) generateCommitNameHandler(c *echo.Context) error {
	var req GenerateCommitNameRequest
	if err := s.bindSealed(c, &req); err != nil {
		return err
	}
	name, err := s.haiku.GenerateCommitName(c.Request().Context(), req.Diff)
	if err != nil {
		// Small LLM helper: fall back rather than fail the caller outright.
		name = "update"
	}
	return s.replySealed(c, http.StatusOK, &GenerateCommitNameResponse{Name: name})
}

func (s *Server) generateTaskSummaryHandler(c *echo.Context) error {
	var req GenerateTaskSummaryRequest
	if err := s.bindSealed(c, &req); err != nil {
		return err
	}
	summary, err := s.haiku.GenerateTaskSummary(c.Request().Context(), req.Transcript)
	if err != nil {
		summary = ""
	}
	return s.replySealed(c, http.StatusOK, &GenerateTaskSummaryResponse{Summary: summary})
}

func (s *Server) executeAutomationsHandler(c *echo.Context) error {
	var req ExecuteAutomationsRequest
	if err := s.bindSealed(c, &req); err != nil {
		return err
	}
	if err := s.automation.Execute(c.Request().Context(), req.Trigger, req.Vars); err != nil {
		return s.replySealed(c, http.StatusInternalServerError, ErrorBody{Error: err.Error()})
	}
	return s.replySealed(c, http.StatusAccepted, AckResponse{Status: "accepted"})
}

func (s *Server) stopAutomationHandler(c *echo.Context) error {
	var req StopAutomationRequest
	if err := s.bindSealed(c, &req); err != nil {
		return err
	}
	if err := s.automation.Stop(c.Request().Context(), req.AutomationID); err != nil {
		return s.replySealed(c, http.StatusInternalServerError, ErrorBody{Error: err.Error()})
	}
	return s.replySealed(c, http.StatusOK, AckResponse{Status: "stopped"})
}

func (s *Server) triggerManualAutomationHandler(c *echo.Context) error {
	var req TriggerManualAutomationRequest
	if err := s.bindSealed(c, &req); err != nil {
		return err
	}
	if err := s.automation.TriggerManual(c.Request().Context(), req.AutomationID); err != nil {
		return s.replySealed(c, http.StatusInternalServerError, ErrorBody{Error: err.Error()})
	}
	return s.replySealed(c, http.StatusAccepted, AckResponse{Status: "accepted"})
}

func (s *Server) restoreSnapshotHandler(c *echo.Context) error {
	var req RestoreSnapshotRequest
	if err := s.bindSealed(c, &req); err != nil {
		return err
	}

	urls := req.PresignedDownloadURLs
	if len(urls) == 0 && req.PresignedDownloadURL != "" {
		urls = []string{req.PresignedDownloadURL}
	}
	if err := s.snapshots.Restore(c.Request().Context(), urls); err != nil {
		return s.replySealed(c, http.StatusInternalServerError, ErrorBody{Error: err.Error()})
	}
	return s.replySealed(c, http.StatusOK, AckResponse{Status: "restored"})
}

func strPtr(s string) *string { return &s }
