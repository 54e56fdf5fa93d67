package workerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/eventpoller"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// Client is the controller-side counterpart to Server: it seals requests,
// posts them to a single worker's WorkerAPI, and opens the sealed reply.
// One Client is created per agent, keyed on that agent's derived secret.
type Client struct {
	httpClient *http.Client
	baseURL    string
	key        []byte
}

// NewClient builds a Client addressing the worker reachable at baseURL
// (e.g. "http://10.0.4.12:8090"), sealing traffic under key.
func NewClient(baseURL string, key []byte) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		key:        key,
	}
}

func (c *Client) post(ctx context.Context, path string, req, resp any) error {
	env, err := SealJSON(c.key, req)
	if err != nil {
		return fmt.Errorf("seal request: %w", err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("workerapi %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	var respEnv Envelope
	if err := json.NewDecoder(httpResp.Body).Decode(&respEnv); err != nil {
		return fmt.Errorf("workerapi %s: decode response envelope: %w", path, err)
	}

	if httpResp.StatusCode >= 300 {
		var errBody ErrorBody
		if decErr := OpenJSON(c.key, &respEnv, &errBody); decErr == nil && errBody.Error != "" {
			return fmt.Errorf("workerapi %s: %s (status %d)", path, errBody.Error, httpResp.StatusCode)
		}
		return fmt.Errorf("workerapi %s: status %d", path, httpResp.StatusCode)
	}

	if resp == nil {
		return nil
	}
	if err := OpenJSON(c.key, &respEnv, resp); err != nil {
		return fmt.Errorf("workerapi %s: open response: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("workerapi %s: %w", path, err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 300 {
		return fmt.Errorf("workerapi %s: status %d", path, httpResp.StatusCode)
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health")
}

func (c *Client) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	var resp StartResponse
	if err := c.post(ctx, "/start", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Prompt(ctx context.Context, text string) error {
	return c.post(ctx, "/prompt", PromptRequest{Text: text}, &AckResponse{})
}

func (c *Client) Interrupt(ctx context.Context) error {
	return c.post(ctx, "/interrupt", struct{}{}, &AckResponse{})
}

func (c *Client) ClaudeState(ctx context.Context) (*ClaudeStateResponse, error) {
	var resp ClaudeStateResponse
	if err := c.post(ctx, "/claudeState", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GitCommit(ctx context.Context, message string) (*GitCommitResponse, error) {
	var resp GitCommitResponse
	if err := c.post(ctx, "/git-commit", GitCommitRequest{Message: message}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GitPush(ctx context.Context) (*GitPushResponse, error) {
	var resp GitPushResponse
	if err := c.post(ctx, "/git-push", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GitLastCommit(ctx context.Context) (*GitCommitInfo, error) {
	var resp GitCommitInfo
	if err := c.post(ctx, "/git-last-commit", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GitHistory(ctx context.Context) (*GitHistoryResponse, error) {
	var resp GitHistoryResponse
	if err := c.post(ctx, "/git-history", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GenerateCommitName(ctx context.Context, diff string) (string, error) {
	var resp GenerateCommitNameResponse
	if err := c.post(ctx, "/generate-commit-name", GenerateCommitNameRequest{Diff: diff}, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

func (c *Client) GenerateTaskSummary(ctx context.Context, transcript string) (string, error) {
	var resp GenerateTaskSummaryResponse
	if err := c.post(ctx, "/generate-task-summary", GenerateTaskSummaryRequest{Transcript: transcript}, &resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}

func (c *Client) ExecuteAutomations(ctx context.Context, trigger string, vars map[string]any) error {
	return c.post(ctx, "/execute-automations", ExecuteAutomationsRequest{Trigger: trigger, Vars: vars}, &AckResponse{})
}

func (c *Client) StopAutomation(ctx context.Context, automationID string) error {
	return c.post(ctx, "/stop-automation", StopAutomationRequest{AutomationID: automationID}, &AckResponse{})
}

// TriggerManualAutomation is retained for the legacy manual-trigger
// route, superseded by ExecuteAutomations with an explicit trigger name
// for new callers.
func (c *Client) TriggerManualAutomation(ctx context.Context, automationID string) error {
	return c.post(ctx, "/trigger-manual-automation", TriggerManualAutomationRequest{AutomationID: automationID}, &AckResponse{})
}

func (c *Client) RestoreSnapshot(ctx context.Context, presignedURLs []string) error {
	return c.post(ctx, "/restore-snapshot", RestoreSnapshotRequest{PresignedDownloadURLs: presignedURLs}, &AckResponse{})
}

// FetchSnapshot implements eventpoller.WorkerClient from /claudeState
// alone: it reports IsReady, sets IsRunning to its negation, and on a
// transport or worker error returns a not-ready snapshot carrying the
// error text instead of an error. Messages, Commits and AutomationRuns are
// always empty, so the poller gets no message, commit or automation
// events from this client.
func (c *Client) FetchSnapshot(ctx context.Context, agent *models.Agent) (*eventpoller.WorkerSnapshot, error) {
	state, err := c.ClaudeState(ctx)
	if err != nil {
		return &eventpoller.WorkerSnapshot{
			IsReady:      false,
			IsRunning:    false,
			ErrorMessage: strPtr(err.Error()),
		}, nil
	}
	return &eventpoller.WorkerSnapshot{
		IsReady:   state.IsReady,
		IsRunning: !state.IsReady,
	}, nil
}
