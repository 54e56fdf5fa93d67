package workerapi

// StartRequest is the sealed body of POST /start.
type StartRequest struct {
	SetupMode              string           `json:"setupMode"` // "existing" | "git-clone" | "git-clone-public" | "zip-local" | "local"
	Branch                 string           `json:"branch"`
	GitCredentials         *GitCredentials  `json:"gitCredentials,omitempty"`
	Automations            []AutomationSpec `json:"automations,omitempty"`
	DontSendInitialMessage bool             `json:"dontSendInitialMessage"`

	// LocalPath is the caller-provided existing working directory for
	// SetupMode "local".
	LocalPath string `json:"localPath,omitempty"`
	// BundlePath/PatchPath locate the on-host artifacts for SetupMode
	// "zip-local". An empty BundlePath with a non-incremental request
	// means `git init` on an empty tree.
	BundlePath            string `json:"bundlePath,omitempty"`
	PatchPath             string `json:"patchPath,omitempty"`
	IncrementalBaseCommit string `json:"incrementalBaseCommit,omitempty"`
	IncrementalRemoteURL  string `json:"incrementalRemoteUrl,omitempty"`
}

// GitCredentials carries what ProjectSetup needs to clone/push over HTTPS.
type GitCredentials struct {
	RemoteURL string `json:"remoteUrl"`
	Token     string `json:"token,omitempty"`
}

// AutomationSpec is the subset of an Automation the worker needs to run it,
// sent once at /start and held in the worker's in-memory automation engine
// for the lifetime of the agent.
type AutomationSpec struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	TriggerType         string `json:"triggerType"`
	TriggerGlob         string `json:"triggerGlob,omitempty"`
	TriggerRegex        string `json:"triggerRegex,omitempty"`
	TriggerAutomationID string `json:"triggerAutomationId,omitempty"`

	ScriptLanguage string `json:"scriptLanguage"`
	ScriptContent  string `json:"scriptContent"`

	Blocking   bool `json:"blocking"`
	FeedOutput bool `json:"feedOutput"`
}

// StartResponse is the sealed body POST /start replies with.
type StartResponse struct {
	Status                        string  `json:"status"`
	GitInfoStatus                 string  `json:"gitInfoStatus"`
	StartCommitSha                *string `json:"startCommitSha,omitempty"`
	GitHistoryLastPushedCommitSha *string `json:"gitHistoryLastPushedCommitSha,omitempty"`
	GitInfoError                  *string `json:"gitInfoError,omitempty"`
}

// PromptRequest is the sealed body of POST /prompt.
type PromptRequest struct {
	Text string `json:"text"`
}

// ClaudeStateResponse is the sealed body POST /claudeState replies with.
type ClaudeStateResponse struct {
	IsReady               bool     `json:"isReady"`
	HasBlockingAutomation bool     `json:"hasBlockingAutomation"`
	BlockingAutomationIDs []string `json:"blockingAutomationIds"`
	ContextUsage          *float64 `json:"contextUsage,omitempty"`
}

// GitCommitRequest is the sealed body of POST /git-commit.
type GitCommitRequest struct {
	Message string `json:"message"`
}

// GitCommitResponse is the sealed body POST /git-commit replies with.
type GitCommitResponse struct {
	Sha       string `json:"sha"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// GitPushResponse is the sealed body POST /git-push replies with.
type GitPushResponse struct {
	Pushed bool   `json:"pushed"`
	URL    string `json:"url,omitempty"`
}

// GitCommitInfo describes one commit in /git-history's reply.
type GitCommitInfo struct {
	Sha       string `json:"sha"`
	Message   string `json:"message"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Pushed    bool   `json:"pushed"`
}

// GitHistoryResponse is the sealed body POST /git-history replies with.
type GitHistoryResponse struct {
	Commits []GitCommitInfo `json:"commits"`
}

// GenerateCommitNameRequest is the sealed body of POST /generate-commit-name.
type GenerateCommitNameRequest struct {
	Diff string `json:"diff"`
}

// GenerateCommitNameResponse is the sealed body POST /generate-commit-name
// replies with.
type GenerateCommitNameResponse struct {
	Name string `json:"name"`
}

// GenerateTaskSummaryRequest is the sealed body of POST /generate-task-summary.
type GenerateTaskSummaryRequest struct {
	Transcript string `json:"transcript"`
}

// GenerateTaskSummaryResponse is the sealed body POST /generate-task-summary
// replies with.
type GenerateTaskSummaryResponse struct {
	Summary string `json:"summary"`
}

// ExecuteAutomationsRequest is the sealed body of POST /execute-automations.
type ExecuteAutomationsRequest struct {
	Trigger string         `json:"trigger"`
	Vars    map[string]any `json:"vars,omitempty"`
}

// StopAutomationRequest is the sealed body of POST /stop-automation.
type StopAutomationRequest struct {
	AutomationID string `json:"automationId"`
}

// TriggerManualAutomationRequest is the sealed body of
// POST /trigger-manual-automation.
type TriggerManualAutomationRequest struct {
	AutomationID string `json:"automationId"`
}

// RestoreSnapshotRequest is the sealed body of POST /restore-snapshot.
type RestoreSnapshotRequest struct {
	PresignedDownloadURL  string   `json:"presignedDownloadUrl,omitempty"`
	PresignedDownloadURLs []string `json:"presignedDownloadUrls,omitempty"`
}

// AckResponse is a minimal {status} acknowledgement used by the
// fire-and-forget endpoints (interrupt, stop-automation, etc).
type AckResponse struct {
	Status string `json:"status"`
}
