package models

import "time"

// TriggerType enumerates the discriminated union of automation triggers
//. Every `on_before_*` member requires Blocking == true.
type TriggerType string

// Trigger type constants.
const (
	TriggerManual               TriggerType = "manual"
	TriggerOnAgentReady          TriggerType = "on_agent_ready"
	TriggerOnBeforeCommit        TriggerType = "on_before_commit"
	TriggerOnAfterCommit         TriggerType = "on_after_commit"
	TriggerOnAfterEditFiles      TriggerType = "on_after_edit_files"
	TriggerOnAfterReadFiles      TriggerType = "on_after_read_files"
	TriggerOnAfterRunCommand     TriggerType = "on_after_run_command"
	TriggerOnBeforePushPR        TriggerType = "on_before_push_pr"
	TriggerOnAfterPushPR         TriggerType = "on_after_push_pr"
	TriggerOnAfterReset          TriggerType = "on_after_reset"
	TriggerOnAutomationFinishes  TriggerType = "on_automation_finishes"
)

// RequiresBlocking reports whether this trigger type mandates Blocking=true
//.
func (t TriggerType) RequiresBlocking() bool {
	switch t {
	case TriggerOnBeforeCommit, TriggerOnBeforePushPR:
		return true
	default:
		return false
	}
}

// TriggerPayload carries the variant-specific filter for a trigger. Only the
// fields relevant to Type are populated; the engine matches by Type and
// reads only the matching field.
type TriggerPayload struct {
	Type TriggerType

	// Glob filters on_after_edit_files / on_after_read_files. Empty = match any.
	Glob string

	// Regex filters on_after_run_command. Empty = match any.
	Regex string

	// AutomationID filters on_automation_finishes: matches only when the
	// finishing automation's id equals this value.
	AutomationID string
}

// ScriptLanguage is the interpreter an automation's script runs under.
type ScriptLanguage string

// Script languages.
const (
	ScriptLanguageBash       ScriptLanguage = "bash"
	ScriptLanguageJavaScript ScriptLanguage = "javascript"
	ScriptLanguagePython     ScriptLanguage = "python"
)

// Automation is a user-owned script bound to a trigger.
type Automation struct {
	ID        string
	UserID    string
	ProjectID string
	Name      string // unique per user+project

	Trigger TriggerPayload

	ScriptLanguage ScriptLanguage
	ScriptContent  string

	Blocking    bool
	FeedOutput  bool

	CreatedAt time.Time
}

// Validate enforces the blocking invariant.
func (a *Automation) Validate() error {
	if a.Trigger.Type.RequiresBlocking() && !a.Blocking {
		return ErrBeforeTriggerMustBlock
	}
	return nil
}

// SecretFile is one path+contents pair injected into an EnvironmentBundle.
type SecretFile struct {
	Path     string
	Contents string
}

// SSHKeyPair is an optional deploy keypair carried by an EnvironmentBundle.
type SSHKeyPair struct {
	PrivateKey string
	PublicKey  string
}

// EnvironmentBundle groups env vars, secret files, an optional SSH keypair,
// and a set of installed automations that an Agent points at.
type EnvironmentBundle struct {
	ID         string
	ProjectID  string
	UserID     string
	Name       string
	EnvContents string // dotenv text
	SecretFiles []SecretFile
	SSHKeyPair  *SSHKeyPair
	// AutomationIDs references automations "installed" in this bundle.
	AutomationIDs []string
	CreatedAt     time.Time
}
