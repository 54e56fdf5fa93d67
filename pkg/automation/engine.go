// Package automation implements the worker-side AutomationEngine: on each
// trigger it matches installed automations against the firing event,
// synthesizes a script with injected variables, executes it with output
// capture, and tracks which automations are currently blocking prompt
// admission.
//
// Uses a worker-pool-style idiom of a run registry keyed by id, applied
// here as a per-automation run registry. Every matched automation runs in
// its own goroutine; the number of concurrent runs is not bounded. Polling
// of the action spool is not done here (see pkg/actionspool).
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// reserved variable names the controller sets on trigger-matching calls.
// These are consumed by the matcher and are never passed through to the
// script's own variable set.
const (
	varPath               = "path"
	varCommand            = "command"
	varFinishedAutomation = "finishedAutomationId"
)

// run tracks one in-flight or completed automation execution.
type run struct {
	automationID string
	pid          int
	output       *ringBuffer
	done         chan struct{}
	killed       bool
}

// Engine is the worker's AutomationEngine. It satisfies
// pkg/workerapi.AutomationRunner.
type Engine struct {
	workDir string
	tempDir string

	mu          sync.Mutex
	automations map[string]*models.Automation
	blocking    map[string]struct{}
	active      map[string]*run
	suppressed  map[int]struct{}

	runner execRunner

	// OnRunFinished, if set, is called with the completed run record.
	// Never called while the engine's mutex is held.
	OnRunFinished func(*models.AutomationRun)
}

// NewEngine builds an Engine rooted at workDir (the project checkout) with
// tempDir used for file-backed variable overflow, under a "vars/"
// subdirectory.
func NewEngine(workDir, tempDir string, automations []*models.Automation) *Engine {
	e := &Engine{
		workDir:     workDir,
		tempDir:     tempDir,
		automations: make(map[string]*models.Automation, len(automations)),
		blocking:    make(map[string]struct{}),
		active:      make(map[string]*run),
		suppressed:  make(map[int]struct{}),
		runner:      osExecRunner{},
	}
	for _, a := range automations {
		e.automations[a.ID] = a
	}
	return e
}

// BlockingState reports whether any blocking automation is currently
// running, and which ones; feeds POST /claudeState.
func (e *Engine) BlockingState() (bool, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.blocking) == 0 {
		return false, nil
	}
	ids := make([]string, 0, len(e.blocking))
	for id := range e.blocking {
		ids = append(ids, id)
	}
	return true, ids
}

// Execute matches every installed automation against trigger+vars and runs
// each match concurrently: independent non-blocking automations run in
// parallel.
func (e *Engine) Execute(ctx context.Context, trigger string, vars map[string]any) error {
	matched := e.matchAutomations(models.TriggerType(trigger), vars)
	for _, a := range matched {
		e.startRun(ctx, a, vars)
	}
	return nil
}

// TriggerManual runs a single automation by id regardless of its declared
// trigger, bypassing matching.
func (e *Engine) TriggerManual(ctx context.Context, automationID string) error {
	e.mu.Lock()
	a, ok := e.automations[automationID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("automation %s: not found", automationID)
	}
	e.startRun(ctx, a, nil)
	return nil
}

// Stop sends SIGTERM to automationID's root process and registers its PID
// in the suppress set so the close handler reports a user-initiated kill
// instead of a spontaneous failure.
func (e *Engine) Stop(ctx context.Context, automationID string) error {
	e.mu.Lock()
	r, ok := e.active[automationID]
	if ok {
		r.killed = true
		e.suppressed[r.pid] = struct{}{}
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return e.runner.Signal(r.pid)
}

// KillAll terminates every currently running automation. It is not part of
// the pkg/workerapi.AutomationRunner interface and nothing in this module
// calls it: the worker's /interrupt handler interrupts only the assistant
// session, so running automations keep running.
func (e *Engine) KillAll(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		if err := e.Stop(ctx, id); err != nil {
			slog.Warn("automation: killAll signal failed", "automation_id", id, "error", err)
		}
	}
}

func (e *Engine) matchAutomations(triggerType models.TriggerType, vars map[string]any) []*models.Automation {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*models.Automation
	for _, a := range e.automations {
		if a.Trigger.Type != triggerType {
			continue
		}
		if matchesFilter(a, vars) {
			out = append(out, a)
		}
	}
	return out
}

func matchesFilter(a *models.Automation, vars map[string]any) bool {
	switch a.Trigger.Type {
	case models.TriggerOnAfterEditFiles, models.TriggerOnAfterReadFiles:
		if a.Trigger.Glob == "" {
			return true
		}
		path, _ := vars[varPath].(string)
		ok, err := filepath.Match(a.Trigger.Glob, path)
		return err == nil && ok
	case models.TriggerOnAfterRunCommand:
		if a.Trigger.Regex == "" {
			return true
		}
		cmd, _ := vars[varCommand].(string)
		return matchRegex(a.Trigger.Regex, cmd)
	case models.TriggerOnAutomationFinishes:
		finished, _ := vars[varFinishedAutomation].(string)
		return a.Trigger.AutomationID != "" && a.Trigger.AutomationID == finished
	default:
		return true
	}
}

func (e *Engine) startRun(ctx context.Context, a *models.Automation, vars map[string]any) {
	if a.Blocking {
		e.mu.Lock()
		e.blocking[a.ID] = struct{}{}
		e.mu.Unlock()
	}

	scriptVars := stripReservedVars(vars)

	go func() {
		started := time.Now()
		result := e.execute(ctx, a, scriptVars)
		finished := time.Now()

		e.mu.Lock()
		delete(e.blocking, a.ID)
		delete(e.active, a.ID)
		if result.pid != 0 {
			delete(e.suppressed, result.pid)
		}
		e.mu.Unlock()

		if e.OnRunFinished == nil {
			return
		}
		exitCode := result.exitCode
		e.OnRunFinished(&models.AutomationRun{
			AutomationID:       a.ID,
			StartedAt:          started,
			FinishedAt:         &finished,
			ExitCode:           &exitCode,
			OutputRingSnapshot: result.output,
			IsStartTruncated:   result.truncated,
			KilledByUser:       result.killed,
		})
	}()
}

func stripReservedVars(vars map[string]any) map[string]any {
	if vars == nil {
		return nil
	}
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		switch k {
		case varPath, varCommand, varFinishedAutomation:
			continue
		default:
			out[k] = v
		}
	}
	return out
}

type runResult struct {
	pid       int
	exitCode  int
	output    string
	truncated bool
	killed    bool
}

// execute generates the script, runs it, and captures output. It registers
// the running process in e.active for the duration so Stop/KillAll can
// find its PID.
func (e *Engine) execute(ctx context.Context, a *models.Automation, vars map[string]any) runResult {
	scriptPath, extraEnv, cleanup, err := writeScript(e.tempDir, a, vars)
	if err != nil {
		slog.Error("automation: script generation failed", "automation_id", a.ID, "error", err)
		return runResult{exitCode: -1, output: err.Error()}
	}
	defer cleanup()

	ring := newRingBuffer(1000)
	cmd := e.runner.Command(ctx, scriptPath, e.workDir, extraEnv, ring)

	if err := cmd.Start(); err != nil {
		slog.Error("automation: start failed", "automation_id", a.ID, "error", err)
		return runResult{exitCode: -1, output: err.Error()}
	}

	r := &run{automationID: a.ID, pid: cmd.Pid(), output: ring, done: make(chan struct{})}
	e.mu.Lock()
	e.active[a.ID] = r
	e.mu.Unlock()

	waitErr := cmd.Wait()
	ring.Close()

	e.mu.Lock()
	_, suppressed := e.suppressed[r.pid]
	killed := r.killed
	e.mu.Unlock()

	exitCode := cmd.ExitCode(waitErr)
	output := ring.String()
	if killed || suppressed {
		exitCode = 137
		output += "\n[Stopped by user]"
	}

	return runResult{
		pid:       r.pid,
		exitCode:  exitCode,
		output:    output,
		truncated: ring.startTruncated,
		killed:    killed || suppressed,
	}
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
