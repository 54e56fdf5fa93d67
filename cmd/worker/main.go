// Package main is the per-VM worker process: the encrypted HTTP boundary
// (pkg/workerapi) driving one agent's assistant session, automations, and
// git working tree.
package main

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/assistant"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/automation"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/projectsetup"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/workerapi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("worker: fatal", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		listenAddr   string
		workDir      string
		tempDir      string
		assistantURL string
		model        string
	)

	root := &cobra.Command{
		Use:   "agentctl-worker",
		Short: "Per-VM worker process driving one agent's assistant session",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the worker's encrypted HTTP boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), serveConfig{
				listenAddr:   listenAddr,
				workDir:      workDir,
				tempDir:      tempDir,
				assistantURL: assistantURL,
				model:        model,
			})
		},
	}
	serve.Flags().StringVar(&listenAddr, "listen", envOr("LISTEN_ADDR", ":7070"), "address to listen on")
	serve.Flags().StringVar(&workDir, "work-dir", envOr("WORK_DIR", "/workspace/repo"), "project checkout directory")
	serve.Flags().StringVar(&tempDir, "temp-dir", envOr("TEMP_DIR", "/workspace/tmp"), "scratch directory for automation variable overflow")
	serve.Flags().StringVar(&assistantURL, "assistant-addr", envOr("ASSISTANT_ADDR", "localhost:50051"), "gRPC address of the underlying assistant service")
	serve.Flags().StringVar(&model, "model", envOr("ASSISTANT_MODEL", "default"), "model name passed to every Generate call")

	root.AddCommand(serve)
	return root
}

type serveConfig struct {
	listenAddr   string
	workDir      string
	tempDir      string
	assistantURL string
	model        string
}

func runServe(ctx context.Context, cfg serveConfig) error {
	secretB64 := os.Getenv("AGENT_SECRET")
	if secretB64 == "" {
		slog.Error("worker: AGENT_SECRET not set")
		os.Exit(1)
	}
	secret, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil {
		slog.Error("worker: decode AGENT_SECRET", "error", err)
		os.Exit(1)
	}
	key, err := workerapi.DeriveKey(secret)
	if err != nil {
		slog.Error("worker: derive key", "error", err)
		os.Exit(1)
	}

	grpcClient, err := assistant.NewGRPCClient(cfg.assistantURL)
	if err != nil {
		slog.Error("worker: dial assistant", "error", err)
		os.Exit(1)
	}
	defer grpcClient.Close()

	session := assistant.NewSession(grpcClient, cfg.model)
	haiku := assistant.NewHaiku(grpcClient, cfg.model)
	setup := projectsetup.NewSetup(cfg.workDir)
	automations := newAutomationRunner(cfg.workDir, cfg.tempDir)
	wrappedSetup := &startAndArmAutomations{setup: setup, runner: automations}

	server := workerapi.NewServer(key, session, automations, setup, wrappedSetup, setup, haiku)
	if err := server.ValidateWiring(); err != nil {
		slog.Error("worker: server wiring incomplete", "error", err)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Handler: server}

	serveCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("worker: listening", "addr", cfg.listenAddr)
	select {
	case <-serveCtx.Done():
		slog.Info("worker: shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// automationRunner satisfies pkg/workerapi.AutomationRunner over a
// swappable *automation.Engine: the worker boots with no automations
// installed and rebuilds the engine once /start delivers the environment
// bundle's automation list, since automation.Engine's automation set is
// fixed at construction.
type automationRunner struct {
	mu      sync.RWMutex
	engine  *automation.Engine
	workDir string
	tempDir string
}

func newAutomationRunner(workDir, tempDir string) *automationRunner {
	return &automationRunner{
		engine:  automation.NewEngine(workDir, tempDir, nil),
		workDir: workDir,
		tempDir: tempDir,
	}
}

// reset rebuilds the underlying engine with a newly resolved automation
// list, called once per successful /start.
func (r *automationRunner) reset(automations []*models.Automation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engine = automation.NewEngine(r.workDir, r.tempDir, automations)
}

func (r *automationRunner) current() *automation.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engine
}

func (r *automationRunner) BlockingState() (bool, []string) {
	return r.current().BlockingState()
}

func (r *automationRunner) Execute(ctx context.Context, trigger string, vars map[string]any) error {
	return r.current().Execute(ctx, trigger, vars)
}

func (r *automationRunner) Stop(ctx context.Context, automationID string) error {
	return r.current().Stop(ctx, automationID)
}

func (r *automationRunner) TriggerManual(ctx context.Context, automationID string) error {
	return r.current().TriggerManual(ctx, automationID)
}

// startAndArmAutomations wraps projectsetup.Setup's ProjectSetup
// implementation so that a successful /start also (re)arms the
// automation engine with the automations the controller resolved for
// this agent's environment bundle.
type startAndArmAutomations struct {
	setup  *projectsetup.Setup
	runner *automationRunner
}

func (w *startAndArmAutomations) Start(ctx context.Context, req workerapi.StartRequest) (*workerapi.StartResponse, error) {
	resp, err := w.setup.Start(ctx, req)
	if err != nil {
		return resp, err
	}
	if resp.Status == "ready" {
		w.runner.reset(fromAutomationSpecs(req.Automations))
	}
	return resp, nil
}

// fromAutomationSpecs converts the wire shape /start receives back into
// models.Automation rows the engine matches against (the inverse
// conversion of pkg/orchestrator's toAutomationSpec).
func fromAutomationSpecs(specs []workerapi.AutomationSpec) []*models.Automation {
	out := make([]*models.Automation, 0, len(specs))
	for _, s := range specs {
		out = append(out, &models.Automation{
			ID:   s.ID,
			Name: s.Name,
			Trigger: models.TriggerPayload{
				Type:         models.TriggerType(s.TriggerType),
				Glob:         s.TriggerGlob,
				Regex:        s.TriggerRegex,
				AutomationID: s.TriggerAutomationID,
			},
			ScriptLanguage: models.ScriptLanguage(s.ScriptLanguage),
			ScriptContent:  s.ScriptContent,
			Blocking:       s.Blocking,
			FeedOutput:     s.FeedOutput,
		})
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
